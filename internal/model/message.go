package model

import "encoding/json"

// MessageKind tags the variant of a Message the same way the wire
// envelope's "e" field does: 0/absent is Published, and the rest are
// fixed service event types except Unknown, which carries the raw code
// the server sent so callers can still branch on it.
type MessageKind int

const (
	Published MessageKind = iota
	Signal
	Objects
	Action
	Unknown
)

// String renders the kind the way log lines and tests expect it.
func (k MessageKind) String() string {
	switch k {
	case Published:
		return "published"
	case Signal:
		return "signal"
	case Objects:
		return "objects"
	case Action:
		return "action"
	case Unknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// MessageType is the message's tag: Kind plus, for Unknown, the raw
// wire code that didn't match a known variant.
type MessageType struct {
	Kind MessageKind
	Code int
}

// KindFromWireCode maps the wire "e" field to a MessageType. A nil code
// (the field was absent) defaults to Published per the wire contract.
func KindFromWireCode(code *int) MessageType {
	if code == nil {
		return MessageType{Kind: Published}
	}
	switch *code {
	case 0:
		return MessageType{Kind: Published}
	case 1:
		return MessageType{Kind: Signal}
	case 2:
		return MessageType{Kind: Objects}
	case 3:
		return MessageType{Kind: Action}
	default:
		return MessageType{Kind: Unknown, Code: *code}
	}
}

// Message is the value delivered to subscribers. Route, Client are
// optional fields absent from most messages; JSON and Metadata are kept
// as raw bytes so the SDK never needs to know the payload shape.
type Message struct {
	Type         MessageType
	Route        *string
	Channel      string
	JSON         json.RawMessage
	Metadata     json.RawMessage
	Timetoken    Timetoken
	Client       *string
	SubscribeKey string
	Flags        uint32
}

// RoutingName returns the channel-group name the message arrived via,
// or the channel itself when no route is present. This is the name
// used to look up live subscriber slots in the registry.
func (m Message) RoutingName() string {
	if m.Route != nil && *m.Route != "" {
		return *m.Route
	}
	return m.Channel
}
