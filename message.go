package relaywire

import "github.com/nugget/relaywire/internal/model"

// Timetoken is the server-assigned continuation cursor used to request
// messages strictly after a point in time. The zero value is the
// initial cursor sent on first connect. Timetokens are opaque to
// callers; compare them with Less, not by field.
type Timetoken = model.Timetoken

// MessageKind tags the variant of a Message, mirroring the wire
// envelope's "e" field.
type MessageKind = model.MessageKind

// Message kind constants. Unknown carries the server's raw type code
// for variants this SDK doesn't name.
const (
	Published = model.Published
	Signal    = model.Signal
	Objects   = model.Objects
	Action    = model.Action
	Unknown   = model.Unknown
)

// MessageType is a Message's tag: Kind plus, for Unknown, the raw wire
// code that didn't match a known variant.
type MessageType = model.MessageType

// Message is the value delivered to subscribers. Route is set when the
// message arrived via a channel group rather than directly on Channel;
// JSON and Metadata are kept as raw bytes so the SDK never needs to
// know the payload shape.
type Message = model.Message
