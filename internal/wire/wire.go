// Package wire holds the JSON shapes exchanged with the messaging
// service and the functions that translate them to and from the
// internal model types. Keeping this separate from the registry,
// subscribe loop, and client packages means none of those need to know
// the wire format, matching spec.md's framing of JSON parsing as an
// external collaborator to the core.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nugget/relaywire/internal/model"
)

type timetokenWire struct {
	T string `json:"t"`
	R uint32 `json:"r"`
}

func (w timetokenWire) toModel() (model.Timetoken, error) {
	if w.T == "" {
		return model.Timetoken{Region: w.R}, nil
	}
	v, err := strconv.ParseUint(w.T, 10, 64)
	if err != nil {
		return model.Timetoken{}, &model.DecodingError{
			Reason: fmt.Sprintf("timetoken %q is not a decimal integer", w.T),
			Err:    err,
		}
	}
	return model.Timetoken{Timestamp: v, Region: w.R}, nil
}

type messageWire struct {
	E *int           `json:"e"`
	B *string        `json:"b"`
	C string         `json:"c"`
	D json.RawMessage `json:"d"`
	U json.RawMessage `json:"u"`
	P timetokenWire  `json:"p"`
	I *string        `json:"i"`
	K string         `json:"k"`
	F *uint32        `json:"f"`
}

func (w messageWire) toModel() (model.Message, error) {
	tt, err := w.P.toModel()
	if err != nil {
		return model.Message{}, err
	}
	var flags uint32
	if w.F != nil {
		flags = *w.F
	}
	return model.Message{
		Type:         model.KindFromWireCode(w.E),
		Route:        w.B,
		Channel:      w.C,
		JSON:         w.D,
		Metadata:     w.U,
		Timetoken:    tt,
		Client:       w.I,
		SubscribeKey: w.K,
		Flags:        flags,
	}, nil
}

type subscribeEnvelope struct {
	T timetokenWire `json:"t"`
	M []messageWire `json:"m"`
}

// ParseSubscribeResponse decodes a subscribe long-poll response body
// into messages (in response order, per-channel FIFO preserved) and the
// next timetoken to request with.
func ParseSubscribeResponse(body []byte) ([]model.Message, model.Timetoken, error) {
	var env subscribeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, model.Timetoken{}, &model.DecodingError{
			Reason: "malformed subscribe response body",
			Err:    err,
		}
	}

	next, err := env.T.toModel()
	if err != nil {
		return nil, model.Timetoken{}, err
	}

	messages := make([]model.Message, 0, len(env.M))
	for _, mw := range env.M {
		m, err := mw.toModel()
		if err != nil {
			return nil, model.Timetoken{}, err
		}
		messages = append(messages, m)
	}
	return messages, next, nil
}

// ParsePublishResponse decodes a publish response body — a JSON array
// whose element at index 2 is the decimal timetoken string — into a
// Timetoken. Only the timetoken is consumed; status and message text
// (indices 0 and 1) are part of the wire contract but unused by the
// core.
func ParsePublishResponse(body []byte) (model.Timetoken, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err != nil {
		return model.Timetoken{}, &model.DecodingError{
			Reason: "malformed publish response body",
			Err:    err,
		}
	}
	if len(arr) < 3 {
		return model.Timetoken{}, &model.DecodingError{
			Reason: fmt.Sprintf("publish response has %d elements, want at least 3", len(arr)),
		}
	}

	var ttStr string
	if err := json.Unmarshal(arr[2], &ttStr); err != nil {
		return model.Timetoken{}, &model.DecodingError{
			Reason: "publish response timetoken element is not a string",
			Err:    err,
		}
	}

	v, err := strconv.ParseUint(ttStr, 10, 64)
	if err != nil {
		return model.Timetoken{}, &model.DecodingError{
			Reason: fmt.Sprintf("publish timetoken %q is not a decimal integer", ttStr),
			Err:    err,
		}
	}
	return model.Timetoken{Timestamp: v}, nil
}
