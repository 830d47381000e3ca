package relaywire

import (
	"errors"

	"github.com/nugget/relaywire/internal/model"
)

// TransportError wraps a failure from the underlying Transport: network,
// TLS, timeout, non-2xx status, or body read failure. Publish returns it
// directly; the subscribe loop logs and retries on it without advancing
// the timetoken.
type TransportError = model.TransportError

// DecodingError wraps a failure to parse a response body: malformed
// JSON, a missing required field, or a non-decimal timetoken. Handled
// the same as TransportError inside the subscribe loop; returned
// directly from Publish.
type DecodingError = model.DecodingError

// ErrControlChannelClosed is returned by Subscription.Close when the
// drop event could not be handed to the subscribe loop's control
// channel without blocking (its buffer is full, or it is unbuffered and
// nothing is receiving). It is not fatal: the loop still reconciles on
// its own termination. Until then the subscriber queue stays registered
// and the loop keeps delivering messages to it.
var ErrControlChannelClosed = errors.New("relaywire: control channel closed or full, drop event not delivered")
