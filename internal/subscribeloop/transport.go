package subscribeloop

import (
	"context"

	"github.com/nugget/relaywire/internal/model"
)

// Transport abstracts the HTTP GETs the subscribe loop and Publish need.
// It is stateless with respect to subscriptions: cancellation is
// expressed by the caller cancelling ctx, not by any method on Transport
// itself. A compliant implementation must be safe to call concurrently,
// though the subscribe loop only ever calls SubscribeRequest once at a
// time.
type Transport interface {
	// PublishRequest performs the publish GET and returns the timetoken
	// parsed from the response.
	PublishRequest(ctx context.Context, requestURL string) (model.Timetoken, error)

	// SubscribeRequest performs the long-poll GET, blocking until the
	// service returns a batch of messages (or ctx is cancelled).
	SubscribeRequest(ctx context.Context, requestURL string) ([]model.Message, model.Timetoken, error)
}
