package relaywire

import "github.com/nugget/relaywire/internal/subscribeloop"

// Transport abstracts the HTTP GETs Publish and the subscribe loop
// need. It is stateless with respect to subscriptions: cancellation is
// expressed by cancelling ctx, not by any method on Transport itself. A
// compliant implementation must be safe to call concurrently, though
// the subscribe loop only ever calls SubscribeRequest once at a time.
//
// transporthttp.Client is the default implementation, built over
// net/http. Tests substitute a fake that controls exactly when each
// long-poll resolves.
type Transport = subscribeloop.Transport
