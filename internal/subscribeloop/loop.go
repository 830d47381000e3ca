// Package subscribeloop implements the single cooperative task at the
// heart of relaywire: it holds the channel and group registries, keeps
// exactly one long-poll request outstanding, and reconciles control
// events (new subscriptions, dropped subscriptions) against that
// request. Grounded on the upstream pubnub-rust subscribe_loop.rs
// design, adapted to Go's select/context idiom in place of Rust's
// future::select plus implicit drop-cancellation (see spec.md Design
// Notes and SPEC_FULL.md §5).
package subscribeloop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/go-querystring/query"

	"github.com/nugget/relaywire/internal/channellist"
	"github.com/nugget/relaywire/internal/model"
	"github.com/nugget/relaywire/internal/registry"
)

// initialBackoff and maxBackoff bound the retry delay after a transport
// error. The contract (spec.md §7) permits any monotonically
// non-decreasing delay capped at a few seconds; we double each time.
const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Params configures one run of the subscribe loop.
type Params struct {
	Transport    Transport
	Origin       string
	SubscribeKey string

	ControlRx <-chan ControlEvent
	// ReadyTx, if non-nil, receives one value after the loop's first
	// successful long-poll. The client facade uses this to make the
	// first Subscribe call synchronous with respect to transport
	// health.
	ReadyTx chan<- struct{}
	// ExitTx, if non-nil, receives one value when the loop terminates.
	ExitTx chan<- struct{}

	Logger     *slog.Logger
	InstanceID string
}

type subscribeQuery struct {
	ChannelGroup string `url:"channel-group"`
	TT           uint64 `url:"tt"`
	TR           uint32 `url:"tr"`
}

func buildSubscribeURL(origin, subscribeKey, encodedChannels, encodedGroups string, tt model.Timetoken) string {
	v, _ := query.Values(subscribeQuery{
		ChannelGroup: encodedGroups,
		TT:           tt.Timestamp,
		TR:           tt.Region,
	})
	return fmt.Sprintf("%s/v2/subscribe/%s/%s/0?%s", origin, subscribeKey, encodedChannels, v.Encode())
}

type pollResult struct {
	messages []model.Message
	next     model.Timetoken
	err      error
}

type controlOutcome int

const (
	outcomeContinue controlOutcome = iota
	outcomeTerminate
)

// Run executes the subscribe loop until it terminates — both registries
// empty immediately after a Drop — or ctx is cancelled (the "externally
// abort the loop task" path spec.md reserves for hard shutdown). Run is
// meant to be launched with `go subscribeloop.Run(ctx, params)`.
func Run(ctx context.Context, p Params) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("instance", p.InstanceID)

	channels := registry.New[chan<- model.Message]()
	groups := registry.New[chan<- model.Message]()
	encodedChannels := channellist.Empty
	encodedGroups := channellist.Empty
	timetoken := model.Timetoken{}
	readyTx := p.ReadyTx
	backoff := initialBackoff

	logger.Debug("subscribe loop starting")

	for {
		requestURL := buildSubscribeURL(p.Origin, p.SubscribeKey, encodedChannels, encodedGroups, timetoken)

		pollCtx, cancelPoll := context.WithCancel(ctx)
		resultCh := make(chan pollResult, 1)
		go func() {
			messages, next, err := p.Transport.SubscribeRequest(pollCtx, requestURL)
			resultCh <- pollResult{messages: messages, next: next, err: err}
		}()

		select {
		case <-ctx.Done():
			cancelPoll()
			logger.Debug("subscribe loop aborted by context cancellation")
			closeAllQueues(channels)
			closeAllQueues(groups)
			signalExit(p.ExitTx)
			return

		case ev, ok := <-p.ControlRx:
			cancelPoll()
			if !ok {
				// Control channel closed with no pending event: spurious
				// wakeup per spec.md's state table. The loop only
				// terminates via the explicit Drop-emptied-both-registries
				// rule above, or external ctx cancellation.
				continue
			}
			outcome := applyControlEvent(channels, groups, &encodedChannels, &encodedGroups, ev, logger)
			if outcome == outcomeTerminate {
				logger.Debug("subscribe loop terminating: both registries empty")
				signalExit(p.ExitTx)
				return
			}
			continue

		case res := <-resultCh:
			cancelPoll()
			if res.err != nil {
				logger.Error("transport error while polling, retrying without advancing timetoken",
					"error", res.err,
					"retry_in", humanize.Time(time.Now().Add(backoff)),
				)
				select {
				case <-ctx.Done():
					closeAllQueues(channels)
					closeAllQueues(groups)
					signalExit(p.ExitTx)
					return
				case <-time.After(backoff):
				}
				backoff = nextBackoff(backoff)
				continue
			}

			backoff = initialBackoff
			if readyTx != nil {
				select {
				case readyTx <- struct{}{}:
				default:
				}
				readyTx = nil
			}

			timetoken = res.next
			dispatch(channels, res.messages, logger)
			continue
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// closeAllQueues closes every live subscriber queue still registered
// under reg. Used only on hard shutdown (external ctx cancellation),
// where no Drop event ever arrives to close a subscriber's queue
// individually — without this, a Subscription whose Close was never
// called would block on its queue forever.
func closeAllQueues(reg *registry.Registry[chan<- model.Message]) {
	for _, name := range reg.Keys() {
		reg.ForEach(name, func(q chan<- model.Message) {
			close(q)
		})
	}
}

func signalExit(exitTx chan<- struct{}) {
	if exitTx != nil {
		exitTx <- struct{}{}
	}
}

func applyControlEvent(
	channels, groups *registry.Registry[chan<- model.Message],
	encodedChannels, encodedGroups *string,
	ev ControlEvent,
	logger *slog.Logger,
) controlOutcome {
	switch {
	case ev.Add != nil:
		return applyAdd(channels, groups, encodedChannels, encodedGroups, ev.Add, logger)
	case ev.Drop != nil:
		return applyDrop(channels, groups, encodedChannels, encodedGroups, ev.Drop, logger)
	default:
		return outcomeContinue
	}
}

func applyAdd(
	channels, groups *registry.Registry[chan<- model.Message],
	encodedChannels, encodedGroups *string,
	ev *AddEvent,
	logger *slog.Logger,
) controlOutcome {
	reg, cache := selectRegistry(channels, groups, encodedChannels, encodedGroups, ev.Listener.Kind)

	id, effect := reg.Register(ev.Listener.Name, ev.Queue)
	if effect == registry.NewName {
		*cache = channellist.Encode(reg.Keys())
	}

	logger.Debug("registered subscriber",
		"kind", ev.Listener.Kind.String(),
		"name", ev.Listener.Name,
		"id", int(id),
	)
	ev.IDReply <- int(id)
	return outcomeContinue
}

func applyDrop(
	channels, groups *registry.Registry[chan<- model.Message],
	encodedChannels, encodedGroups *string,
	ev *DropEvent,
	logger *slog.Logger,
) controlOutcome {
	reg, cache := selectRegistry(channels, groups, encodedChannels, encodedGroups, ev.Listener.Kind)
	otherEmpty := otherRegistry(channels, groups, ev.Listener.Kind).IsEmpty()

	queue, effect, ok := reg.Unregister(ev.Listener.Name, registry.ID(ev.ID))
	if !ok {
		panic(fmt.Sprintf(
			"relaywire: invariant violation: unregister missing id %d for %s %q",
			ev.ID, ev.Listener.Kind, ev.Listener.Name,
		))
	}
	// The loop is the queue's sole producer, so it alone may close it;
	// closing here signals end-of-stream to the Subscription handle
	// that owns the receive end.
	close(queue)

	logger.Debug("unregistered subscriber",
		"kind", ev.Listener.Kind.String(),
		"name", ev.Listener.Name,
		"id", ev.ID,
	)

	if effect == registry.NameErased {
		*cache = channellist.Encode(reg.Keys())
	}

	if otherEmpty && reg.IsEmpty() {
		return outcomeTerminate
	}
	return outcomeContinue
}

func selectRegistry(
	channels, groups *registry.Registry[chan<- model.Message],
	encodedChannels, encodedGroups *string,
	kind ListenerKind,
) (*registry.Registry[chan<- model.Message], *string) {
	if kind == KindGroup {
		return groups, encodedGroups
	}
	return channels, encodedChannels
}

func otherRegistry(channels, groups *registry.Registry[chan<- model.Message], kind ListenerKind) *registry.Registry[chan<- model.Message] {
	if kind == KindGroup {
		return channels
	}
	return groups
}

// dispatch fans each message out to every live slot registered under
// its routing name (message.route, or message.channel when route is
// absent), trying slots in ascending slot order. A full subscriber
// channel blocks only that send — other slots for the same message still
// receive it first, but the loop does not advance to the next message in
// the batch until the current one is fully fanned out, which is the
// backpressure mechanism spec.md §5 describes. Messages whose routing
// name has no live slots (a race with a concurrent Drop) are dropped
// silently.
func dispatch(channels *registry.Registry[chan<- model.Message], messages []model.Message, logger *slog.Logger) {
	for _, msg := range messages {
		route := msg.RoutingName()
		var full []chan<- model.Message
		found := channels.ForEach(route, func(q chan<- model.Message) {
			select {
			case q <- msg:
			default:
				full = append(full, q)
			}
		})
		for _, q := range full {
			q <- msg
		}
		if !found {
			logger.Debug("no live subscribers for route, dropping message", "route", route)
		}
	}
}
