// Package relaywire is an asynchronous client SDK for a managed
// publish/subscribe messaging service. Messages published as JSON on
// named channels are delivered to subscribers via a long-poll HTTP API
// that returns batches of messages together with a continuation token
// (a Timetoken). The package's job is to let application code obtain
// independent, concurrently-consumable Subscription streams per channel
// while multiplexing all subscriber activity onto a single shared
// long-poll request — that multiplexing is implemented in
// internal/subscribeloop; Client is the public facade in front of it.
package relaywire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nugget/relaywire/internal/model"
	"github.com/nugget/relaywire/internal/subscribeloop"
)

// DefaultSubscribeQueueSize bounds each subscription's per-message
// buffer absent an explicit WithSubscribeQueueSize option. Spec
// guidance recommends 10-100; 100 favors throughput over memory.
const DefaultSubscribeQueueSize = 100

// controlChannelBuffer sizes the loop's control channel. It only needs
// to absorb a short burst of concurrent Subscribe/Close calls between
// loop iterations; the loop drains it one event at a time.
const controlChannelBuffer = 32

// Option configures a Client built by NewClient.
type Option func(*Client)

// WithLogger attaches a structured logger; every subscribe-loop log
// line carries the client's instance ID so overlapping Client instances
// in one process's logs stay distinguishable. Defaults to slog.Default();
// a nil logger leaves the default in place.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSubscribeQueueSize overrides DefaultSubscribeQueueSize for every
// Subscription this Client creates.
func WithSubscribeQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.subscribeQueueSize = n
		}
	}
}

// Client is the relaywire facade: Publish, Subscribe, and the lazy
// subscribe-loop lifecycle wiring that ties them together. The zero
// value is not usable; construct with NewClient.
type Client struct {
	origin       string
	publishKey   string
	subscribeKey string
	transport    Transport
	logger       *slog.Logger
	instanceID   string

	subscribeQueueSize int

	mu         sync.Mutex
	controlTx  chan subscribeloop.ControlEvent
	loopCancel context.CancelFunc
}

// NewClient builds a Client. The subscribe loop is not started until
// the first call to Subscribe.
func NewClient(origin, publishKey, subscribeKey string, transport Transport, opts ...Option) *Client {
	c := &Client{
		origin:             strings.TrimRight(origin, "/"),
		publishKey:         publishKey,
		subscribeKey:       subscribeKey,
		transport:          transport,
		logger:             slog.Default(),
		instanceID:         uuid.Must(uuid.NewV7()).String(),
		subscribeQueueSize: DefaultSubscribeQueueSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish sends payload (marshaled to JSON) on channel and returns the
// timetoken the service assigned it. Publish does not interact with the
// subscribe loop; it is a plain synchronous request/response call.
func (c *Client) Publish(ctx context.Context, channel string, payload any) (Timetoken, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Timetoken{}, &model.DecodingError{Reason: "marshal publish payload", Err: err}
	}

	requestURL := fmt.Sprintf("%s/publish/%s/%s/0/%s/0/%s",
		c.origin, c.publishKey, c.subscribeKey, url.PathEscape(channel), url.PathEscape(string(body)))

	return c.transport.PublishRequest(ctx, requestURL)
}

// Subscribe returns an independent message stream for channel. If no
// subscribe loop is currently running, one is started lazily and this
// call additionally blocks until that loop's first successful long
// poll completes, guaranteeing the returned Subscription is backed by a
// healthy transport. Later, concurrent Subscribe calls (while a loop is
// already running) return as soon as the loop acknowledges the new
// registration.
func (c *Client) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ready, controlTx := c.ensureLoopStarted()

	queue := make(chan model.Message, c.subscribeQueueSize)
	idReply := make(chan int, 1)
	ev := subscribeloop.ControlEvent{Add: &subscribeloop.AddEvent{
		Listener: subscribeloop.Listener{Kind: subscribeloop.KindChannel, Name: channel},
		Queue:    queue,
		IDReply:  idReply,
	}}

	select {
	case controlTx <- ev:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var id int
	select {
	case id = <-idReply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sub := &Subscription{
		channel:   channel,
		id:        id,
		controlTx: controlTx,
		messages:  queue,
		logger:    c.logger,
	}

	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			return sub, ctx.Err()
		}
	}

	return sub, nil
}

// Close aborts any currently running subscribe loop (hard shutdown, per
// spec.md §5 — dropping the control sender alone only closes the
// channel the loop's next read would return None for, it does not
// guarantee prompt termination; Close instead cancels the loop's
// context directly). Subscriptions created before Close stop receiving
// further messages; their Messages channel closes once the loop
// observes the cancellation. Close is safe to call even if no loop is
// currently running, and safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.loopCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ensureLoopStarted starts the subscribe loop if one isn't already
// running, returning a ready signal (non-nil only when this call
// started a fresh loop) and the control channel to send events on.
func (c *Client) ensureLoopStarted() (ready <-chan struct{}, controlTx chan<- subscribeloop.ControlEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.controlTx != nil {
		return nil, c.controlTx
	}

	control := make(chan subscribeloop.ControlEvent, controlChannelBuffer)
	readyCh := make(chan struct{}, 1)
	loopCtx, cancel := context.WithCancel(context.Background())

	c.controlTx = control
	c.loopCancel = cancel

	go func() {
		subscribeloop.Run(loopCtx, subscribeloop.Params{
			Transport:    c.transport,
			Origin:       c.origin,
			SubscribeKey: c.subscribeKey,
			ControlRx:    control,
			ReadyTx:      readyCh,
			Logger:       c.logger,
			InstanceID:   c.instanceID,
		})
		c.mu.Lock()
		if c.controlTx == control {
			c.controlTx = nil
			c.loopCancel = nil
		}
		c.mu.Unlock()
	}()

	return readyCh, control
}
