// Package transporthttp is the default subscribeloop.Transport: plain
// net/http GETs against a PubNub-shaped REST origin. It enforces
// consistent timeouts and connection pooling across every outbound call.
package transporthttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nugget/relaywire/internal/buildinfo"
	"github.com/nugget/relaywire/internal/model"
	"github.com/nugget/relaywire/internal/wire"
)

// Default timeouts and connection pool limits for the shared transport.
// Subscribe requests are long-polls held open by the service for tens of
// seconds, so they get their own generous per-request timeout distinct
// from the client's default.
const (
	DefaultDialTimeout         = 10 * time.Second
	DefaultKeepAlive           = 30 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConns        = 20
	DefaultMaxIdleConnsPerHost = 5

	// DefaultSubscribeTimeout bounds a single long-poll round trip.
	DefaultSubscribeTimeout = 320 * time.Second
	// DefaultPublishTimeout bounds a single publish round trip.
	DefaultPublishTimeout = 10 * time.Second

	// maxErrorBodyBytes caps how much of a non-2xx response body is read
	// into the returned error.
	maxErrorBodyBytes = 4096
)

// Option configures a Client built by New.
type Option func(*config)

type config struct {
	subscribeTimeout time.Duration
	publishTimeout   time.Duration
	userAgent        string
	transport        *http.Transport
}

// WithSubscribeTimeout overrides the per-request timeout used for
// long-poll subscribe calls.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(c *config) { c.subscribeTimeout = d }
}

// WithPublishTimeout overrides the per-request timeout used for publish
// calls.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *config) { c.publishTimeout = d }
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *config) { c.userAgent = ua }
}

// WithHTTPTransport overrides the shared *http.Transport. Use sparingly;
// the default pools connections sensibly for long-poll workloads.
func WithHTTPTransport(t *http.Transport) Option {
	return func(c *config) { c.transport = t }
}

// Client is the default Transport implementation, backed by net/http.
type Client struct {
	subscribeHTTP *http.Client
	publishHTTP   *http.Client
	userAgent     string
}

// New builds a Client with sensible pooling and timeout defaults.
func New(opts ...Option) *Client {
	cfg := &config{
		subscribeTimeout: DefaultSubscribeTimeout,
		publishTimeout:   DefaultPublishTimeout,
		userAgent:        buildinfo.UserAgent(),
	}
	for _, o := range opts {
		o(cfg)
	}

	t := cfg.transport
	if t == nil {
		t = newSharedHTTPTransport()
	}

	rt := &userAgentRoundTripper{base: t, ua: cfg.userAgent}

	return &Client{
		subscribeHTTP: &http.Client{Timeout: cfg.subscribeTimeout, Transport: rt},
		publishHTTP:   &http.Client{Timeout: cfg.publishTimeout, Transport: rt},
		userAgent:     cfg.userAgent,
	}
}

func newSharedHTTPTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:   true,
	}
}

// userAgentRoundTripper injects the User-Agent header on every request
// unless one is already set.
type userAgentRoundTripper struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.base.RoundTrip(req)
}

// PublishRequest performs the publish GET and parses the [status,
// message, timetoken] response array.
func (c *Client) PublishRequest(ctx context.Context, requestURL string) (model.Timetoken, error) {
	body, err := c.do(ctx, c.publishHTTP, requestURL)
	if err != nil {
		return model.Timetoken{}, err
	}
	return wire.ParsePublishResponse(body)
}

// SubscribeRequest performs the long-poll GET and parses the message
// envelope, blocking until the service responds or ctx is cancelled.
func (c *Client) SubscribeRequest(ctx context.Context, requestURL string) ([]model.Message, model.Timetoken, error) {
	body, err := c.do(ctx, c.subscribeHTTP, requestURL)
	if err != nil {
		return nil, model.Timetoken{}, err
	}
	return wire.ParseSubscribeResponse(body)
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &model.TransportError{Op: "build request", Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &model.TransportError{Op: "round trip", Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.TransportError{
			Op:  "round trip",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body)),
		}
	}

	body, err := readAll(resp.Body)
	if err != nil {
		return nil, &model.TransportError{Op: "read response body", Err: err}
	}
	return body, nil
}
