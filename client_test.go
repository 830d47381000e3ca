package relaywire

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/relaywire/internal/model"
)

// fakeTransport is a minimal Transport whose SubscribeRequest blocks
// until a response is pushed on next (or ctx is cancelled), and whose
// PublishRequest returns a canned timetoken or error.
type fakeTransport struct {
	mu            sync.Mutex
	subscribeURLs []string
	next          chan fakeSubscribeResponse

	publishTT  model.Timetoken
	publishErr error
	publishURL string
}

type fakeSubscribeResponse struct {
	messages []model.Message
	next     model.Timetoken
	err      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{next: make(chan fakeSubscribeResponse, 8)}
}

func (f *fakeTransport) PublishRequest(ctx context.Context, requestURL string) (model.Timetoken, error) {
	f.mu.Lock()
	f.publishURL = requestURL
	f.mu.Unlock()
	return f.publishTT, f.publishErr
}

func (f *fakeTransport) SubscribeRequest(ctx context.Context, requestURL string) ([]model.Message, model.Timetoken, error) {
	f.mu.Lock()
	f.subscribeURLs = append(f.subscribeURLs, requestURL)
	f.mu.Unlock()
	select {
	case r := <-f.next:
		return r.messages, r.next, r.err
	case <-ctx.Done():
		return nil, model.Timetoken{}, ctx.Err()
	}
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribeURLs)
}

func TestClientPublishBuildsURLAndReturnsTimetoken(t *testing.T) {
	ft := newFakeTransport()
	ft.publishTT = model.Timetoken{Timestamp: 42}
	c := NewClient("https://example.test", "pub-key", "sub-key", ft)

	tt, err := c.Publish(t.Context(), "room one", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if tt.Timestamp != 42 {
		t.Errorf("timetoken = %+v, want Timestamp 42", tt)
	}
	if !strings.Contains(ft.publishURL, "/publish/pub-key/sub-key/0/room%20one/0/") {
		t.Errorf("publish URL = %q, missing expected path shape", ft.publishURL)
	}
}

func TestClientSubscribeLazyStartsLoopAndWaitsForReady(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient("https://example.test", "pub-key", "sub-key", ft)
	defer c.Close()

	done := make(chan struct{})
	var sub *Subscription
	var subErr error
	go func() {
		sub, subErr = c.Subscribe(context.Background(), "a")
		close(done)
	}()

	// Subscribe must block until the first long-poll resolves.
	select {
	case <-done:
		t.Fatal("Subscribe returned before the first long-poll resolved")
	case <-time.After(50 * time.Millisecond):
	}

	ft.next <- fakeSubscribeResponse{next: model.Timetoken{Timestamp: 1}}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after the first long-poll resolved")
	}
	if subErr != nil {
		t.Fatalf("Subscribe error: %v", subErr)
	}
	if sub.Channel() != "a" {
		t.Errorf("sub.Channel() = %q, want %q", sub.Channel(), "a")
	}
}

func TestClientSecondSubscribeDoesNotWaitForReady(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient("https://example.test", "pub-key", "sub-key", ft)
	defer c.Close()

	sub1Done := make(chan struct{})
	go func() {
		c.Subscribe(context.Background(), "a")
		close(sub1Done)
	}()
	ft.next <- fakeSubscribeResponse{next: model.Timetoken{Timestamp: 1}}
	<-sub1Done

	// A loop is already running and healthy; a second Subscribe must
	// return promptly without needing another resolved poll.
	done := make(chan struct{})
	go func() {
		c.Subscribe(context.Background(), "b")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Subscribe blocked waiting for readiness it shouldn't need")
	}
}

func TestClientFanOutToTwoSubscriptionsOnSameChannel(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient("https://example.test", "pub-key", "sub-key", ft)
	defer c.Close()

	sub1, err := subscribeAndUnblock(t, c, ft, "a")
	if err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	sub2, err := c.Subscribe(context.Background(), "a")
	if err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}

	waitForCallCount(t, ft, 2)
	ft.next <- fakeSubscribeResponse{
		messages: []model.Message{{Channel: "a", JSON: []byte(`"hello"`)}},
		next:     model.Timetoken{Timestamp: 5},
	}

	for _, s := range []*Subscription{sub1, sub2} {
		select {
		case m := <-s.Messages():
			if string(m.JSON) != `"hello"` {
				t.Errorf("message = %s, want %q", m.JSON, `"hello"`)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanned-out message")
		}
	}
}

func TestSubscriptionCloseEndsTheStream(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient("https://example.test", "pub-key", "sub-key", ft)
	defer c.Close()

	sub, err := subscribeAndUnblock(t, c, ft, "a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Fatal("expected Messages channel to be closed after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Messages channel to close")
	}
}

// subscribeAndUnblock subscribes on a fresh client (no loop running
// yet) and resolves the first long-poll so Subscribe can return.
func subscribeAndUnblock(t *testing.T, c *Client, ft *fakeTransport, channel string) (*Subscription, error) {
	t.Helper()
	if ft.callCount() > 0 {
		return c.Subscribe(context.Background(), channel)
	}

	type result struct {
		sub *Subscription
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		sub, err := c.Subscribe(context.Background(), channel)
		resCh <- result{sub, err}
	}()
	waitForCallCount(t, ft, 1)
	ft.next <- fakeSubscribeResponse{next: model.Timetoken{Timestamp: 1}}
	r := <-resCh
	return r.sub, r.err
}

func waitForCallCount(t *testing.T, ft *fakeTransport, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if ft.callCount() >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d transport calls, got %d", n, ft.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
