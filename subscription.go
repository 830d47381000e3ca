package relaywire

import (
	"log/slog"
	"sync"

	"github.com/nugget/relaywire/internal/subscribeloop"
)

// Subscription is an independent, concurrently-consumable message
// stream for one channel. It owns the receive end of a bounded queue
// the subscribe loop fans messages into; Close emits a Drop control
// event that unregisters the queue.
//
// A Subscription's Messages channel is closed by the subscribe loop
// once the matching Drop has been processed, or — on hard shutdown —
// once the loop observes external context cancellation. Range over it
// or read until ok is false to detect end-of-stream.
type Subscription struct {
	channel   string
	id        int
	controlTx chan<- subscribeloop.ControlEvent
	messages  <-chan Message
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Channel returns the channel name this subscription was opened on.
func (s *Subscription) Channel() string { return s.channel }

// Messages returns the receive end of the subscription's queue.
func (s *Subscription) Messages() <-chan Message { return s.messages }

// Close emits a Drop control event for this subscription. It is safe
// to call more than once; only the first call has effect. If the
// control channel cannot take the event without blocking, the drop is
// logged and ErrControlChannelClosed is returned — not fatal, since the subscribe
// loop reconciles membership on its own termination regardless.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		ev := subscribeloop.ControlEvent{Drop: &subscribeloop.DropEvent{
			ID:       s.id,
			Listener: subscribeloop.Listener{Kind: subscribeloop.KindChannel, Name: s.channel},
		}}
		select {
		case s.controlTx <- ev:
		default:
			s.logger.Warn("drop event not delivered, control channel full or abandoned",
				"channel", s.channel, "id", s.id)
			s.closeErr = ErrControlChannelClosed
		}
	})
	return s.closeErr
}
