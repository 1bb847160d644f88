package identity

import (
	"context"
	"sync"
)

// Stream is a ready-made Subscription for provider bindings.  The producer
// calls Publish from its own goroutine and Close when it is finished; the
// consumer reads Events and calls Unsubscribe.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan Event

	mu     sync.Mutex
	closed bool
}

// NewStream returns a Stream whose Done context is derived from parent.
func NewStream(parent context.Context) *Stream {
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan Event, 1),
	}
}

// Events implements Subscription.
func (s *Stream) Events() <-chan Event { return s.ch }

// Unsubscribe implements Subscription.
func (s *Stream) Unsubscribe() { s.cancel() }

// Done is closed once the consumer unsubscribed or the parent context ended.
func (s *Stream) Done() <-chan struct{} { return s.ctx.Done() }

// Context returns the stream's lifetime context for producer-side calls.
func (s *Stream) Context() context.Context { return s.ctx }

// Publish delivers ev unless the stream is finished.  It reports whether
// the event was delivered.
func (s *Stream) Publish(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Close ends the stream from the producer side and closes Events.  A
// Publish blocked on a slow consumer is released first.
func (s *Stream) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
