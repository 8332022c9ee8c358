// Package changefeed fans out store change events to in-process subscribers.
package changefeed

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// publishTimeout bounds how long Publish waits on a full subscriber buffer.
const publishTimeout = 100 * time.Millisecond

// Subscription receives events of type E until it is closed.
type Subscription[E any] struct {
	id     string
	mu     sync.Mutex
	closed bool
	events chan E
}

// NewSubscription creates a subscription with the given buffer size.
func NewSubscription[E any](bufSize int) *Subscription[E] {
	return &Subscription[E]{
		id:     xid.New().String(),
		events: make(chan E, bufSize),
	}
}

// ID returns the id of this subscription.
func (s *Subscription[E]) ID() string {
	return s.id
}

// Events returns the event channel of this subscription. It is closed
// when the subscription is closed.
func (s *Subscription[E]) Events() <-chan E {
	return s.events
}

// Close closes the event channel. It is safe to call more than once.
func (s *Subscription[E]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Publish delivers event, giving up after publishTimeout. It reports
// whether the event was delivered.
func (s *Subscription[E]) Publish(event E) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	case <-time.After(publishTimeout):
		return false
	}
}
