package changefeed

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Op is the kind of row change carried by a MembershipChange.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	// OpResync is published when the upstream feed reconnected and
	// changes may have been missed.
	OpResync Op = "RESYNC"
)

// MembershipChange describes a change to any row of the membership table.
type MembershipChange struct {
	Op          Op        `json:"op"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	IdentityID  uuid.UUID `json:"identity_id"`
	At          time.Time `json:"at"`
}

// DefaultBufferSize is the event buffer of subscriptions created by Subscribe.
const DefaultBufferSize = 16

// Broker broadcasts events to every subscriber. Delivery is not filtered
// by workspace or identity.
type Broker[E any] struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription[E]
	logger *zap.Logger
}

// NewBroker creates an empty broker.
func NewBroker[E any](logger *zap.Logger) *Broker[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker[E]{
		subs:   make(map[string]*Subscription[E]),
		logger: logger.Named("changefeed"),
	}
}

// Subscribe registers a new subscription.
func (b *Broker[E]) Subscribe() *Subscription[E] {
	sub := NewSubscription[E](DefaultBufferSize)

	b.mu.Lock()
	b.subs[sub.ID()] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker[E]) Unsubscribe(sub *Subscription[E]) {
	b.mu.Lock()
	delete(b.subs, sub.ID())
	b.mu.Unlock()

	sub.Close()
}

// Publish sends event to every subscriber. Slow subscribers miss events.
func (b *Broker[E]) Publish(event E) {
	b.mu.RLock()
	subs := make([]*Subscription[E], 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.Publish(event) {
			b.logger.Debug("dropped change event", zap.String("subscription", sub.ID()))
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Broker[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription.
func (b *Broker[E]) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription[E])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
