// Package fanout implements the Subscriber Fan-out: the process-wide
// SubscriberSet and the delivery of normalized telemetry to every
// currently-attached, authenticated listener.
package fanout

import (
	"encoding/json"
	"sync"

	"github.com/angelzd27/api-ruptela/internal/protocol"
)

// Sink is a subscriber's push channel. The transport itself (WebSocket,
// SSE, a message broker subject) is an external collaborator; Sink is
// the seam this package depends on instead of any one of them.
type Sink interface {
	Deliver(data []byte) error
}

type subscriber struct {
	handle        string
	authenticated bool
	sink          Sink
}

// SubscriberSet is the mapping from subscriber handle to
// {authenticated, sink}, guarded by a single mapping-level lock. No
// blocking I/O happens while the lock is held; Publish takes a snapshot
// of the authenticated subscribers and delivers outside the lock.
type SubscriberSet struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewSubscriberSet builds an empty set.
func NewSubscriberSet() *SubscriberSet {
	return &SubscriberSet{subs: make(map[string]*subscriber)}
}

// Attach registers a new subscriber handle, unauthenticated, bound to
// sink. A handle that already exists is replaced.
func (s *SubscriberSet) Attach(handle string, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[handle] = &subscriber{handle: handle, sink: sink}
}

// Authenticate flips a subscriber to authenticated after it presents a
// valid token. Reports whether the handle was known.
func (s *SubscriberSet) Authenticate(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[handle]
	if !ok {
		return false
	}
	sub.authenticated = true
	return true
}

// Detach removes a subscriber, on explicit unsubscribe or delivery
// failure.
func (s *SubscriberSet) Detach(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, handle)
}

// Count reports the number of currently attached subscribers,
// authenticated or not, for the admin stats surface.
func (s *SubscriberSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish marshals msg once and delivers it to every authenticated
// subscriber. Delivery failure to one subscriber never blocks delivery
// to others and never propagates: the failing subscriber is detached
// and Publish moves on.
func (s *SubscriberSet) Publish(msg protocol.StandardMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.RLock()
	targets := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.authenticated {
			targets = append(targets, sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.sink.Deliver(data); err != nil {
			s.Detach(sub.handle)
		}
	}
	return nil
}
