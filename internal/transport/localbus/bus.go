// Package localbus is an in-process publish/subscribe broadcast
// channel for tests and single-process demos. It is not a production
// transport — the real channel adapter (messaging integration, relay
// fan-out) is an external collaborator the sync core only depends on
// through the syncengine.BroadcastChannel interface.
package localbus

import (
	"sync"

	"memsync/internal/syncengine"
)

// Bus fans every published message out to every subscriber,
// mirroring how a shared broadcast channel behaves: all participants
// including the sender observe the frame, and self-echo suppression is
// the coordinator's job, not the bus's.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan *syncengine.BroadcastMessage
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]chan *syncengine.BroadcastMessage)}
}

// Subscription is a single device's view onto the bus: a BroadcastChannel
// for sending, and a channel of inbound messages to range over.
type Subscription struct {
	bus    *Bus
	name   string
	inbox  chan *syncengine.BroadcastMessage
}

// Join registers name on the bus and returns its subscription. Joining
// the same name twice replaces the earlier subscription.
func (b *Bus) Join(name string, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = 128
	}
	inbox := make(chan *syncengine.BroadcastMessage, queueSize)

	b.mu.Lock()
	b.subs[name] = inbox
	b.mu.Unlock()

	return &Subscription{bus: b, name: name, inbox: inbox}
}

// Leave removes the subscription from the bus and closes its inbox.
func (s *Subscription) Leave() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.name)
	s.bus.mu.Unlock()
	close(s.inbox)
}

// Send implements syncengine.BroadcastChannel by fanning msg out to
// every current subscriber (including the sender — per the broadcast
// channel's real-world semantics).
func (s *Subscription) Send(msg *syncengine.BroadcastMessage) error {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	for _, inbox := range s.bus.subs {
		select {
		case inbox <- msg:
		default:
			// Bounded queue, full: drop rather than block the sender.
		}
	}
	return nil
}

// Inbox returns the channel of messages delivered to this subscription.
func (s *Subscription) Inbox() <-chan *syncengine.BroadcastMessage {
	return s.inbox
}
