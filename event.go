package vcnet

import "sync"

// An EventKind tags session lifecycle events surfaced to the
// application.
type EventKind uint8

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventReconnecting
	EventPeerRejected
	EventPeerKicked
	EventPeerBanned
	EventReconciliationApplied
	EventProtocolError
	EventSyncWarning
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventPeerRejected:
		return "peer_rejected"
	case EventPeerKicked:
		return "peer_kicked"
	case EventPeerBanned:
		return "peer_banned"
	case EventReconciliationApplied:
		return "reconciliation_applied"
	case EventProtocolError:
		return "protocol_error"
	case EventSyncWarning:
		return "sync_warning"
	}

	return "invalid"
}

// An Event is a typed session notification.
type Event struct {
	Kind   EventKind
	Peer   PeerID
	Reason string

	// Reconnection progress, set for EventReconnecting.
	Attempt     int
	MaxAttempts int

	Err error
}

// An EventBus fans events out to subscribers. Handlers run on the
// publishing goroutine and must not block.
type EventBus struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewEventBus() *EventBus { return &EventBus{} }

// Subscribe registers fn for all future events.
func (b *EventBus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, fn)
}

// Publish delivers ev to every subscriber.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
