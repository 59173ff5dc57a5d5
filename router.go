package vcnet

import (
	"log"
	"sync"
)

// A Handler processes one decoded inbound Message from peer.
type Handler func(peer PeerID, msg *Message)

// A Router dispatches decoded messages to registered handlers by
// message type. It decouples the codec and channel layers from the
// session logic on both sides of a connection.
type Router struct {
	mu       sync.RWMutex
	handlers map[MessageType][]Handler
	fallback Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[MessageType][]Handler)}
}

// Handle registers h for messages of type t. Multiple handlers per
// type run in registration order.
func (r *Router) Handle(t MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[t] = append(r.handlers[t], h)
}

// HandleFallback registers h for message types with no handler.
func (r *Router) HandleFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fallback = h
}

// Dispatch routes msg to the handlers registered for its type.
// Unhandled messages are logged and dropped.
func (r *Router) Dispatch(peer PeerID, msg *Message) {
	r.mu.RLock()
	hs := r.handlers[msg.Type]
	fallback := r.fallback
	r.mu.RUnlock()

	if len(hs) == 0 {
		if fallback != nil {
			fallback(peer, msg)
			return
		}

		log.Printf("no handler for %s message from peer %d", msg.Type, peer)
		return
	}

	for _, h := range hs {
		h(peer, msg)
	}
}
