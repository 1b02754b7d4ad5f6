package sse

import (
	"context"
	"sync"

	"parlomo-ticketing/internal/checkout"
)

// SnapshotEvent pairs a checkout snapshot with the session it belongs
// to, so event-wide subscribers can tell streams apart.
type SnapshotEvent struct {
	SessionID string            `json:"session_id"`
	Snapshot  checkout.Snapshot `json:"snapshot"`
}

// CheckoutEventEmitter manages SSE connections and snapshot
// broadcasting for live checkout sessions.
type CheckoutEventEmitter struct {
	// Session channel clients map - key: sessionID, value: slice of client channels
	sessionClients     map[string][]chan SnapshotEvent
	sessionClientMutex sync.RWMutex

	// Event channel clients map - key: eventID, value: slice of client channels
	eventClients     map[string][]chan SnapshotEvent
	eventClientMutex sync.RWMutex
}

// NewCheckoutEventEmitter creates a new SSE event emitter for checkout snapshots
func NewCheckoutEventEmitter() *CheckoutEventEmitter {
	return &CheckoutEventEmitter{
		sessionClients: make(map[string][]chan SnapshotEvent),
		eventClients:   make(map[string][]chan SnapshotEvent),
	}
}

// SubscribeToSession adds a client to a single checkout session's snapshot stream
func (e *CheckoutEventEmitter) SubscribeToSession(ctx context.Context, sessionID string) chan SnapshotEvent {
	clientChan := make(chan SnapshotEvent, 10)

	e.sessionClientMutex.Lock()
	if e.sessionClients[sessionID] == nil {
		e.sessionClients[sessionID] = []chan SnapshotEvent{}
	}
	e.sessionClients[sessionID] = append(e.sessionClients[sessionID], clientChan)
	e.sessionClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeSessionClient(sessionID, clientChan)
	}()

	return clientChan
}

// SubscribeToEvent adds a client to every checkout stream under an event
func (e *CheckoutEventEmitter) SubscribeToEvent(ctx context.Context, eventID string) chan SnapshotEvent {
	clientChan := make(chan SnapshotEvent, 10)

	e.eventClientMutex.Lock()
	if e.eventClients[eventID] == nil {
		e.eventClients[eventID] = []chan SnapshotEvent{}
	}
	e.eventClients[eventID] = append(e.eventClients[eventID], clientChan)
	e.eventClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeEventClient(eventID, clientChan)
	}()

	return clientChan
}

// EmitSnapshot broadcasts a checkout snapshot to all subscribed clients
func (e *CheckoutEventEmitter) EmitSnapshot(sessionID, eventID string, snap checkout.Snapshot) {
	ev := SnapshotEvent{SessionID: sessionID, Snapshot: snap}

	// Broadcast to session subscribers
	e.sessionClientMutex.RLock()
	clients := e.sessionClients[sessionID]
	e.sessionClientMutex.RUnlock()

	for _, clientChan := range clients {
		// Non-blocking send to avoid slowing down emitter if client is slow
		select {
		case clientChan <- ev:
			// Successfully sent
		default:
			// Channel buffer full, skip this client for now
		}
	}

	// Broadcast to event subscribers
	e.eventClientMutex.RLock()
	eventClients := e.eventClients[eventID]
	e.eventClientMutex.RUnlock()

	for _, clientChan := range eventClients {
		// Non-blocking send to avoid slowing down emitter if client is slow
		select {
		case clientChan <- ev:
			// Successfully sent
		default:
			// Channel buffer full, skip this client for now
		}
	}
}

// Helper methods to remove clients when they disconnect
func (e *CheckoutEventEmitter) removeSessionClient(sessionID string, clientChan chan SnapshotEvent) {
	e.sessionClientMutex.Lock()
	defer e.sessionClientMutex.Unlock()

	clients := e.sessionClients[sessionID]
	for i, ch := range clients {
		if ch == clientChan {
			// Remove client from slice
			e.sessionClients[sessionID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	// Clean up map entry if no more clients
	if len(e.sessionClients[sessionID]) == 0 {
		delete(e.sessionClients, sessionID)
	}
}

func (e *CheckoutEventEmitter) removeEventClient(eventID string, clientChan chan SnapshotEvent) {
	e.eventClientMutex.Lock()
	defer e.eventClientMutex.Unlock()

	clients := e.eventClients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			// Remove client from slice
			e.eventClients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	// Clean up map entry if no more clients
	if len(e.eventClients[eventID]) == 0 {
		delete(e.eventClients, eventID)
	}
}

// GetSessionClientCount returns the number of clients currently subscribed to a session
func (e *CheckoutEventEmitter) GetSessionClientCount(sessionID string) int {
	e.sessionClientMutex.RLock()
	defer e.sessionClientMutex.RUnlock()
	return len(e.sessionClients[sessionID])
}

// GetEventClientCount returns the number of clients currently subscribed to an event
func (e *CheckoutEventEmitter) GetEventClientCount(eventID string) int {
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()
	return len(e.eventClients[eventID])
}
