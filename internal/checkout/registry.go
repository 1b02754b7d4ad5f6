package checkout

import (
	"sync"

	"parlomo-ticketing/internal/logger"
	"parlomo-ticketing/internal/models"
)

// Registry tracks the live machines for in-flight checkout sessions.
// One machine exists per session for the lifetime of its countdown and
// is removed on completion or expiry.
type Registry struct {
	mu       sync.RWMutex
	machines map[string]*Machine

	gateway  Gateway
	log      *logger.Logger
	onExpire func(session models.CheckoutSession, snap Snapshot)
}

func NewRegistry(gateway Gateway, log *logger.Logger) *Registry {
	return &Registry{
		machines: make(map[string]*Machine),
		gateway:  gateway,
		log:      log,
	}
}

// SetExpiryHandler registers the hook invoked after a machine expires
// and has been removed from the registry. Must be called before Create.
func (r *Registry) SetExpiryHandler(fn func(session models.CheckoutSession, snap Snapshot)) {
	r.onExpire = fn
}

// Create starts a machine for the session and begins its countdown.
// Creating the same session twice returns the existing machine.
func (r *Registry) Create(session models.CheckoutSession) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.machines[session.SessionID]; ok {
		return m
	}

	sessionID := session.SessionID
	m := NewMachine(session, r.gateway, r.log, WithExpiryCallback(func() {
		r.expire(sessionID)
	}))
	r.machines[sessionID] = m
	m.Start()

	r.log.LogCheckout("REGISTER", sessionID, "checkout machine started")
	return m
}

func (r *Registry) Get(sessionID string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[sessionID]
	return m, ok
}

// Remove stops the machine and drops it from the registry. Called when
// a checkout reaches a terminal state.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	m, ok := r.machines[sessionID]
	if ok {
		delete(r.machines, sessionID)
	}
	r.mu.Unlock()

	if ok {
		m.Stop()
		r.log.LogCheckout("UNREGISTER", sessionID, "checkout machine stopped")
	}
}

// Shutdown stops every live machine. Used on server teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	machines := r.machines
	r.machines = make(map[string]*Machine)
	r.mu.Unlock()

	for id, m := range machines {
		m.Stop()
		r.log.LogCheckout("UNREGISTER", id, "checkout machine stopped on shutdown")
	}
}

func (r *Registry) expire(sessionID string) {
	r.mu.Lock()
	m, ok := r.machines[sessionID]
	if ok {
		delete(r.machines, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	m.Stop()
	r.log.LogCheckout("EXPIRE", sessionID, "countdown hit zero, session released")

	if r.onExpire != nil {
		r.onExpire(m.Session(), m.State())
	}
}
