package bus

import (
	"context"
	"sync"

	"github.com/instabidslabs/instabids-cloud/internal/event"
)

// LocalHandler consumes a domain event synchronously, inside the transaction
// that raised it. An error here fails the originating business operation.
type LocalHandler func(ctx context.Context, evt event.DomainEvent) error

// IntegrationHandler consumes a relayed integration event. The relay may
// deliver the same event more than once, so handlers must be idempotent.
type IntegrationHandler func(ctx context.Context, evt event.IntegrationEvent) error

// Registry maps event types to ordered handler lists. Subscriptions are
// registered during wiring and live for the process lifetime; the mutex only
// covers the wiring window since fx providers run concurrently.
type Registry struct {
	mu          sync.RWMutex
	local       map[string][]LocalHandler
	integration map[string][]IntegrationHandler
}

func NewRegistry() *Registry {
	return &Registry{
		local:       make(map[string][]LocalHandler),
		integration: make(map[string][]IntegrationHandler),
	}
}

// SubscribeLocal appends a synchronous in-process handler for eventType.
// Handlers run in registration order.
func (r *Registry) SubscribeLocal(eventType string, h LocalHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[eventType] = append(r.local[eventType], h)
}

// Subscribe appends an integration handler for eventType, invoked by the
// outbox relay. Handlers run in registration order.
func (r *Registry) Subscribe(eventType string, h IntegrationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integration[eventType] = append(r.integration[eventType], h)
}

// LocalHandlersFor returns the local handlers registered for eventType.
func (r *Registry) LocalHandlersFor(eventType string) []LocalHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local[eventType]
}

// HandlersFor returns the integration handlers registered for eventType.
func (r *Registry) HandlersFor(eventType string) []IntegrationHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.integration[eventType]
}
