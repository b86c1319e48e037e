package bus

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/instabidslabs/instabids-cloud/internal/event"
)

// OutboxAppender is the slice of the outbox store the dispatcher needs:
// inserting records inside the caller's transaction. Implemented by
// outbox.Store.
type OutboxAppender interface {
	Enqueue(ctx context.Context, tx *gorm.DB, events []event.IntegrationEvent) error
}

// Dispatcher is the producer-facing edge of the event core. Domains call it
// at the end of a successful state mutation, inside their own transaction.
type Dispatcher struct {
	registry *Registry
	outbox   OutboxAppender
}

func NewDispatcher(registry *Registry, outbox OutboxAppender) *Dispatcher {
	return &Dispatcher{registry: registry, outbox: outbox}
}

// DispatchLocal invokes every matching local subscriber synchronously, in
// registration order. The first handler error aborts delivery and propagates
// so the caller can roll back its transaction: a local-dispatch failure is
// an entity-commit failure, not a delivery failure.
func (d *Dispatcher) DispatchLocal(ctx context.Context, events []event.DomainEvent) error {
	for _, evt := range events {
		for _, handler := range d.registry.LocalHandlersFor(evt.EventType) {
			if err := handler(ctx, evt); err != nil {
				return fmt.Errorf("local handler for %s: %w", evt.EventType, err)
			}
		}
	}
	return nil
}

// EnqueueForPublish hands integration events to the outbox inside tx, the
// same transaction as the business write. A duplicate event_id is a benign
// re-publish attempt and is absorbed by the store.
func (d *Dispatcher) EnqueueForPublish(ctx context.Context, tx *gorm.DB, events []event.IntegrationEvent) error {
	if len(events) == 0 {
		return nil
	}
	return d.outbox.Enqueue(ctx, tx, events)
}
