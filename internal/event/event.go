package event

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// DomainEvent is an immutable fact recorded by domain logic during a state
// mutation. It is delivered synchronously inside the originating transaction
// and is never persisted or shipped across domain boundaries on its own.
type DomainEvent struct {
	EventType     string    `json:"event_type"`
	AggregateID   string    `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	Timestamp     time.Time `json:"timestamp"`
	Version       int64     `json:"version"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Payload       Payload   `json:"payload"`
}

// NewDomainEvent builds a domain event for the given aggregate. Version is the
// aggregate's post-mutation version and must increase monotonically per aggregate.
func NewDomainEvent(aggregateType, aggregateID string, version int64, correlationID string, payload Payload) DomainEvent {
	return DomainEvent{
		EventType:     payload.EventType(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now().UTC(),
		Version:       version,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// IntegrationEvent is the cross-domain projection of a DomainEvent. EventID is
// the idempotency key consumers deduplicate on; the outbox enforces uniqueness
// on insert as well.
type IntegrationEvent struct {
	DomainEvent

	EventID      string `json:"event_id"`
	EventVersion string `json:"event_version"`
	Source       string `json:"source"`
}

// SchemaVersion is the wire schema version stamped on every integration event.
const SchemaVersion = "v1"

// Integration projects a domain event into its cross-domain form. Called at
// commit time by the publishing domain; the result is what the outbox stores.
func Integration(evt DomainEvent, source string) IntegrationEvent {
	return IntegrationEvent{
		DomainEvent:  evt,
		EventID:      ulid.Make().String(),
		EventVersion: SchemaVersion,
		Source:       source,
	}
}
