package event

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Payload is the business content of an event. One concrete type exists per
// event type; the envelope stays generic while each payload is fully typed.
type Payload interface {
	EventType() string
}

// codecRegistry maps event types to payload decoders. Populated once at
// startup via RegisterPayload; lookups after that are read-only.
type codecRegistry struct {
	mu       sync.RWMutex
	decoders map[string]func([]byte) (Payload, error)
}

var codecs = &codecRegistry{decoders: make(map[string]func([]byte) (Payload, error))}

// RegisterPayload binds an event type to its concrete payload type. Registering
// the same event type twice is a configuration error and panics at startup so
// the mistake cannot reach a running relay.
func RegisterPayload[T Payload](eventType string) {
	codecs.mu.Lock()
	defer codecs.mu.Unlock()
	if _, exists := codecs.decoders[eventType]; exists {
		panic(fmt.Sprintf("event: payload already registered for %q", eventType))
	}
	codecs.decoders[eventType] = func(data []byte) (Payload, error) {
		var p T
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// DecodePayload decodes raw JSON into the registered payload type for eventType.
func DecodePayload(eventType string, data []byte) (Payload, error) {
	codecs.mu.RLock()
	decode, ok := codecs.decoders[eventType]
	codecs.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("event: no payload registered for %q", eventType)
	}
	return decode(data)
}

// envelope is the serialized form of an IntegrationEvent. Payload is kept raw
// so decoding can be deferred until the event type is known.
type envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  string          `json:"event_version"`
	Source        string          `json:"source"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Timestamp     string          `json:"timestamp"`
	Version       int64           `json:"version"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// MarshalIntegration serializes an integration event for outbox storage.
func MarshalIntegration(evt IntegrationEvent) ([]byte, error) {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", evt.EventType, err)
	}
	return json.Marshal(envelope{
		EventID:       evt.EventID,
		EventType:     evt.EventType,
		EventVersion:  evt.EventVersion,
		Source:        evt.Source,
		AggregateID:   evt.AggregateID,
		AggregateType: evt.AggregateType,
		Timestamp:     evt.Timestamp.Format(timeLayout),
		Version:       evt.Version,
		CorrelationID: evt.CorrelationID,
		CausationID:   evt.CausationID,
		Payload:       body,
	})
}

// UnmarshalIntegration deserializes an outbox body back into a typed event.
// Fails if the event type has no registered payload.
func UnmarshalIntegration(data []byte) (IntegrationEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return IntegrationEvent{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	payload, err := DecodePayload(env.EventType, env.Payload)
	if err != nil {
		return IntegrationEvent{}, err
	}

	ts, err := parseTimestamp(env.Timestamp)
	if err != nil {
		return IntegrationEvent{}, fmt.Errorf("parse timestamp for %s: %w", env.EventID, err)
	}

	return IntegrationEvent{
		DomainEvent: DomainEvent{
			EventType:     env.EventType,
			AggregateID:   env.AggregateID,
			AggregateType: env.AggregateType,
			Timestamp:     ts,
			Version:       env.Version,
			CorrelationID: env.CorrelationID,
			CausationID:   env.CausationID,
			Payload:       payload,
		},
		EventID:      env.EventID,
		EventVersion: env.EventVersion,
		Source:       env.Source,
	}, nil
}
