package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/event"
)

// fakeRelayStore drives the relay without a database.
type fakeRelayStore struct {
	records   []Record
	published []int64
	failures  []int64
}

func (s *fakeRelayStore) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]Record, error) {
	if len(s.records) == 0 {
		return nil, nil
	}
	batch := s.records
	if len(batch) > limit {
		batch = batch[:limit]
	}
	s.records = s.records[len(batch):]
	return batch, nil
}

func (s *fakeRelayStore) MarkPublished(ctx context.Context, id int64) error {
	s.published = append(s.published, id)
	return nil
}

func (s *fakeRelayStore) RecordFailure(ctx context.Context, id int64, cause error) error {
	s.failures = append(s.failures, id)
	return nil
}

func (s *fakeRelayStore) CountUnpublished(ctx context.Context) (int64, error) {
	return int64(len(s.records)), nil
}

func newTestRecord(t *testing.T, id int64, payload event.Payload) Record {
	t.Helper()
	evt := event.Integration(event.NewDomainEvent("bid", "bid-1", 1, "corr-1", payload), "bid")
	body, err := event.MarshalIntegration(evt)
	require.NoError(t, err)
	return Record{
		ID:        id,
		EventID:   evt.EventID,
		EventType: evt.EventType,
		Payload:   string(body),
	}
}

func TestRelay_DeliversToAllSubscribers(t *testing.T) {
	event.RegisterDefaults()

	store := &fakeRelayStore{}
	store.records = append(store.records, newTestRecord(t, 1, event.BidAccepted{BidID: "bid-1", ProjectID: "proj-1"}))

	registry := bus.NewRegistry()
	var received []string
	registry.Subscribe(event.TypeBidAccepted, func(ctx context.Context, evt event.IntegrationEvent) error {
		received = append(received, "a:"+evt.EventID)
		return nil
	})
	registry.Subscribe(event.TypeBidAccepted, func(ctx context.Context, evt event.IntegrationEvent) error {
		received = append(received, "b:"+evt.EventID)
		return nil
	})

	relay := NewRelay(store, registry, RelayConfig{BatchSize: 10}, zap.NewNop())
	require.NoError(t, relay.Poll(context.Background()))

	assert.Len(t, received, 2)
	assert.Equal(t, []int64{1}, store.published)
	assert.Empty(t, store.failures)
}

func TestRelay_SubscriberErrorDoesNotBlockPublish(t *testing.T) {
	event.RegisterDefaults()

	store := &fakeRelayStore{}
	store.records = append(store.records, newTestRecord(t, 7, event.BidAccepted{BidID: "bid-7"}))

	registry := bus.NewRegistry()
	var secondRan bool
	registry.Subscribe(event.TypeBidAccepted, func(ctx context.Context, evt event.IntegrationEvent) error {
		return assert.AnError
	})
	registry.Subscribe(event.TypeBidAccepted, func(ctx context.Context, evt event.IntegrationEvent) error {
		secondRan = true
		return nil
	})

	relay := NewRelay(store, registry, RelayConfig{BatchSize: 10}, zap.NewNop())
	require.NoError(t, relay.Poll(context.Background()))

	assert.True(t, secondRan, "delivery must continue past a failing subscriber")
	assert.Equal(t, []int64{7}, store.published)
}

func TestRelay_PanickingSubscriberIsContained(t *testing.T) {
	event.RegisterDefaults()

	store := &fakeRelayStore{}
	store.records = append(store.records, newTestRecord(t, 9, event.BidAccepted{BidID: "bid-9"}))

	registry := bus.NewRegistry()
	registry.Subscribe(event.TypeBidAccepted, func(ctx context.Context, evt event.IntegrationEvent) error {
		panic("subscriber bug")
	})

	relay := NewRelay(store, registry, RelayConfig{BatchSize: 10}, zap.NewNop())
	require.NoError(t, relay.Poll(context.Background()))

	assert.Equal(t, []int64{9}, store.published)
}

func TestRelay_UndecodableRecordStaysUnpublished(t *testing.T) {
	event.RegisterDefaults()

	store := &fakeRelayStore{}
	store.records = append(store.records, Record{
		ID:        3,
		EventID:   "bad-record",
		EventType: "bid.accepted",
		Payload:   "{not json",
	})

	registry := bus.NewRegistry()
	var delivered bool
	registry.Subscribe(event.TypeBidAccepted, func(ctx context.Context, evt event.IntegrationEvent) error {
		delivered = true
		return nil
	})

	relay := NewRelay(store, registry, RelayConfig{BatchSize: 10}, zap.NewNop())
	require.NoError(t, relay.Poll(context.Background()))

	assert.False(t, delivered)
	assert.Empty(t, store.published)
	assert.Equal(t, []int64{3}, store.failures)
}

func TestRelay_NoSubscribersStillPublishes(t *testing.T) {
	event.RegisterDefaults()

	store := &fakeRelayStore{}
	store.records = append(store.records, newTestRecord(t, 4, event.ProjectAwarded{ProjectID: "proj-4"}))

	relay := NewRelay(store, bus.NewRegistry(), RelayConfig{BatchSize: 10}, zap.NewNop())
	require.NoError(t, relay.Poll(context.Background()))

	assert.Equal(t, []int64{4}, store.published)
}
