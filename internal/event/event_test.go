package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainEvent(t *testing.T) {
	payload := BidAccepted{BidID: "b1", ProjectID: "p1", ContractorID: "c1", AmountCents: 250000}
	evt := NewDomainEvent("bid", "b1", 3, "corr-1", payload)

	assert.Equal(t, TypeBidAccepted, evt.EventType)
	assert.Equal(t, "b1", evt.AggregateID)
	assert.Equal(t, "bid", evt.AggregateType)
	assert.Equal(t, int64(3), evt.Version)
	assert.Equal(t, "corr-1", evt.CorrelationID)
	assert.NotZero(t, evt.Timestamp)
}

func TestIntegration(t *testing.T) {
	evt := NewDomainEvent("bid", "b1", 1, "corr-1", BidAccepted{BidID: "b1"})
	first := Integration(evt, "bidding")
	second := Integration(evt, "bidding")

	assert.Equal(t, "bidding", first.Source)
	assert.Equal(t, SchemaVersion, first.EventVersion)
	assert.NotEmpty(t, first.EventID)
	// Each projection gets its own idempotency key.
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestMarshalUnmarshalIntegration(t *testing.T) {
	RegisterDefaults()

	evt := NewDomainEvent("bid", "b1", 2, "corr-9", BidAccepted{
		BidID:        "b1",
		ProjectID:    "p1",
		ContractorID: "c1",
		HomeownerID:  "h1",
		AmountCents:  125000,
	})
	evt.CausationID = "cause-1"
	ie := Integration(evt, "bidding")

	data, err := MarshalIntegration(ie)
	require.NoError(t, err)

	decoded, err := UnmarshalIntegration(data)
	require.NoError(t, err)

	assert.Equal(t, ie.EventID, decoded.EventID)
	assert.Equal(t, ie.EventType, decoded.EventType)
	assert.Equal(t, ie.Source, decoded.Source)
	assert.Equal(t, ie.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, ie.CausationID, decoded.CausationID)
	assert.Equal(t, ie.Version, decoded.Version)
	assert.WithinDuration(t, ie.Timestamp, decoded.Timestamp, time.Microsecond)

	payload, ok := decoded.Payload.(BidAccepted)
	require.True(t, ok)
	assert.Equal(t, "b1", payload.BidID)
	assert.Equal(t, int64(125000), payload.AmountCents)
}

func TestUnmarshalIntegration_UnknownType(t *testing.T) {
	RegisterDefaults()

	_, err := UnmarshalIntegration([]byte(`{"event_id":"e1","event_type":"ghost.event","payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload registered")
}

func TestRegisterPayload_DuplicatePanics(t *testing.T) {
	RegisterPayload[BidAccepted]("event_test.duplicate")
	assert.Panics(t, func() {
		RegisterPayload[BidAccepted]("event_test.duplicate")
	})
}
