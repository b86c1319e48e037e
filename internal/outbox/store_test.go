package outbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/internal/outbox"
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
	"github.com/instabidslabs/instabids-cloud/pkg/testhelper"
)

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	event.RegisterDefaults()
	ctx := context.Background()

	pg, err := testhelper.SetupPostgres(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pg.Teardown(ctx); err != nil {
			t.Logf("failed to teardown container: %v", err)
		}
	}()

	db, err := gorm.Open(postgres.Open(pg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&outbox.Record{}))

	node, err := snowflake.NewNode()
	require.NoError(t, err)

	store := outbox.NewStore(db, node)

	newEvent := func(payload event.Payload) event.IntegrationEvent {
		return event.Integration(event.NewDomainEvent("bid", "bid-1", 1, "corr-1", payload), "bid")
	}

	t.Run("EnqueueAndClaim", func(t *testing.T) {
		evt := newEvent(event.BidAccepted{BidID: "bid-1", ProjectID: "proj-1", AmountCents: 125000})
		require.NoError(t, store.Enqueue(ctx, nil, []event.IntegrationEvent{evt}))

		records, err := store.ClaimBatch(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, evt.EventID, records[0].EventID)
		assert.Equal(t, event.TypeBidAccepted, records[0].EventType)
		assert.Equal(t, 1, records[0].Attempts)

		decoded, err := event.UnmarshalIntegration([]byte(records[0].Payload))
		require.NoError(t, err)
		payload, ok := decoded.Payload.(event.BidAccepted)
		require.True(t, ok)
		assert.Equal(t, int64(125000), payload.AmountCents)

		require.NoError(t, store.MarkPublished(ctx, records[0].ID))

		count, err := store.CountUnpublished(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("DuplicateEventIDIsAbsorbed", func(t *testing.T) {
		evt := newEvent(event.ProjectAwarded{ProjectID: "proj-2", BidID: "bid-2"})

		require.NoError(t, store.Enqueue(ctx, nil, []event.IntegrationEvent{evt}))
		require.NoError(t, store.Enqueue(ctx, nil, []event.IntegrationEvent{evt}))

		var count int64
		require.NoError(t, db.Model(&outbox.Record{}).Where("event_id = ?", evt.EventID).Count(&count).Error)
		assert.Equal(t, int64(1), count)

		// Drain so later subtests start from an empty backlog.
		record, err := store.FindByEventID(ctx, evt.EventID)
		require.NoError(t, err)
		require.NotNil(t, record)
		require.NoError(t, store.MarkPublished(ctx, record.ID))
	})

	t.Run("EnqueueRollsBackWithTransaction", func(t *testing.T) {
		evt := newEvent(event.ContractCreated{ContractID: "contract-3", BidID: "bid-3"})

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := store.Enqueue(ctx, tx, []event.IntegrationEvent{evt}); err != nil {
				return err
			}
			return assert.AnError // force rollback
		})
		require.Error(t, err)

		record, err := store.FindByEventID(ctx, evt.EventID)
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("QuarantineAfterMaxAttempts", func(t *testing.T) {
		evt := newEvent(event.BidRejected{BidID: "bid-4"})
		require.NoError(t, store.Enqueue(ctx, nil, []event.IntegrationEvent{evt}))

		// Two claims bring attempts to the limit.
		for i := 0; i < 2; i++ {
			records, err := store.ClaimBatch(ctx, 10, 2)
			require.NoError(t, err)
			require.Len(t, records, 1)
		}

		// Third claim quarantines instead of returning the row.
		records, err := store.ClaimBatch(ctx, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, records)

		record, err := store.FindByEventID(ctx, evt.EventID)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.True(t, record.Quarantined)

		count, err := store.CountUnpublished(ctx)
		require.NoError(t, err)
		assert.Zero(t, count, "quarantined rows leave the backlog")
	})

	t.Run("MarkPublishedIsGuarded", func(t *testing.T) {
		evt := newEvent(event.NotificationSent{NotificationID: "n-5"})
		require.NoError(t, store.Enqueue(ctx, nil, []event.IntegrationEvent{evt}))

		record, err := store.FindByEventID(ctx, evt.EventID)
		require.NoError(t, err)
		require.NotNil(t, record)

		require.NoError(t, store.MarkPublished(ctx, record.ID))
		first, err := store.FindByEventID(ctx, evt.EventID)
		require.NoError(t, err)
		require.NotNil(t, first.PublishedAt)

		// Second call is a no-op; the publish timestamp does not move.
		require.NoError(t, store.MarkPublished(ctx, record.ID))
		second, err := store.FindByEventID(ctx, evt.EventID)
		require.NoError(t, err)
		assert.Equal(t, first.PublishedAt.UTC(), second.PublishedAt.UTC())
	})
}
