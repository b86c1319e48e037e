package bid_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/domain/bid"
	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/internal/outbox"
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
	"github.com/instabidslabs/instabids-cloud/pkg/testhelper"
)

func TestService_AcceptBid_Integration(t *testing.T) {
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

	db, err := gorm.Open(pgdriver.Open(pg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&bid.Bid{}, &outbox.Record{}))

	node, err := snowflake.NewNode()
	require.NoError(t, err)
	store := outbox.NewStore(db, node)

	seedBid := func(t *testing.T, projectID string, status bid.BidStatus) *bid.Bid {
		t.Helper()
		b := &bid.Bid{
			ID:           node.GenerateID(),
			ProjectID:    projectID,
			ContractorID: "contractor-1",
			HomeownerID:  "homeowner-1",
			AmountCents:  250000,
			Status:       string(status),
		}
		require.NoError(t, db.Create(b).Error)
		return b
	}

	outboxTypes := func(t *testing.T) map[string]int {
		t.Helper()
		var records []outbox.Record
		require.NoError(t, db.Find(&records).Error)
		counts := make(map[string]int)
		for _, r := range records {
			counts[r.EventType]++
		}
		return counts
	}

	t.Run("AcceptRejectsCompetitorsAndEnqueues", func(t *testing.T) {
		registry := bus.NewRegistry()
		svc := bid.NewService(db, bus.NewDispatcher(registry, store), zap.NewNop())

		winner := seedBid(t, "proj-1", bid.StatusPending)
		loser := seedBid(t, "proj-1", bid.StatusPending)
		withdrawn := seedBid(t, "proj-1", bid.StatusWithdrawn)

		accepted, err := svc.AcceptBid(ctx, winner.ID)
		require.NoError(t, err)
		assert.Equal(t, string(bid.StatusAccepted), accepted.Status)

		rejected, err := svc.FindByID(ctx, loser.ID)
		require.NoError(t, err)
		assert.Equal(t, string(bid.StatusRejected), rejected.Status)

		untouched, err := svc.FindByID(ctx, withdrawn.ID)
		require.NoError(t, err)
		assert.Equal(t, string(bid.StatusWithdrawn), untouched.Status)

		counts := outboxTypes(t)
		assert.Equal(t, 1, counts[event.TypeBidAccepted])
		assert.Equal(t, 1, counts[event.TypeProjectAwarded])
		assert.Equal(t, 1, counts[event.TypeBidRejected])
	})

	t.Run("SecondAcceptConflicts", func(t *testing.T) {
		registry := bus.NewRegistry()
		svc := bid.NewService(db, bus.NewDispatcher(registry, store), zap.NewNop())

		b := seedBid(t, "proj-2", bid.StatusPending)
		_, err := svc.AcceptBid(ctx, b.ID)
		require.NoError(t, err)

		_, err = svc.AcceptBid(ctx, b.ID)
		assert.ErrorIs(t, err, bid.ErrInvalidState)
	})

	t.Run("LocalHandlerErrorRollsBackEverything", func(t *testing.T) {
		registry := bus.NewRegistry()
		registry.SubscribeLocal(event.TypeBidAccepted, func(ctx context.Context, evt event.DomainEvent) error {
			return errors.New("ledger projection rejected the write")
		})
		svc := bid.NewService(db, bus.NewDispatcher(registry, store), zap.NewNop())

		b := seedBid(t, "proj-3", bid.StatusPending)
		before := outboxTypes(t)

		_, err := svc.AcceptBid(ctx, b.ID)
		require.Error(t, err)

		// The bid write rolled back with the failed dispatch.
		reloaded, err := svc.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, string(bid.StatusPending), reloaded.Status)

		// And nothing leaked into the outbox.
		assert.Equal(t, before, outboxTypes(t))
	})

	t.Run("UnknownBid", func(t *testing.T) {
		registry := bus.NewRegistry()
		svc := bid.NewService(db, bus.NewDispatcher(registry, store), zap.NewNop())

		_, err := svc.AcceptBid(ctx, 999999999)
		assert.ErrorIs(t, err, bid.ErrNotFound)
	})
}
