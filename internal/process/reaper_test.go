package process_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/process"
)

func TestReaper_FailsExpiredWaitingInstances(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	expired := process.NewInstance("bid_accepted", "bid-old", process.State{})
	expired.MarkWaiting(time.Now().UTC().Add(-time.Minute))
	_, created, err := store.Create(ctx, expired)
	require.NoError(t, err)
	require.True(t, created)

	fresh := process.NewInstance("bid_accepted", "bid-new", process.State{})
	fresh.MarkWaiting(time.Now().UTC().Add(time.Hour))
	_, created, err = store.Create(ctx, fresh)
	require.NoError(t, err)
	require.True(t, created)

	forever := process.NewInstance("bid_accepted", "bid-forever", process.State{})
	forever.MarkWaiting(time.Time{})
	_, created, err = store.Create(ctx, forever)
	require.NoError(t, err)
	require.True(t, created)

	reaper := process.NewReaper(store, time.Minute, zap.NewNop())
	require.NoError(t, reaper.Reap(ctx))

	reaped, err := store.FindByProcessID(ctx, expired.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusFailed, reaped.Status)
	assert.Equal(t, "deadline exceeded", reaped.LastError)

	untouched, err := store.FindByProcessID(ctx, fresh.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusWaiting, untouched.Status)

	unbounded, err := store.FindByProcessID(ctx, forever.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusWaiting, unbounded.Status)
}
