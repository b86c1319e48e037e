package process

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper fails waiting instances whose deadline has passed. The business
// flows the engine coordinates (payment setup in particular) are not safe to
// wait on forever; a reaped instance surfaces to operators as failed instead
// of lingering silently.
type Reaper struct {
	store     Store
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewReaper(store Store, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		store:     store,
		logger:    logger.Named("process.reaper"),
		interval:  interval,
		batchSize: 50,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	if err := r.Reap(ctx); err != nil {
		r.logger.Error("reap_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reap(ctx); err != nil {
				r.logger.Error("reap_failed", zap.Error(err))
			}
		}
	}
}

// Reap runs one sweep. Exported so tests can drive a cycle without the ticker.
func (r *Reaper) Reap(ctx context.Context) error {
	expired, err := r.store.ListExpired(ctx, time.Now().UTC(), r.batchSize)
	if err != nil {
		return err
	}

	for _, inst := range expired {
		inst.MarkFailed("deadline exceeded")
		if err := r.store.Update(ctx, inst, []Status{StatusWaiting}); err != nil {
			// A concurrent worker resumed or failed it first. Fine.
			r.logger.Warn("reap_conflict", zap.Error(err), zap.String("process_id", inst.ProcessID))
			continue
		}
		r.logger.Warn("process_reaped",
			zap.String("process_type", inst.ProcessType),
			zap.String("process_id", inst.ProcessID),
			zap.String("business_key", inst.BusinessKey),
		)
	}
	return nil
}
