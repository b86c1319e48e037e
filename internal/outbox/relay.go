package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/event"
)

// RelayStore is the slice of the outbox store the relay drives. Kept as an
// interface so delivery semantics can be tested without a database.
type RelayStore interface {
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]Record, error)
	MarkPublished(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, cause error) error
	CountUnpublished(ctx context.Context) (int64, error)
}

// Relay polls the outbox and delivers unpublished records to every subscriber
// registered for the record's event type. Delivery is at-least-once: a record
// is marked published after delivery was attempted to all subscribers, so a
// crash mid-batch redelivers on the next poll and subscribers must dedupe on
// event_id.
type Relay struct {
	store        RelayStore
	registry     *bus.Registry
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int

	inFlight atomic.Bool
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts quarantines records claimed more than this many times.
	// Zero keeps the base behavior: unbounded retry.
	MaxAttempts int
}

func NewRelay(store RelayStore, registry *bus.Registry, cfg RelayConfig, logger *zap.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Relay{
		store:        store,
		registry:     registry,
		logger:       logger.Named("outbox.relay"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
	}
}

// Run polls until ctx is cancelled. A tick that fires while the previous
// batch is still executing is skipped rather than stacked.
func (r *Relay) Run(ctx context.Context) {
	if err := r.Poll(ctx); err != nil {
		r.logger.Error("relay_initial_poll_failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Poll(ctx); err != nil {
				r.logger.Error("relay_poll_failed", zap.Error(err))
			}
		}
	}
}

// Poll processes one batch. Exported so tests and the admin surface can drive
// a cycle without the ticker.
func (r *Relay) Poll(ctx context.Context) error {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Warn("relay_tick_skipped_overlap")
		return nil
	}
	defer r.inFlight.Store(false)

	records, err := r.store.ClaimBatch(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		return fmt.Errorf("claim batch: %w", err)
	}

	for _, record := range records {
		r.processRecord(ctx, record)
	}

	if backlog, err := r.store.CountUnpublished(ctx); err == nil {
		unpublishedGauge.Set(float64(backlog))
	}

	return nil
}

// processRecord delivers one record. A record-level failure (undecodable
// body) leaves the row unpublished for the next poll; a subscriber failure is
// logged and does not stop delivery to the remaining subscribers, nor does it
// keep the record from being marked published.
func (r *Relay) processRecord(ctx context.Context, record Record) {
	evt, err := event.UnmarshalIntegration([]byte(record.Payload))
	if err != nil {
		r.logger.Error("relay_record_undecodable",
			zap.Error(err),
			zap.String("event_id", record.EventID),
			zap.String("event_type", record.EventType),
			zap.Int("attempts", record.Attempts),
		)
		recordFailures.Inc()
		if ferr := r.store.RecordFailure(ctx, record.ID, err); ferr != nil {
			r.logger.Error("relay_record_failure_update_failed", zap.Error(ferr), zap.String("event_id", record.EventID))
		}
		return
	}

	for i, handler := range r.registry.HandlersFor(record.EventType) {
		if err := r.invoke(ctx, handler, evt); err != nil {
			deliveryErrors.Inc()
			r.logger.Warn("relay_subscriber_failed",
				zap.Error(err),
				zap.String("event_id", record.EventID),
				zap.String("event_type", record.EventType),
				zap.Int("subscriber", i),
			)
		}
	}

	if err := r.store.MarkPublished(ctx, record.ID); err != nil {
		r.logger.Error("relay_mark_published_failed", zap.Error(err), zap.String("event_id", record.EventID))
		return
	}
	delivered.Inc()
}

// invoke shields the relay from panicking subscribers; one bad handler must
// not take the polling loop down.
func (r *Relay) invoke(ctx context.Context, handler bus.IntegrationHandler, evt event.IntegrationEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subscriber panic: %v", rec)
		}
	}()
	return handler(ctx, evt)
}
