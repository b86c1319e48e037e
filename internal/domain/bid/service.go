package bid

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/pkg/telemetry/correlation"
)

// Service owns the bidding domain's write path. Accepting a bid is the
// marketplace's flagship mutation: the business write, the synchronous local
// dispatch, and the outbox enqueue all commit or roll back together.
type Service struct {
	db         *gorm.DB
	dispatcher *bus.Dispatcher
	logger     *zap.Logger
}

func NewService(db *gorm.DB, dispatcher *bus.Dispatcher, logger *zap.Logger) *Service {
	return &Service{db: db, dispatcher: dispatcher, logger: logger.Named("bid")}
}

// AcceptBid accepts the bid and rejects every competing pending bid on the
// same project. Raises bid.accepted and project.awarded (plus bid.rejected
// for each loser) as integration events through the outbox, and delivers the
// domain events to local subscribers inside the same transaction, so a local
// handler error rolls the whole acceptance back.
func (s *Service) AcceptBid(ctx context.Context, bidID int64) (*Bid, error) {
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)

	var accepted Bid
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b Bid
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", bidID).
			First(&b).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}
		if !b.CanAccept() {
			return fmt.Errorf("%w: bid %d is %s", ErrInvalidState, bidID, b.Status)
		}

		b.MarkAccepted()
		if err := tx.Save(&b).Error; err != nil {
			return err
		}

		var losers []Bid
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("project_id = ? AND status = ? AND id <> ?", b.ProjectID, string(StatusPending), b.ID).
			Find(&losers).Error
		if err != nil {
			return err
		}

		bidIDStr := strconv.FormatInt(b.ID, 10)
		domainEvents := []event.DomainEvent{
			event.NewDomainEvent("bid", bidIDStr, b.Version, correlationID, event.BidAccepted{
				BidID:        bidIDStr,
				ProjectID:    b.ProjectID,
				ContractorID: b.ContractorID,
				HomeownerID:  b.HomeownerID,
				AmountCents:  b.AmountCents,
			}),
			event.NewDomainEvent("project", b.ProjectID, b.Version, correlationID, event.ProjectAwarded{
				ProjectID:    b.ProjectID,
				ContractorID: b.ContractorID,
				BidID:        bidIDStr,
			}),
		}

		for i := range losers {
			losers[i].MarkRejected()
			if err := tx.Save(&losers[i]).Error; err != nil {
				return err
			}
			loserID := strconv.FormatInt(losers[i].ID, 10)
			domainEvents = append(domainEvents, event.NewDomainEvent("bid", loserID, losers[i].Version, correlationID, event.BidRejected{
				BidID:     loserID,
				ProjectID: b.ProjectID,
				Reason:    "project awarded to another bid",
			}))
		}

		// Local subscribers run inside this transaction; any error here
		// fails the acceptance.
		if err := s.dispatcher.DispatchLocal(ctx, domainEvents); err != nil {
			return err
		}

		integration := make([]event.IntegrationEvent, 0, len(domainEvents))
		for _, evt := range domainEvents {
			integration = append(integration, event.Integration(evt, "bidding"))
		}
		if err := s.dispatcher.EnqueueForPublish(ctx, tx, integration); err != nil {
			return err
		}

		accepted = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bid_accepted",
		zap.Int64("bid_id", accepted.ID),
		zap.String("project_id", accepted.ProjectID),
		zap.String("correlation_id", correlationID),
	)
	return &accepted, nil
}

// FindByID loads one bid.
func (s *Service) FindByID(ctx context.Context, bidID int64) (*Bid, error) {
	var b Bid
	if err := s.db.WithContext(ctx).Where("id = ?", bidID).First(&b).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
