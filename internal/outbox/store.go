package outbox

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
)

// Store persists outbox records. All mutations are single-row conditional
// updates so multiple relay workers can run against the same table.
type Store struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewStore(db *gorm.DB, snowflake *snowflake.Node) *Store {
	return &Store{db: db, snowflake: snowflake}
}

// Enqueue inserts one record per integration event using the caller's
// transaction handle, so the records commit or roll back with the business
// write. A conflicting event_id means the event was already enqueued; the
// insert is skipped silently.
func (s *Store) Enqueue(ctx context.Context, tx *gorm.DB, events []event.IntegrationEvent) error {
	if tx == nil {
		tx = s.db
	}

	for _, evt := range events {
		body, err := event.MarshalIntegration(evt)
		if err != nil {
			return fmt.Errorf("serialize event %s: %w", evt.EventID, err)
		}

		record := Record{
			ID:            s.snowflake.GenerateID(),
			EventID:       evt.EventID,
			EventType:     evt.EventType,
			EventVersion:  evt.EventVersion,
			Source:        evt.Source,
			AggregateID:   evt.AggregateID,
			AggregateType: evt.AggregateType,
			CorrelationID: evt.CorrelationID,
			Payload:       string(body),
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}

		err = tx.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).
			Create(&record).Error
		if err != nil {
			return fmt.Errorf("enqueue event %s: %w", evt.EventID, err)
		}
	}

	return nil
}

// ClaimBatch fetches up to limit unpublished records oldest-first and bumps
// their attempt counter in one transaction. FOR UPDATE SKIP LOCKED keeps
// concurrent relays from claiming the same rows. When maxAttempts > 0, rows
// that have exhausted it are quarantined instead of returned.
func (s *Store) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]Record, error) {
	var records []Record
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("published = ? AND quarantined = ?", false, false).
			Order("created_at ASC").
			Limit(limit)

		if err := query.Find(&records).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		claimed := records[:0]
		var expired []int64
		for i := range records {
			if maxAttempts > 0 && records[i].Attempts >= maxAttempts {
				expired = append(expired, records[i].ID)
				continue
			}
			records[i].Attempts++
			claimed = append(claimed, records[i])
		}

		if len(expired) > 0 {
			if err := tx.Model(&Record{}).
				Where("id IN ?", expired).
				Updates(map[string]any{
					"quarantined": true,
					"updated_at":  now,
				}).Error; err != nil {
				return err
			}
		}

		records = claimed
		if len(records) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}

		return tx.Model(&Record{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			}).Error
	})

	return records, err
}

// MarkPublished flips published false→true for one record. The guard keeps a
// redelivered record from being published twice with a fresher timestamp.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND published = ?", id, false).
		Updates(map[string]any{
			"published":    true,
			"published_at": now,
			"last_error":   "",
			"updated_at":   now,
		}).Error
}

// RecordFailure notes a record-level processing failure. The row stays
// unpublished and is picked up again on the next poll.
func (s *Store) RecordFailure(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error": msg,
			"updated_at": time.Now().UTC(),
		}).Error
}

// CountUnpublished reports the delivery backlog, excluding quarantined rows.
func (s *Store) CountUnpublished(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where("published = ? AND quarantined = ?", false, false).
		Count(&count).Error
	return count, err
}

// FindByEventID loads one record for admin inspection.
func (s *Store) FindByEventID(ctx context.Context, eventID string) (*Record, error) {
	var record Record
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
