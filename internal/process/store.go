package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
)

// Store persists process instances. Updates are compare-and-set on status so
// concurrent engine workers cannot resurrect a terminal instance or clobber
// each other's transitions.
type Store interface {
	// Create inserts a new instance. If one already exists for the same
	// (process_type, business_key) it is returned instead with created=false,
	// making trigger handling idempotent under redelivery.
	Create(ctx context.Context, inst *Instance) (existing *Instance, created bool, err error)

	FindByProcessID(ctx context.Context, processID string) (*Instance, error)
	ListByStatus(ctx context.Context, processType string, statuses []Status, limit int) ([]*Instance, error)

	// Update persists state/status/deadline guarded by the expected current
	// statuses. ErrStatusChanged when the guard does not match.
	Update(ctx context.Context, inst *Instance, expected []Status) error

	// ListExpired returns waiting instances whose deadline has passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Instance, error)
}

// InstanceModel is the database DTO with gorm tags.
type InstanceModel struct {
	ID          int64  `gorm:"primaryKey"`
	ProcessID   string `gorm:"type:varchar(26);uniqueIndex;not null"`
	ProcessType string `gorm:"type:varchar(100);not null;uniqueIndex:idx_process_business_key,priority:1"`
	BusinessKey string `gorm:"type:varchar(200);not null;uniqueIndex:idx_process_business_key,priority:2"`
	State       string `gorm:"type:jsonb;not null"`
	Status      string `gorm:"type:varchar(20);not null;index"`
	LastError   string `gorm:"type:text"`
	Deadline    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (InstanceModel) TableName() string {
	return "process_instances"
}

type GormStore struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewGormStore(db *gorm.DB, snowflake *snowflake.Node) *GormStore {
	return &GormStore{db: db, snowflake: snowflake}
}

func (s *GormStore) Create(ctx context.Context, inst *Instance) (*Instance, bool, error) {
	model, err := toModel(inst)
	if err != nil {
		return nil, false, err
	}
	model.ID = s.snowflake.GenerateID()

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "process_type"}, {Name: "business_key"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return nil, false, fmt.Errorf("create process instance: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		existing, err := s.findByBusinessKey(ctx, inst.ProcessType, inst.BusinessKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	inst.ID = model.ID
	return inst, true, nil
}

func (s *GormStore) FindByProcessID(ctx context.Context, processID string) (*Instance, error) {
	var model InstanceModel
	if err := s.db.WithContext(ctx).Where("process_id = ?", processID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(model)
}

func (s *GormStore) findByBusinessKey(ctx context.Context, processType, key string) (*Instance, error) {
	var model InstanceModel
	err := s.db.WithContext(ctx).
		Where("process_type = ? AND business_key = ?", processType, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(model)
}

func (s *GormStore) ListByStatus(ctx context.Context, processType string, statuses []Status, limit int) ([]*Instance, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}

	query := s.db.WithContext(ctx).
		Where("process_type = ? AND status IN ?", processType, values).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []InstanceModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainSlice(models)
}

func (s *GormStore) Update(ctx context.Context, inst *Instance, expected []Status) error {
	if len(expected) == 0 {
		return errors.New("update requires expected statuses")
	}
	guards := make([]string, 0, len(expected))
	for _, status := range expected {
		guards = append(guards, string(status))
	}

	stateJSON, err := json.Marshal(inst.State)
	if err != nil {
		return fmt.Errorf("serialize state for %s: %w", inst.ProcessID, err)
	}

	result := s.db.WithContext(ctx).Model(&InstanceModel{}).
		Where("process_id = ? AND status IN ?", inst.ProcessID, guards).
		Updates(map[string]any{
			"state":      string(stateJSON),
			"status":     string(inst.Status),
			"last_error": inst.LastError,
			"deadline":   inst.Deadline,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update %s: %w", inst.ProcessID, ErrStatusChanged)
	}
	return nil
}

func (s *GormStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Instance, error) {
	query := s.db.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline <= ?", string(StatusWaiting), now).
		Order("deadline ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []InstanceModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainSlice(models)
}

// Mappers

func toModel(d *Instance) (InstanceModel, error) {
	stateJSON, err := json.Marshal(d.State)
	if err != nil {
		return InstanceModel{}, fmt.Errorf("serialize state for %s: %w", d.ProcessID, err)
	}
	return InstanceModel{
		ID:          d.ID,
		ProcessID:   d.ProcessID,
		ProcessType: d.ProcessType,
		BusinessKey: d.BusinessKey,
		State:       string(stateJSON),
		Status:      string(d.Status),
		LastError:   d.LastError,
		Deadline:    d.Deadline,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func toDomain(m InstanceModel) (*Instance, error) {
	var state State
	if m.State != "" {
		if err := json.Unmarshal([]byte(m.State), &state); err != nil {
			return nil, fmt.Errorf("deserialize state for %s: %w", m.ProcessID, err)
		}
	}
	return &Instance{
		ID:          m.ID,
		ProcessID:   m.ProcessID,
		ProcessType: m.ProcessType,
		BusinessKey: m.BusinessKey,
		State:       state,
		Status:      Status(m.Status),
		LastError:   m.LastError,
		Deadline:    m.Deadline,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func toDomainSlice(models []InstanceModel) ([]*Instance, error) {
	items := make([]*Instance, 0, len(models))
	for _, model := range models {
		item, err := toDomain(model)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
