package outbox

import "time"

// Record is a durable outbox row wrapping one serialized integration event.
// Inserted in the same transaction as the business write that produced the
// event; flipped to published exactly once by the relay. Rows are never
// deleted here; retention is an operational concern outside this service.
type Record struct {
	ID            int64  `gorm:"primaryKey"`
	EventID       string `gorm:"type:varchar(26);uniqueIndex;not null"`
	EventType     string `gorm:"type:varchar(100);not null;index"`
	EventVersion  string `gorm:"type:varchar(20);not null"`
	Source        string `gorm:"type:varchar(100);not null"`
	AggregateID   string `gorm:"type:varchar(100);not null"`
	AggregateType string `gorm:"type:varchar(100);not null"`
	CorrelationID string `gorm:"type:varchar(100)"`
	Payload       string `gorm:"type:text;not null"`
	Published     bool   `gorm:"not null;default:false;index:idx_outbox_pending,where:published = false"`
	Quarantined   bool   `gorm:"not null;default:false"`
	Attempts      int    `gorm:"not null;default:0"`
	LastError     string `gorm:"type:text"`
	PublishedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Record) TableName() string {
	return "outbox_records"
}
