package contract

import (
	"time"
)

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	StatusDraft  ContractStatus = "draft"
	StatusActive ContractStatus = "active"
	StatusVoided ContractStatus = "voided"
)

// Contract binds an accepted bid into an agreement between homeowner and
// contractor. Created exclusively through the create command so the
// post-acceptance workflow is the single writer.
type Contract struct {
	ID           int64  `gorm:"primaryKey"`
	BidID        string `gorm:"type:varchar(100);uniqueIndex;not null"`
	ProjectID    string `gorm:"type:varchar(100);not null;index"`
	ContractorID string `gorm:"type:varchar(100);not null"`
	HomeownerID  string `gorm:"type:varchar(100);not null"`
	AmountCents  int64  `gorm:"not null"`
	Status       string `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Contract) TableName() string {
	return "contracts"
}
