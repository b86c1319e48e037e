package bid

import (
	"errors"
	"time"
)

// BidStatus is the lifecycle state of a bid.
type BidStatus string

const (
	StatusPending   BidStatus = "pending"
	StatusAccepted  BidStatus = "accepted"
	StatusRejected  BidStatus = "rejected"
	StatusWithdrawn BidStatus = "withdrawn"
)

var (
	ErrNotFound     = errors.New("bid not found")
	ErrInvalidState = errors.New("invalid bid state for operation")
)

// Bid is a contractor's offer on a project. Version increases on every
// mutation and stamps the domain events the mutation raises.
type Bid struct {
	ID           int64  `gorm:"primaryKey"`
	ProjectID    string `gorm:"type:varchar(100);not null;index"`
	ContractorID string `gorm:"type:varchar(100);not null"`
	HomeownerID  string `gorm:"type:varchar(100);not null"`
	AmountCents  int64  `gorm:"not null"`
	Status       string `gorm:"type:varchar(20);not null"`
	Version      int64  `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Bid) TableName() string {
	return "bids"
}

// CanAccept reports whether the bid may be accepted.
func (b *Bid) CanAccept() bool {
	return BidStatus(b.Status) == StatusPending
}

// MarkAccepted transitions the bid to accepted.
func (b *Bid) MarkAccepted() {
	b.Status = string(StatusAccepted)
	b.Version++
	b.UpdatedAt = time.Now().UTC()
}

// MarkRejected transitions the bid to rejected.
func (b *Bid) MarkRejected() {
	b.Status = string(StatusRejected)
	b.Version++
	b.UpdatedAt = time.Now().UTC()
}
