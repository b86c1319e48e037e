package payment

import "time"

// SetupStatus mirrors the gateway-side escrow lifecycle.
type SetupStatus string

const (
	SetupPending   SetupStatus = "pending"
	SetupConfirmed SetupStatus = "confirmed"
	SetupDeclined  SetupStatus = "declined"
)

// Setup tracks one escrow arrangement for a contract. The gateway confirms
// asynchronously; the webhook path moves the row out of pending.
type Setup struct {
	ID          int64  `gorm:"primaryKey"`
	ContractID  string `gorm:"type:varchar(100);uniqueIndex;not null"`
	EscrowID    string `gorm:"type:varchar(100);index"`
	PayerID     string `gorm:"type:varchar(100);not null"`
	PayeeID     string `gorm:"type:varchar(100);not null"`
	AmountCents int64  `gorm:"not null"`
	Status      string `gorm:"type:varchar(20);not null"`
	LastError   string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Setup) TableName() string {
	return "payment_setups"
}
