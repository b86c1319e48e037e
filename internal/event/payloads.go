package event

import "sync"

// Event types published across the marketplace domains. Names are
// "<aggregate>.<fact>" so subscriptions read naturally in wiring code.
const (
	TypeBidAccepted           = "bid.accepted"
	TypeBidRejected           = "bid.rejected"
	TypeProjectAwarded        = "project.awarded"
	TypeContractCreated       = "contract.created"
	TypePaymentSetupCompleted = "payment.setup_completed"
	TypePaymentSetupFailed    = "payment.setup_failed"
	TypeNotificationSent      = "notification.sent"
)

// BidAccepted is raised when a homeowner accepts a contractor's bid. It is the
// trigger for the post-acceptance workflow (contract, payment, notification).
type BidAccepted struct {
	BidID        string `json:"bid_id"`
	ProjectID    string `json:"project_id"`
	ContractorID string `json:"contractor_id"`
	HomeownerID  string `json:"homeowner_id"`
	AmountCents  int64  `json:"amount_cents"`
}

func (BidAccepted) EventType() string { return TypeBidAccepted }

// BidRejected is raised when a bid is declined, explicitly or by awarding the
// project to a competing bid.
type BidRejected struct {
	BidID     string `json:"bid_id"`
	ProjectID string `json:"project_id"`
	Reason    string `json:"reason,omitempty"`
}

func (BidRejected) EventType() string { return TypeBidRejected }

// ProjectAwarded is raised alongside BidAccepted so project-scoped consumers
// do not need to know about bids.
type ProjectAwarded struct {
	ProjectID    string `json:"project_id"`
	ContractorID string `json:"contractor_id"`
	BidID        string `json:"bid_id"`
}

func (ProjectAwarded) EventType() string { return TypeProjectAwarded }

// ContractCreated is raised by the contract domain once a contract row exists
// for an accepted bid.
type ContractCreated struct {
	ContractID string `json:"contract_id"`
	BidID      string `json:"bid_id"`
	ProjectID  string `json:"project_id"`
}

func (ContractCreated) EventType() string { return TypeContractCreated }

// PaymentSetupCompleted is raised by the payment domain when the gateway
// confirms an escrow/payment setup. Resumes waiting workflow instances.
type PaymentSetupCompleted struct {
	PaymentSetupID string `json:"payment_setup_id"`
	ContractID     string `json:"contract_id"`
}

func (PaymentSetupCompleted) EventType() string { return TypePaymentSetupCompleted }

// PaymentSetupFailed is the terminal counterpart of PaymentSetupCompleted.
type PaymentSetupFailed struct {
	PaymentSetupID string `json:"payment_setup_id"`
	ContractID     string `json:"contract_id"`
	Reason         string `json:"reason,omitempty"`
}

func (PaymentSetupFailed) EventType() string { return TypePaymentSetupFailed }

// NotificationSent is raised by the notification domain after a message was
// handed to its delivery channel.
type NotificationSent struct {
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
	Template       string `json:"template"`
}

func (NotificationSent) EventType() string { return TypeNotificationSent }

var registerDefaultsOnce sync.Once

// RegisterDefaults registers payload codecs for every marketplace event type.
// Safe to call from both application wiring and tests.
func RegisterDefaults() {
	registerDefaultsOnce.Do(registerDefaults)
}

func registerDefaults() {
	RegisterPayload[BidAccepted](TypeBidAccepted)
	RegisterPayload[BidRejected](TypeBidRejected)
	RegisterPayload[ProjectAwarded](TypeProjectAwarded)
	RegisterPayload[ContractCreated](TypeContractCreated)
	RegisterPayload[PaymentSetupCompleted](TypePaymentSetupCompleted)
	RegisterPayload[PaymentSetupFailed](TypePaymentSetupFailed)
	RegisterPayload[NotificationSent](TypeNotificationSent)
}
