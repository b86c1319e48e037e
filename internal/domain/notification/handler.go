package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
)

// CommandSend queues a notification for a recipient. Delivery channels
// (email, SMS, push) consume the notifications table out of band.
const CommandSend = "notification.send"

type SendInput struct {
	RecipientID string
	Template    string
	Subject     string
	Body        string
	DedupeKey   string
}

type SendResult struct {
	NotificationID string
}

// Notification is one queued message. DedupeKey makes redelivered commands
// and events collapse into a single row.
type Notification struct {
	ID          int64  `gorm:"primaryKey"`
	RecipientID string `gorm:"type:varchar(100);not null;index"`
	Template    string `gorm:"type:varchar(100);not null"`
	Subject     string `gorm:"type:varchar(255)"`
	Body        string `gorm:"type:text"`
	DedupeKey   string `gorm:"type:varchar(200);uniqueIndex"`
	CreatedAt   time.Time
}

func (Notification) TableName() string {
	return "notifications"
}

// Service owns the notification domain. Besides its command handler it
// subscribes to marketplace events that warrant a message on their own.
type Service struct {
	db        *gorm.DB
	snowflake *snowflake.Node
	logger    *zap.Logger
}

func NewService(db *gorm.DB, snowflake *snowflake.Node, logger *zap.Logger) *Service {
	return &Service{db: db, snowflake: snowflake, logger: logger.Named("notification")}
}

// RegisterCommands binds this domain's command handlers onto the bus.
func (s *Service) RegisterCommands(commands *bus.CommandBus) error {
	return commands.Register(CommandSend, s.handleSend)
}

// RegisterSubscriptions wires event-driven notifications: bid rejections go
// out without any workflow involvement.
func (s *Service) RegisterSubscriptions(registry *bus.Registry) {
	registry.Subscribe(event.TypeBidRejected, s.onBidRejected)
}

func (s *Service) handleSend(ctx context.Context, payload any) (any, error) {
	input, ok := payload.(SendInput)
	if !ok {
		return nil, fmt.Errorf("notification.send: unexpected payload type %T", payload)
	}
	if input.RecipientID == "" || input.Template == "" {
		return nil, fmt.Errorf("notification.send: recipient_id and template are required")
	}

	id, err := s.enqueue(ctx, input)
	if err != nil {
		return nil, err
	}
	return SendResult{NotificationID: strconv.FormatInt(id, 10)}, nil
}

func (s *Service) onBidRejected(ctx context.Context, evt event.IntegrationEvent) error {
	payload, ok := evt.Payload.(event.BidRejected)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", evt.Payload, evt.EventType)
	}

	_, err := s.enqueue(ctx, SendInput{
		RecipientID: payload.BidID, // the bid owner resolves the recipient downstream
		Template:    "bid_rejected",
		Subject:     "Your bid was not selected",
		Body:        payload.Reason,
		DedupeKey:   "bid_rejected:" + evt.EventID,
	})
	return err
}

func (s *Service) enqueue(ctx context.Context, input SendInput) (int64, error) {
	dedupe := input.DedupeKey
	if dedupe == "" {
		dedupe = fmt.Sprintf("%s:%s", input.Template, input.RecipientID)
	}

	var existing Notification
	err := s.db.WithContext(ctx).Where("dedupe_key = ?", dedupe).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, err
	}

	row := Notification{
		ID:          s.snowflake.GenerateID(),
		RecipientID: input.RecipientID,
		Template:    input.Template,
		Subject:     input.Subject,
		Body:        input.Body,
		DedupeKey:   dedupe,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}

	s.logger.Info("notification_queued",
		zap.Int64("notification_id", row.ID),
		zap.String("template", row.Template),
		zap.String("recipient_id", row.RecipientID),
	)
	return row.ID, nil
}
