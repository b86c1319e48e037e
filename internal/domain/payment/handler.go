package payment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/pkg/paygate"
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
	"github.com/instabidslabs/instabids-cloud/pkg/telemetry/correlation"
)

// CommandSetup asks the payment domain to open escrow for a contract. The
// gateway confirms asynchronously, so the result is a pending setup; the
// workflow waits for the confirmation event.
const CommandSetup = "payment.setup"

type SetupInput struct {
	ContractID  string
	PayerID     string
	PayeeID     string
	AmountCents int64
}

type SetupResult struct {
	PaymentSetupID string
	EscrowID       string
	Confirmed      bool
}

// Service owns the payment domain's write path and the gateway boundary.
type Service struct {
	db         *gorm.DB
	gateway    *paygate.Client
	dispatcher *bus.Dispatcher
	snowflake  *snowflake.Node
	logger     *zap.Logger
}

func NewService(db *gorm.DB, gateway *paygate.Client, dispatcher *bus.Dispatcher, snowflake *snowflake.Node, logger *zap.Logger) *Service {
	return &Service{
		db:         db,
		gateway:    gateway,
		dispatcher: dispatcher,
		snowflake:  snowflake,
		logger:     logger.Named("payment"),
	}
}

// RegisterCommands binds this domain's command handlers onto the bus.
func (s *Service) RegisterCommands(commands *bus.CommandBus) error {
	return commands.Register(CommandSetup, s.handleSetup)
}

func (s *Service) handleSetup(ctx context.Context, payload any) (any, error) {
	input, ok := payload.(SetupInput)
	if !ok {
		return nil, fmt.Errorf("payment.setup: unexpected payload type %T", payload)
	}
	if input.ContractID == "" {
		return nil, fmt.Errorf("payment.setup: contract_id is required")
	}

	setup := Setup{
		ID:          s.snowflake.GenerateID(),
		ContractID:  input.ContractID,
		PayerID:     input.PayerID,
		PayeeID:     input.PayeeID,
		AmountCents: input.AmountCents,
		Status:      string(SetupPending),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	// Redelivered command: reuse the existing setup instead of opening a
	// second escrow.
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_id"}},
		DoNothing: true,
	}).Create(&setup)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		var existing Setup
		if err := s.db.WithContext(ctx).Where("contract_id = ?", input.ContractID).First(&existing).Error; err != nil {
			return nil, err
		}
		return SetupResult{
			PaymentSetupID: strconv.FormatInt(existing.ID, 10),
			EscrowID:       existing.EscrowID,
			Confirmed:      existing.Status == string(SetupConfirmed),
		}, nil
	}

	escrow, err := s.gateway.CreateEscrow(ctx, paygate.CreateEscrowRequest{
		ReferenceID: input.ContractID,
		PayerID:     input.PayerID,
		PayeeID:     input.PayeeID,
		AmountCents: input.AmountCents,
		Currency:    "USD",
	})
	if err != nil {
		// The row stays pending without an escrow ID; the command fails and
		// the workflow records it.
		_ = s.db.WithContext(ctx).Model(&Setup{}).
			Where("id = ?", setup.ID).
			Updates(map[string]any{"last_error": err.Error(), "updated_at": time.Now().UTC()})
		return nil, fmt.Errorf("create escrow for contract %s: %w", input.ContractID, err)
	}

	if err := s.db.WithContext(ctx).Model(&Setup{}).
		Where("id = ?", setup.ID).
		Updates(map[string]any{"escrow_id": escrow.ID, "updated_at": time.Now().UTC()}).Error; err != nil {
		return nil, err
	}

	s.logger.Info("payment_setup_opened",
		zap.Int64("payment_setup_id", setup.ID),
		zap.String("contract_id", input.ContractID),
		zap.String("escrow_id", escrow.ID),
	)

	return SetupResult{
		PaymentSetupID: strconv.FormatInt(setup.ID, 10),
		EscrowID:       escrow.ID,
		Confirmed:      escrow.Status == paygate.EscrowActive,
	}, nil
}

// ConfirmFromGateway handles an escrow status webhook. It flips the setup row
// and enqueues the integration event that resumes waiting workflow instances,
// both in one transaction. Repeated webhooks for the same escrow are no-ops
// once the row left pending.
func (s *Service) ConfirmFromGateway(ctx context.Context, escrowID, gatewayStatus, reason string) error {
	var target SetupStatus
	switch gatewayStatus {
	case paygate.EscrowActive:
		target = SetupConfirmed
	case paygate.EscrowDeclined:
		target = SetupDeclined
	default:
		return nil // intermediate states carry no information for us
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var setup Setup
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("escrow_id = ?", escrowID).
			First(&setup).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				s.logger.Warn("payment_webhook_unknown_escrow", zap.String("escrow_id", escrowID))
				return nil
			}
			return err
		}
		if setup.Status != string(SetupPending) {
			return nil
		}

		updates := map[string]any{
			"status":     string(target),
			"updated_at": time.Now().UTC(),
		}
		if reason != "" {
			updates["last_error"] = reason
		}
		if err := tx.Model(&Setup{}).Where("id = ?", setup.ID).Updates(updates).Error; err != nil {
			return err
		}

		setupID := strconv.FormatInt(setup.ID, 10)
		_, correlationID := correlation.EnsureCorrelationID(ctx)

		var payload event.Payload
		if target == SetupConfirmed {
			payload = event.PaymentSetupCompleted{PaymentSetupID: setupID, ContractID: setup.ContractID}
		} else {
			payload = event.PaymentSetupFailed{PaymentSetupID: setupID, ContractID: setup.ContractID, Reason: reason}
		}

		evt := event.NewDomainEvent("payment_setup", setupID, 2, correlationID, payload)
		return s.dispatcher.EnqueueForPublish(ctx, tx, []event.IntegrationEvent{
			event.Integration(evt, "payments"),
		})
	})
}
