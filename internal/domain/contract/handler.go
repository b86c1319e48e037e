package contract

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
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
	"github.com/instabidslabs/instabids-cloud/pkg/telemetry/correlation"
)

// CommandCreate is invoked by the post-acceptance workflow to turn an
// accepted bid into a contract.
const CommandCreate = "contract.create"

// CreateInput is the payload for CommandCreate.
type CreateInput struct {
	BidID        string
	ProjectID    string
	ContractorID string
	HomeownerID  string
	AmountCents  int64
}

// CreateResult is the outcome the workflow folds into its state.
type CreateResult struct {
	ContractID string
}

// Service owns the contract domain's write path.
type Service struct {
	db         *gorm.DB
	dispatcher *bus.Dispatcher
	snowflake  *snowflake.Node
	logger     *zap.Logger
}

func NewService(db *gorm.DB, dispatcher *bus.Dispatcher, snowflake *snowflake.Node, logger *zap.Logger) *Service {
	return &Service{
		db:         db,
		dispatcher: dispatcher,
		snowflake:  snowflake,
		logger:     logger.Named("contract"),
	}
}

// RegisterCommands binds this domain's command handlers onto the bus.
func (s *Service) RegisterCommands(commands *bus.CommandBus) error {
	return commands.Register(CommandCreate, s.handleCreate)
}

func (s *Service) handleCreate(ctx context.Context, payload any) (any, error) {
	input, ok := payload.(CreateInput)
	if !ok {
		return nil, fmt.Errorf("contract.create: unexpected payload type %T", payload)
	}
	if input.BidID == "" || input.ProjectID == "" {
		return nil, fmt.Errorf("contract.create: bid_id and project_id are required")
	}

	contract := Contract{
		ID:           s.snowflake.GenerateID(),
		BidID:        input.BidID,
		ProjectID:    input.ProjectID,
		ContractorID: input.ContractorID,
		HomeownerID:  input.HomeownerID,
		AmountCents:  input.AmountCents,
		Status:       string(StatusDraft),
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The workflow may re-dispatch after a crash; a contract already
		// existing for the bid makes the command idempotent.
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bid_id"}},
			DoNothing: true,
		}).Create(&contract)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var existing Contract
			if err := tx.Where("bid_id = ?", input.BidID).First(&existing).Error; err != nil {
				return err
			}
			contract = existing
			return nil
		}

		_, correlationID := correlation.EnsureCorrelationID(ctx)
		evt := event.NewDomainEvent("contract", strconv.FormatInt(contract.ID, 10), 1, correlationID, event.ContractCreated{
			ContractID: strconv.FormatInt(contract.ID, 10),
			BidID:      contract.BidID,
			ProjectID:  contract.ProjectID,
		})
		evt.CausationID = correlation.ExtractCausationID(ctx)

		return s.dispatcher.EnqueueForPublish(ctx, tx, []event.IntegrationEvent{
			event.Integration(evt, "contracts"),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("contract_created",
		zap.Int64("contract_id", contract.ID),
		zap.String("bid_id", contract.BidID),
	)

	return CreateResult{ContractID: strconv.FormatInt(contract.ID, 10)}, nil
}
