package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/api"
	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/config"
	"github.com/instabidslabs/instabids-cloud/internal/domain/bid"
	"github.com/instabidslabs/instabids-cloud/internal/domain/contract"
	"github.com/instabidslabs/instabids-cloud/internal/domain/notification"
	"github.com/instabidslabs/instabids-cloud/internal/domain/payment"
	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/internal/outbox"
	"github.com/instabidslabs/instabids-cloud/internal/process"
	"github.com/instabidslabs/instabids-cloud/internal/workflow/bidaccepted"
	"github.com/instabidslabs/instabids-cloud/pkg/db"
	zaplog "github.com/instabidslabs/instabids-cloud/pkg/log"
	"github.com/instabidslabs/instabids-cloud/pkg/paygate"
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
	"github.com/instabidslabs/instabids-cloud/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	event.RegisterDefaults()

	app := fx.New(
		fx.Provide(
			// Config
			config.Load,
			newDBConfig,

			// Infrastructure (Adapters)
			paygate.NewFromEnv,

			// Event core
			bus.NewRegistry,
			bus.NewCommandBus,
			outbox.NewStore,
			newOutboxAppender,
			bus.NewDispatcher,
			newRelay,

			// Process manager
			fx.Annotate(
				process.NewGormStore,
				fx.As(new(process.Store)),
			),
			process.NewEngine,
			newReaper,
			newBidAcceptedWorkflow,

			// Domain Services
			bid.NewService,
			contract.NewService,
			payment.NewService,
			notification.NewService,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerWiring),
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		if err == migrate.ErrNoChange {
			logger.Info("No changes to apply")
		} else {
			logger.Info("Migration up applied successfully")
		}
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied successfully")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

// registerWiring binds command handlers, event subscriptions and workflow
// definitions. Runs once at startup, before any worker starts polling.
func registerWiring(
	registry *bus.Registry,
	commands *bus.CommandBus,
	engine *process.Engine,
	workflow *bidaccepted.Definition,
	contractSvc *contract.Service,
	paymentSvc *payment.Service,
	notificationSvc *notification.Service,
) error {
	if err := contractSvc.RegisterCommands(commands); err != nil {
		return err
	}
	if err := paymentSvc.RegisterCommands(commands); err != nil {
		return err
	}
	if err := notificationSvc.RegisterCommands(commands); err != nil {
		return err
	}

	notificationSvc.RegisterSubscriptions(registry)

	if err := engine.Register(workflow); err != nil {
		return err
	}
	engine.Subscribe(registry,
		event.TypeBidAccepted,
		event.TypePaymentSetupCompleted,
		event.TypePaymentSetupFailed,
	)

	return nil
}

func registerHooks(lc fx.Lifecycle, router *api.Router, relay *outbox.Relay, reaper *process.Reaper, cfg *config.Config, logger *zap.Logger) {
	var relayCancel context.CancelFunc
	var reaperCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			relayCancel = cancel
			go relay.Run(relayCtx)

			reaperCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			reaperCancel = cancel
			go reaper.Run(reaperCtx)

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			if relayCancel != nil {
				relayCancel()
			}
			if reaperCancel != nil {
				reaperCancel()
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}

// newDBConfig maps service configuration onto the database module's settings.
func newDBConfig(cfg *config.Config) db.Config {
	return db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		SSLMode:  cfg.DBSSLMode,

		MaxIdleConns:    cfg.DBMaxIdleConn,
		MaxOpenConns:    cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
}

func newOutboxAppender(store *outbox.Store) bus.OutboxAppender {
	return store
}

func newRelay(store *outbox.Store, registry *bus.Registry, cfg *config.Config, logger *zap.Logger) *outbox.Relay {
	return outbox.NewRelay(store, registry, outbox.RelayConfig{
		PollInterval: cfg.RelayInterval,
		BatchSize:    cfg.RelayBatchSize,
		MaxAttempts:  cfg.RelayMaxAttempts,
	}, logger)
}

func newReaper(store process.Store, cfg *config.Config, logger *zap.Logger) *process.Reaper {
	return process.NewReaper(store, cfg.ReaperInterval, logger)
}

func newBidAcceptedWorkflow(cfg *config.Config) *bidaccepted.Definition {
	return bidaccepted.New(cfg.PaymentWaitTimeout)
}
