package process

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/bus"
	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/pkg/telemetry/correlation"
)

// resumeBatchSize bounds how many waiting instances one event can touch in a
// single delivery. Anything beyond the bound is picked up on redelivery or by
// the next relevant event.
const resumeBatchSize = 100

// Engine owns process instances: it creates them on triggers, advances them
// step by step through the command bus, and resumes waiting instances when
// relayed integration events arrive. All stepping happens inline on the
// caller's goroutine: a waiting instance is a persisted row, not a parked
// thread.
type Engine struct {
	store    Store
	commands *bus.CommandBus
	logger   *zap.Logger

	order       []string
	definitions map[string]Definition
}

func NewEngine(store Store, commands *bus.CommandBus, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		commands:    commands,
		logger:      logger.Named("process.engine"),
		definitions: make(map[string]Definition),
	}
}

// Register adds a workflow definition. Duplicate process types are a wiring
// error.
func (e *Engine) Register(def Definition) error {
	processType := def.ProcessType()
	if _, exists := e.definitions[processType]; exists {
		return fmt.Errorf("process type %q already registered", processType)
	}
	e.definitions[processType] = def
	e.order = append(e.order, processType)
	return nil
}

// Subscribe wires the engine into the integration registry for every event
// type the marketplace publishes, so relayed events reach HandleEvent.
func (e *Engine) Subscribe(registry *bus.Registry, eventTypes ...string) {
	for _, eventType := range eventTypes {
		registry.Subscribe(eventType, e.HandleEvent)
	}
}

// Start creates an instance for the trigger and immediately attempts the
// first step. Starting twice for the same business key is a no-op thanks to
// the store's conflict handling, since the trigger may be redelivered.
func (e *Engine) Start(ctx context.Context, def Definition, trigger event.IntegrationEvent) error {
	key, ok := def.BusinessKey(trigger)
	if !ok {
		return fmt.Errorf("event %s is not a trigger for %s", trigger.EventType, def.ProcessType())
	}

	state, err := def.BuildInitialState(trigger)
	if err != nil {
		return fmt.Errorf("build initial state for %s: %w", def.ProcessType(), err)
	}

	inst, created, err := e.store.Create(ctx, NewInstance(def.ProcessType(), key, state))
	if err != nil {
		return err
	}
	if !created {
		e.logger.Debug("process_trigger_duplicate",
			zap.String("process_type", def.ProcessType()),
			zap.String("business_key", key),
			zap.String("event_id", trigger.EventID),
		)
		return nil
	}

	e.logger.Info("process_started",
		zap.String("process_type", def.ProcessType()),
		zap.String("process_id", inst.ProcessID),
		zap.String("business_key", key),
	)

	ctx = correlation.ContextWithCorrelationID(ctx, trigger.CorrelationID)
	ctx = correlation.ContextWithCausationID(ctx, trigger.EventID)
	return e.step(ctx, def, inst)
}

// HandleEvent is the engine's integration subscriber. It starts new instances
// for trigger events and resumes waiting instances the event is relevant to.
// All matching instances resume; their business keys scope them to disjoint
// data so no ordering between them is needed.
func (e *Engine) HandleEvent(ctx context.Context, evt event.IntegrationEvent) error {
	for _, processType := range e.order {
		def := e.definitions[processType]

		if _, ok := def.BusinessKey(evt); ok {
			if err := e.Start(ctx, def, evt); err != nil {
				return err
			}
		}

		if err := e.resumeWaiting(ctx, def, evt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) resumeWaiting(ctx context.Context, def Definition, evt event.IntegrationEvent) error {
	waiting, err := e.store.ListByStatus(ctx, def.ProcessType(), []Status{StatusWaiting}, resumeBatchSize)
	if err != nil {
		return fmt.Errorf("list waiting %s instances: %w", def.ProcessType(), err)
	}

	for _, inst := range waiting {
		if !def.IsRelevantEvent(inst.State, evt) {
			continue
		}

		state, err := def.UpdateStateFromEvent(inst.State, evt)
		if err != nil {
			e.fail(ctx, inst, fmt.Errorf("fold event %s: %w", evt.EventID, err))
			continue
		}
		inst.State = state
		inst.MarkRunning()
		if err := e.store.Update(ctx, inst, []Status{StatusWaiting}); err != nil {
			// Lost the race to another worker or the instance went terminal;
			// either way this delivery has nothing left to do.
			e.logger.Warn("process_resume_conflict",
				zap.Error(err),
				zap.String("process_id", inst.ProcessID),
				zap.String("event_id", evt.EventID),
			)
			continue
		}

		e.logger.Info("process_resumed",
			zap.String("process_type", def.ProcessType()),
			zap.String("process_id", inst.ProcessID),
			zap.String("event_id", evt.EventID),
		)

		stepCtx := correlation.ContextWithCorrelationID(ctx, evt.CorrelationID)
		stepCtx = correlation.ContextWithCausationID(stepCtx, evt.EventID)
		if err := e.step(stepCtx, def, inst); err != nil {
			return err
		}
	}
	return nil
}

// step drives the instance until it waits, completes, or fails. Commands run
// back to back without waiting for an external event; a command failure is
// terminal for the instance and is recorded, not re-thrown.
func (e *Engine) step(ctx context.Context, def Definition, inst *Instance) error {
	for {
		switch action := def.DetermineNextAction(inst.State).(type) {
		case ActionCommand:
			result, err := e.commands.Dispatch(ctx, action.Name, action.Payload)
			if err != nil {
				e.fail(ctx, inst, fmt.Errorf("command %s: %w", action.Name, err))
				return nil
			}

			state, err := def.UpdateStateFromCommandResult(inst.State, action.Name, result)
			if err != nil {
				e.fail(ctx, inst, fmt.Errorf("fold result of %s: %w", action.Name, err))
				return nil
			}
			inst.State = state
			inst.Status = StatusStarted
			inst.UpdatedAt = time.Now().UTC()
			if err := e.store.Update(ctx, inst, []Status{StatusStarted}); err != nil {
				return fmt.Errorf("persist %s after %s: %w", inst.ProcessID, action.Name, err)
			}

		case ActionWait:
			deadline := time.Time{}
			if timeout := def.Timeout(); timeout > 0 {
				deadline = time.Now().UTC().Add(timeout)
			}
			inst.MarkWaiting(deadline)
			if err := e.store.Update(ctx, inst, []Status{StatusStarted}); err != nil {
				return fmt.Errorf("park %s: %w", inst.ProcessID, err)
			}
			return nil

		case ActionComplete:
			inst.MarkCompleted()
			if err := e.store.Update(ctx, inst, []Status{StatusStarted}); err != nil {
				return fmt.Errorf("complete %s: %w", inst.ProcessID, err)
			}
			e.logger.Info("process_completed",
				zap.String("process_type", def.ProcessType()),
				zap.String("process_id", inst.ProcessID),
			)
			return nil

		default:
			e.fail(ctx, inst, fmt.Errorf("definition returned unknown action %T", action))
			return nil
		}
	}
}

// fail moves the instance to failed with the cause recorded. Operators see it
// through the persisted status; nothing is re-thrown to the caller.
func (e *Engine) fail(ctx context.Context, inst *Instance, cause error) {
	e.logger.Error("process_failed",
		zap.Error(cause),
		zap.String("process_type", inst.ProcessType),
		zap.String("process_id", inst.ProcessID),
	)

	inst.MarkFailed(cause.Error())
	if err := e.store.Update(ctx, inst, []Status{StatusStarted, StatusWaiting}); err != nil {
		e.logger.Error("process_fail_persist_failed",
			zap.Error(err),
			zap.String("process_id", inst.ProcessID),
		)
	}
}
