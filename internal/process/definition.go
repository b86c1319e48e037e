package process

import (
	"time"

	"github.com/instabidslabs/instabids-cloud/internal/event"
)

// State is the data a workflow accumulates across steps, persisted as a JSON
// document. Definitions treat it as immutable input and return a new value.
type State map[string]any

// Clone returns a shallow copy safe for a definition to extend.
func (s State) Clone() State {
	out := make(State, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// GetString reads a string field, returning "" when absent or mistyped.
// JSON round-trips turn everything loosely typed, so reads go through here.
func (s State) GetString(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// GetBool reads a boolean field, defaulting to false.
func (s State) GetBool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// Action is what a definition tells the engine to do next. Closed union:
// exactly one of the three concrete types below.
type Action interface {
	isAction()
}

// ActionCommand instructs the engine to dispatch a command and fold its
// result into state before deciding again.
type ActionCommand struct {
	Name    string
	Payload any
}

// ActionWait parks the instance until a relevant event arrives.
type ActionWait struct{}

// ActionComplete finishes the instance successfully.
type ActionComplete struct{}

func (ActionCommand) isAction()  {}
func (ActionWait) isAction()     {}
func (ActionComplete) isAction() {}

// Definition supplies the pure decision functions for one workflow type. This
// is the sole extension point for adding sagas: implementations hold no
// mutable state and every transition is testable without a database.
//
// UpdateStateFromEvent and UpdateStateFromCommandResult must be idempotent;
// the relay may redeliver events, so folding the same logical occurrence
// twice has to leave state unchanged.
type Definition interface {
	// ProcessType names the workflow, e.g. "bid_accepted".
	ProcessType() string

	// Timeout bounds how long an instance may sit waiting before the reaper
	// fails it. Zero disables the deadline.
	Timeout() time.Duration

	// BusinessKey returns the key scoping one workflow occurrence when evt is
	// a trigger for this process type; ok is false for non-trigger events.
	BusinessKey(evt event.IntegrationEvent) (key string, ok bool)

	// BuildInitialState computes the state of a fresh instance from its trigger.
	BuildInitialState(evt event.IntegrationEvent) (State, error)

	// IsRelevantEvent reports whether a waiting instance with the given state
	// should be resumed by evt.
	IsRelevantEvent(state State, evt event.IntegrationEvent) bool

	// UpdateStateFromEvent folds a relevant event into state.
	UpdateStateFromEvent(state State, evt event.IntegrationEvent) (State, error)

	// UpdateStateFromCommandResult folds a successful command outcome into state.
	UpdateStateFromCommandResult(state State, command string, result any) (State, error)

	// DetermineNextAction decides the next step from current state alone.
	DetermineNextAction(state State) Action
}
