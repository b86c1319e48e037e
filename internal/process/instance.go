package process

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a process instance. Transitions only move
// forward; completed and failed are terminal and never left.
type Status string

const (
	StatusStarted   Status = "started"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status can never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var validTransitions = map[Status][]Status{
	StatusStarted: {StatusStarted, StatusWaiting, StatusCompleted, StatusFailed},
	StatusWaiting: {StatusStarted, StatusWaiting, StatusCompleted, StatusFailed},
}

// CanTransition reports whether current may move to target.
func CanTransition(current, target Status) bool {
	if current == target {
		return true
	}
	for _, allowed := range validTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

var (
	ErrTerminal      = errors.New("process instance is in a terminal status")
	ErrStatusChanged = errors.New("process instance status changed concurrently")
)

// Instance is one persisted occurrence of a cross-domain workflow. It carries
// everything accumulated across steps in State; the engine is the only writer.
type Instance struct {
	ID          int64
	ProcessID   string
	ProcessType string
	BusinessKey string
	State       State
	Status      Status
	LastError   string
	Deadline    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewInstance allocates a started instance for the given workflow occurrence.
func NewInstance(processType, businessKey string, state State) *Instance {
	now := time.Now().UTC()
	return &Instance{
		ProcessID:   ulid.Make().String(),
		ProcessType: processType,
		BusinessKey: businessKey,
		State:       state,
		Status:      StatusStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkWaiting parks the instance until a relevant event arrives. A deadline of
// zero means the instance may wait forever.
func (i *Instance) MarkWaiting(deadline time.Time) {
	i.Status = StatusWaiting
	if deadline.IsZero() {
		i.Deadline = nil
	} else {
		d := deadline
		i.Deadline = &d
	}
	i.UpdatedAt = time.Now().UTC()
}

// MarkRunning returns a parked instance to active stepping.
func (i *Instance) MarkRunning() {
	i.Status = StatusStarted
	i.Deadline = nil
	i.UpdatedAt = time.Now().UTC()
}

// MarkCompleted finishes the instance successfully.
func (i *Instance) MarkCompleted() {
	i.Status = StatusCompleted
	i.Deadline = nil
	i.UpdatedAt = time.Now().UTC()
}

// MarkFailed finishes the instance with the causing error recorded for
// operators. Compensation, if any, is a domain concern layered on top.
func (i *Instance) MarkFailed(errMsg string) {
	i.Status = StatusFailed
	i.LastError = errMsg
	i.Deadline = nil
	i.UpdatedAt = time.Now().UTC()
}
