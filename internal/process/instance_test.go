package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusStarted.Terminal())
	assert.False(t, StatusWaiting.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"started to waiting", StatusStarted, StatusWaiting, true},
		{"started to completed", StatusStarted, StatusCompleted, true},
		{"started to failed", StatusStarted, StatusFailed, true},
		{"waiting to started", StatusWaiting, StatusStarted, true},
		{"waiting to failed", StatusWaiting, StatusFailed, true},
		{"completed is sticky", StatusCompleted, StatusStarted, false},
		{"failed is sticky", StatusFailed, StatusWaiting, false},
		{"failed never completes", StatusFailed, StatusCompleted, false},
		{"self transition", StatusWaiting, StatusWaiting, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNewInstance(t *testing.T) {
	inst := NewInstance("bid_accepted", "bid-1", State{"bid_id": "bid-1"})

	assert.NotEmpty(t, inst.ProcessID)
	assert.Equal(t, StatusStarted, inst.Status)
	assert.Equal(t, "bid_accepted", inst.ProcessType)
	assert.Equal(t, "bid-1", inst.BusinessKey)
	assert.Nil(t, inst.Deadline)
}

func TestInstance_MarkWaiting(t *testing.T) {
	inst := NewInstance("bid_accepted", "bid-1", State{})

	deadline := time.Now().UTC().Add(time.Hour)
	inst.MarkWaiting(deadline)
	assert.Equal(t, StatusWaiting, inst.Status)
	assert.NotNil(t, inst.Deadline)
	assert.Equal(t, deadline, *inst.Deadline)

	// Zero deadline waits forever.
	inst.MarkWaiting(time.Time{})
	assert.Nil(t, inst.Deadline)
}

func TestInstance_MarkFailedRecordsCause(t *testing.T) {
	inst := NewInstance("bid_accepted", "bid-1", State{})
	inst.MarkWaiting(time.Now().UTC().Add(time.Hour))

	inst.MarkFailed("deadline exceeded")
	assert.Equal(t, StatusFailed, inst.Status)
	assert.Equal(t, "deadline exceeded", inst.LastError)
	assert.Nil(t, inst.Deadline)
}

func TestState_CloneDoesNotAlias(t *testing.T) {
	original := State{"bid_id": "bid-1"}
	clone := original.Clone()
	clone["contract_id"] = "contract-1"

	assert.Empty(t, original.GetString("contract_id"))
	assert.Equal(t, "contract-1", clone.GetString("contract_id"))
}

func TestState_TypedReads(t *testing.T) {
	s := State{"name": "x", "flag": true, "number": 42}

	assert.Equal(t, "x", s.GetString("name"))
	assert.Empty(t, s.GetString("missing"))
	assert.Empty(t, s.GetString("number"))
	assert.True(t, s.GetBool("flag"))
	assert.False(t, s.GetBool("name"))
}
