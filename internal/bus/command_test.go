package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBus_Dispatch(t *testing.T) {
	commands := NewCommandBus()

	err := commands.Register("contract.create", func(ctx context.Context, payload any) (any, error) {
		return "contract-1", nil
	})
	require.NoError(t, err)

	result, err := commands.Dispatch(context.Background(), "contract.create", nil)
	require.NoError(t, err)
	assert.Equal(t, "contract-1", result)
}

func TestCommandBus_DuplicateRegistration(t *testing.T) {
	commands := NewCommandBus()
	handler := func(ctx context.Context, payload any) (any, error) { return nil, nil }

	require.NoError(t, commands.Register("contract.create", handler))

	err := commands.Register("contract.create", handler)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already has a handler")
}

func TestCommandBus_UnknownCommand(t *testing.T) {
	commands := NewCommandBus()

	_, err := commands.Dispatch(context.Background(), "no.such.command", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no handler registered")
}

func TestCommandBus_HandlerErrorPropagates(t *testing.T) {
	commands := NewCommandBus()
	boom := errors.New("gateway unavailable")

	require.NoError(t, commands.Register("payment.setup", func(ctx context.Context, payload any) (any, error) {
		return nil, boom
	}))

	_, err := commands.Dispatch(context.Background(), "payment.setup", nil)
	assert.ErrorIs(t, err, boom)
}
