package bus

import (
	"context"
	"fmt"
	"sync"
)

// CommandHandler performs one synchronous cross-domain operation and returns
// its outcome. Retry policy belongs to the caller, not the bus.
type CommandHandler func(ctx context.Context, payload any) (any, error)

// CommandBus routes a command name to its single registered handler. Used by
// the process manager to perform side effects in other domains and observe
// the result before choosing the next step.
type CommandBus struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

func NewCommandBus() *CommandBus {
	return &CommandBus{handlers: make(map[string]CommandHandler)}
}

// Register binds a handler to a command name. A second registration for the
// same name is a wiring mistake and fails loudly at startup.
func (b *CommandBus) Register(name string, h CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("command %q already has a handler", name)
	}
	b.handlers[name] = h
	return nil
}

// MustRegister is Register for wiring paths where a duplicate is fatal.
func (b *CommandBus) MustRegister(name string, h CommandHandler) {
	if err := b.Register(name, h); err != nil {
		panic(err)
	}
}

// Dispatch invokes the handler registered for name. No internal retries.
func (b *CommandBus) Dispatch(ctx context.Context, name string, payload any) (any, error) {
	b.mu.RLock()
	handler, ok := b.handlers[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for command %q", name)
	}
	return handler(ctx, payload)
}
