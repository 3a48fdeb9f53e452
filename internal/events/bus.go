package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives the payload passed to Emit.
type Handler func(payload any)

// Bus is a synchronous publish/subscribe dispatcher. Handlers for an event
// run in registration order; a panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: map[string][]Handler{},
		logger:   logger,
	}
}

func (b *Bus) On(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], h)
}

// Emit returns the number of handlers that failed.
func (b *Bus) Emit(event string, payload any) int {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event]))
	copy(handlers, b.handlers[event])
	b.mu.RUnlock()

	failed := 0
	for i, h := range handlers {
		if err := b.invoke(h, payload); err != nil {
			failed++
			b.logger.Error().
				Err(err).
				Str("event", event).
				Int("handler", i).
				Msg("event handler failed")
		}
	}
	return failed
}

func (b *Bus) invoke(h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	h(payload)
	return nil
}
