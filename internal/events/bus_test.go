package events

import (
	"io"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/rs/zerolog"
)

func TestEmitRunsHandlersInOrder(t *testing.T) {
	bus := NewBus(zerolog.New(io.Discard))

	var got []string
	bus.On("statsUpdated", func(p any) { got = append(got, "first:"+p.(string)) })
	bus.On("statsUpdated", func(p any) { got = append(got, "second:"+p.(string)) })
	bus.On("other", func(p any) { got = append(got, "other") })

	failed := bus.Emit("statsUpdated", "x")

	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"first:x", "second:x"}, got)
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(zerolog.New(io.Discard))

	calls := 0
	bus.On("battleDeleted", func(any) { calls++ })
	bus.On("battleDeleted", func(any) { panic("boom") })
	bus.On("battleDeleted", func(any) { calls++ })

	failed := bus.Emit("battleDeleted", nil)

	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, calls)
}

func TestEmitWithoutHandlers(t *testing.T) {
	bus := NewBus(zerolog.New(io.Discard))
	assert.Equal(t, 0, bus.Emit("dataImported", nil))
}

func TestNilHandlerIgnored(t *testing.T) {
	bus := NewBus(zerolog.New(io.Discard))
	bus.On("statsUpdated", nil)
	assert.Equal(t, 0, bus.Emit("statsUpdated", nil))
}
