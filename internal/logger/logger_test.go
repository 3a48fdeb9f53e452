package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/rs/zerolog"
)

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, zerolog.WarnLevel)

	log.Info().Msg("hidden")
	log.Warn().Str("arena_id", "A1").Msg("shown")

	out := buf.String()
	assert.T(t, !strings.Contains(out, "hidden"))
	assert.T(t, strings.Contains(out, `"arena_id":"A1"`))
}

func TestNewReadsLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, zerolog.ErrorLevel, New().GetLevel())

	t.Setenv("LOG_LEVEL", "nonsense")
	assert.Equal(t, zerolog.DebugLevel, New().GetLevel())
}
