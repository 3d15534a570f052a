package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetupLogging_JSON(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	SetupLogging(true, "info", &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("provider", "ollama").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"provider":"ollama"`)
	assert.Contains(t, out, `"message":"visible"`)
}

func TestSetup_TracingDisabled(t *testing.T) {
	restoreLogging(t)

	provider, err := Setup(context.Background(), Config{
		ServiceName:    "qroute-test",
		ServiceVersion: "test",
		Environment:    "test",
		LogLevel:       "warn",
	})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	assert.Nil(t, provider.tracerProvider)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupLogging_Console(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	SetupLogging(false, "debug", &buf)

	log.Debug().Str("provider", "ollama").Msg("visible")

	out := buf.String()
	assert.Contains(t, out, "visible")
	assert.NotContains(t, out, `"message"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
