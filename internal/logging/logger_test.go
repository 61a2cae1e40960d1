package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"info", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestForBeforeInit(t *testing.T) {
	defer func(v bool) { initialized.Store(v) }(initialized.Load())
	defer func(l zerolog.Logger) { log.Logger = l }(log.Logger)
	initialized.Store(false)

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	logger := For("registry")
	logger.Debug().Msg("backend registered")
	logger.Error().Msg("boom")
	assert.Empty(t, buf.String())
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}

func TestInitAndFor(t *testing.T) {
	defer func(v bool) { initialized.Store(v) }(initialized.Load())
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	defer func(l zerolog.Logger) { log.Logger = l }(log.Logger)

	var buf bytes.Buffer
	Init("debug", &buf)

	logger := For("registry")
	logger.Debug().Str("protocol", "mem").Msg("registered")
	assert.Contains(t, buf.String(), "registered")
	assert.Contains(t, buf.String(), "registry")
	assert.Contains(t, buf.String(), "mem")

	buf.Reset()
	Init("error", &buf)
	logger = For("registry")
	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())
}
