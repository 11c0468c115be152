package source_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finextract/internal/config"
	"finextract/internal/port"
	"finextract/internal/source"
)

func TestNewSource_Remote(t *testing.T) {
	s, err := source.NewSource(&config.SourceConfig{
		Provider: source.ProviderRemote,
		Name:     "ocr",
		Endpoint: "http://localhost:9/extract",
	}, nil)
	require.NoError(t, err)
	_, ok := s.(*source.RemoteSource)
	assert.True(t, ok)
	assert.Equal(t, "ocr", s.Name())
}

func TestNewSource_UnknownProvider(t *testing.T) {
	_, err := source.NewSource(&config.SourceConfig{Provider: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source provider")
}

func TestRegisterProvider(t *testing.T) {
	stub := &stubSource{name: "stub"}
	source.RegisterProvider("stub", func(_ *config.SourceConfig, _ *zap.Logger) (port.ExtractionSource, error) {
		return stub, nil
	})
	s, err := source.NewSource(&config.SourceConfig{Provider: "stub"}, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, stub, s)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"-5", 0},
		{"soon", 0},
		{"Mon, 19 Oct 2026 09:02:00 GMT", 2 * time.Minute},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, source.RetryAfter(tt.header, now), tt.header)
	}
}

func TestNewRateLimitError_DefaultBackoff(t *testing.T) {
	err := source.NewRateLimitError("vision", assert.AnError, 0)
	assert.Equal(t, time.Minute, err.RetryAfter)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "vision rate limited")
}
