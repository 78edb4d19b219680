package tracing

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/emergent-company/graphmerge/internal/config"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	res, err := NewTracerProvider(&config.Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.Nil(t, res.SDKProvider)
	_, isNoop := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, isNoop)
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate    float64
		sampled bool
	}{
		{1, true},
		{2, true},
		{0, false},
		{-1, false},
	}
	for _, tt := range tests {
		s := newSampler(tt.rate)
		res := s.ShouldSample(sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{1},
			Name:          "commit",
		})
		assert.Equal(t, tt.sampled, res.Decision == sdktrace.RecordAndSample, "rate %v", tt.rate)
	}
}
