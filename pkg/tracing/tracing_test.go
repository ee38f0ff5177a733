package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_NoTracer(t *testing.T) {
	SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "consolidation.Execute")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, GetTraceID(ctx))
}

func TestStartSpan_RecordsAttributesAndFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("test"))
	t.Cleanup(func() { SetTracer(nil) })

	ctx, span := StartSpan(context.Background(), "consolidation.Execute", attribute.String("consolidation.keep_id", "core"))
	traceID := GetTraceID(ctx)
	Fail(span, errors.New("store unavailable"))
	Fail(span, nil)
	span.End()

	require.Len(t, recorder.Ended(), 1)
	ended := recorder.Ended()[0]
	assert.Equal(t, "consolidation.Execute", ended.Name())
	assert.Equal(t, traceID, ended.SpanContext().TraceID().String())
	assert.Contains(t, ended.Attributes(), attribute.String("consolidation.keep_id", "core"))
	assert.Equal(t, codes.Error, ended.Status().Code)
	assert.Len(t, ended.Events(), 1)
}
