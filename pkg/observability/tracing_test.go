package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	p, err := NewProviderWithExporter(DefaultTracingConfig("test-slotpool"), exp)
	require.NoError(t, err)
	return p, exp
}

func TestPhaseTracer(t *testing.T) {
	p, exp := newTestProvider(t)

	pt := NewPhaseTracer(context.Background(), p.Tracer(), "bench")
	pt.Root().SetAttribute("mode", "ref")

	require.NoError(t, pt.Phase("warmup", func(ctx context.Context, span *Span) error {
		span.SetAttribute("cycles", 100)
		return nil
	}))
	failure := errors.New(errors.ErrorTypeInternal, "verify failed")
	err := pt.Phase("verify", func(ctx context.Context, span *Span) error {
		return failure
	})
	assert.Same(t, failure, err)
	pt.End(nil)

	require.NoError(t, p.Shutdown(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 3)

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	root := byName["bench"]
	for _, child := range []string{"warmup", "verify"} {
		assert.Equal(t, root.SpanContext.SpanID(), byName[child].Parent.SpanID(), child)
	}
	assert.Equal(t, codes.Error, byName["verify"].Status.Code)
	assert.Equal(t, codes.Unset, byName["warmup"].Status.Code)

	var found bool
	for _, kv := range byName["warmup"].Attributes {
		if string(kv.Key) == "cycles" {
			found = true
			assert.Equal(t, int64(100), kv.Value.AsInt64())
		}
	}
	assert.True(t, found, "attribute set before End is exported")
}

func TestSetAttributeTypes(t *testing.T) {
	p, exp := newTestProvider(t)

	_, span := StartSpan(context.Background(), p.Tracer(), "attrs")
	span.SetAttribute("s", "x")
	span.SetAttribute("i", 1)
	span.SetAttribute("u", uint64(2))
	span.SetAttribute("f", 1.5)
	span.SetAttribute("b", true)
	span.SetAttribute("d", time.Millisecond)
	span.SetAttribute("other", []int{1})
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	got := map[string]string{}
	for _, kv := range spans[0].Attributes {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "x", got["s"])
	assert.Equal(t, "2", got["u"])
	assert.Equal(t, "1000000", got["d"])
	assert.Equal(t, "[1]", got["other"])
}

func TestStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTracingConfig("test-slotpool")
	cfg.Output = &buf
	p, err := NewProvider(cfg)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), p.Tracer(), "stdout-span")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "stdout-span")
}

func TestNoneExporter(t *testing.T) {
	cfg := DefaultTracingConfig("test-slotpool")
	cfg.ExporterType = "none"
	p, err := NewProvider(cfg)
	require.NoError(t, err)

	pt := NewPhaseTracer(context.Background(), p.Tracer(), "quiet")
	assert.NoError(t, pt.Phase("noop", func(context.Context, *Span) error { return nil }))
	pt.End(nil)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestUnsupportedExporter(t *testing.T) {
	cfg := DefaultTracingConfig("test-slotpool")
	cfg.ExporterType = "jaeger"
	_, err := NewProvider(cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoggerWithSpan(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	assert.Same(t, l, LoggerWithSpan(context.Background(), l))

	p, _ := newTestProvider(t)
	ctx, span := StartSpan(context.Background(), p.Tracer(), "logged")
	defer span.End()

	LoggerWithSpan(ctx, l).Info("inside span")
	entry := logs.All()[0]
	assert.Len(t, entry.ContextMap()["trace_id"], 32)
	assert.Len(t, entry.ContextMap()["span_id"], 16)
}
