package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	ctx, span := StartSpan(context.Background(), "turn.utterance")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("correlation ID length = %d, want 32", len(cid))
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "turn.utterance" {
		t.Fatalf("recorded spans = %v, want one turn.utterance", spans)
	}
	if got := spans[0].SpanContext.TraceID().String(); got != cid {
		t.Errorf("span trace ID = %s, correlation ID = %s", got, cid)
	}
}

func TestLogger(t *testing.T) {
	tp, _ := newTestTracerProvider(t)

	t.Run("with span", func(t *testing.T) {
		buf := captureLogs(t)
		ctx, span := tp.Tracer("test").Start(context.Background(), "log-test")
		defer span.End()

		Logger(ctx).Info("heard")
		out := buf.String()
		if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
			t.Errorf("log output missing trace attributes: %s", out)
		}
	})

	t.Run("without span", func(t *testing.T) {
		buf := captureLogs(t)
		Logger(context.Background()).Info("heard")
		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("log output should not contain trace_id: %s", buf.String())
		}
	})
}
