package handler_test

import (
	"testing"

	"github.com/andrewwphillips/likecache/internal/handler"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	h := handler.New(errorSchema, [3]interface{}{errorData}, handler.Tracer(provider.Tracer("test")))

	post(h, `query Good { list }`, "")
	post(h, `{ f }`, "")

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("Tracing: expected 2 spans, got %d", len(spans))
	}
	attrs := func(i int) map[attribute.Key]attribute.Value {
		m := make(map[attribute.Key]attribute.Value)
		for _, kv := range spans[i].Attributes() {
			m[kv.Key] = kv.Value
		}
		return m
	}

	good := attrs(0)
	Assertf(t, spans[0].Name() == "graphql.operation", "Good: unexpected span name %q", spans[0].Name())
	Assertf(t, good["graphql.operation.name"].AsString() == "Good", "Good: unexpected operation name %v", good["graphql.operation.name"])
	Assertf(t, good["graphql.operation.type"].AsString() == "query", "Good: unexpected operation type %v", good["graphql.operation.type"])
	Assertf(t, good["graphql.errors"].AsInt64() == 0, "Good: unexpected error count %v", good["graphql.errors"])
	Assertf(t, spans[0].Status().Code != codes.Error, "Good: unexpected status %v", spans[0].Status())

	bad := attrs(1)
	Assertf(t, bad["graphql.errors"].AsInt64() == 1, "Bad: unexpected error count %v", bad["graphql.errors"])
	Assertf(t, spans[1].Status().Code == codes.Error, "Bad: expected error status got %v", spans[1].Status())
}
