package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/andrewwphillips/likecache/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestDisabled(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := telemetry.Setup(context.Background(), "", "likecache")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider(), "the global provider must be left alone")
}

func TestExport(t *testing.T) {
	var received atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			received.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	before := otel.GetTracerProvider()
	defer otel.SetTracerProvider(before)

	shutdown, err := telemetry.Setup(context.Background(), collector.URL, "likecache-test")
	require.NoError(t, err)
	_, span := otel.Tracer("test").Start(context.Background(), "graphql.operation")
	span.End()

	// Shutdown flushes the batch
	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, int32(1), received.Load())
}

func TestBadEndpoint(t *testing.T) {
	for name, endpoint := range map[string]string{
		"Scheme": "ftp://collector:4318",
		"NoHost": "http://",
		"Parse":  "http://[::1",
	} {
		_, err := telemetry.Setup(context.Background(), endpoint, "likecache")
		assert.Error(t, err, name)
	}
}
