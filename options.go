package likecache

// options.go handles options that can be used to control the GraphQL server.
// These options are just passed on to the handler. (See internal/handler/options.go
// for details on how closures are used to handle options.)

import (
	"time"

	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	// Option modifies the GraphQL handler
	Option func(*handler.Handler)

	// OperationInfo describes an executed operation (see Observer)
	OperationInfo = handler.OperationInfo
)

// NoConcurrency controls whether concurrent execution of queries (but not mutations) is permitted
func NoConcurrency(on bool) Option {
	return Option(handler.NoConcurrency(on))
}

// Logger sets the logger for errors and websocket diagnostics
func Logger(logger *zap.Logger) Option {
	return Option(handler.Logger(logger))
}

// ErrorFormatter replaces the hook every error passes through before it is returned to the client.
// Returning nil from the hook drops the error.
func ErrorFormatter(f func(*gqlerror.Error) *gqlerror.Error) Option {
	return Option(handler.ErrorFormatter(f))
}

// Observer is called after every operation (eg to count operations)
func Observer(f func(OperationInfo)) Option {
	return Option(handler.Observer(f))
}

// Tracer sets the tracer used for the per-operation spans
func Tracer(tracer trace.Tracer) Option {
	return Option(handler.Tracer(tracer))
}

// InitialTimeout sets the length time to wait from when the websocket is opened until the
// "connection_init" message is received. If the message is not received from the client
// within the time limit then the WS is closed.
func InitialTimeout(timeout time.Duration) Option {
	return Option(handler.InitialTimeout(timeout))
}

// PingFrequency says how often to send a "ping" message (if the client connects with new
// GraphQL websocket protocol) or a "ka" (keep alive) message (old protocol)
func PingFrequency(freq time.Duration) Option {
	return Option(handler.PingFrequency(freq))
}

func handlerOptions(options []Option) []func(*handler.Handler) {
	r := make([]func(*handler.Handler), len(options))
	for i, option := range options {
		r[i] = option
	}
	return r
}
