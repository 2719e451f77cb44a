package handler

// options.go handles setting of handler options

// The handler.New() function takes as its last (variadic) parameter a slice of closures each with the signature
// func(*Handler).  The option functions below return such a closure which captures the option's parameters so that
// the handler can be modified when the closure is run.  For example in this call:
//
//   handler.New(schema, [3]interface{}{query, nil, nil}, handler.NoConcurrency(true))
//
// handler.NoConcurrency(true) returns a closure that sets the noConcurrency field of the handler when it is
// run by SetOptions().  If the same option function is used more than once then only the last use has any effect.

import (
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultInitialTimeout = 10 * time.Second // how long to wait for connection_init after the WS is opened
	defaultPingFrequency  = 20 * time.Second // how often to send a ping (ka in old protocol) message to the client
)

// SetOptions takes a slice of handler options (closures) and executes them
func (h *Handler) SetOptions(options ...func(*Handler)) {
	for _, option := range options {
		option(h)
	}

	// Set any options that still have their unset (zero) value
	if h.initialTimeout == 0 {
		h.initialTimeout = defaultInitialTimeout
	}
	if h.pingFrequency == 0 {
		h.pingFrequency = defaultPingFrequency
	}
	if h.formatError == nil {
		h.formatError = h.logError
	}
}

// NoConcurrency turns off concurrent execution of query fields (mutation fields are always run sequentially)
func NoConcurrency(on bool) func(*Handler) {
	return func(h *Handler) {
		h.noConcurrency = on
	}
}

// Logger sets the logger used for errors and websocket diagnostics.  The default discards everything.
func Logger(logger *zap.Logger) func(*Handler) {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// ErrorFormatter replaces the hook that every error passes through before it is returned to the client.
// The default hook logs the raw error and returns it unmodified.
func ErrorFormatter(f func(*gqlerror.Error) *gqlerror.Error) func(*Handler) {
	return func(h *Handler) {
		h.formatError = f
	}
}

// Observer registers a function that is called after every operation (eg to record metrics)
func Observer(f func(OperationInfo)) func(*Handler) {
	return func(h *Handler) {
		h.observer = f
	}
}

// Tracer sets the tracer used to create a span for each operation.  The default uses the global provider.
func Tracer(tracer trace.Tracer) func(*Handler) {
	return func(h *Handler) {
		if tracer != nil {
			h.tracer = tracer
		}
	}
}

// InitialTimeout sets the length time to wait from when the websocket is opened until the
// "connection_init" message is received. If the message is not received from the client
// within the time limit then the WS is closed.
func InitialTimeout(timeout time.Duration) func(*Handler) {
	return func(h *Handler) {
		h.initialTimeout = timeout
	}
}

// PingFrequency says how often to send a "ping" message (if the client connects with new
// protocol) or a "ka" (keep alive) message (old protocol)
func PingFrequency(freq time.Duration) func(*Handler) {
	return func(h *Handler) {
		h.pingFrequency = freq
	}
}

// logError is the default error hook - it logs the raw error object and returns it unchanged
func (h *Handler) logError(err *gqlerror.Error) *gqlerror.Error {
	h.logger.Error("graphql error", zap.Reflect("error", err))
	return err
}

// format passes all errors through the error hook, dropping any the hook returns as nil
func (h *Handler) format(list gqlerror.List) gqlerror.List {
	if len(list) == 0 {
		return nil
	}
	r := make(gqlerror.List, 0, len(list))
	for _, err := range list {
		if err = h.formatError(err); err != nil {
			r = append(r, err)
		}
	}
	return r
}
