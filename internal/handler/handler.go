// Package handler implements an HTTP handler to process GraphQL queries (and
// mutations/subscriptions) given an instance of a query struct (and optionally
// mutation and subscription structs) and a corresponding GraphQL schema.
package handler

// handler.go implements the handler and it's ServeHTTP method

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/andrewwphillips/likecache/internal/handler"

type (
	// Handler stores the invariants (schema and structs) used in the GraphQL requests
	Handler struct {
		schema           *ast.Schema
		qData            interface{}
		mData            interface{}
		subscriptionData interface{}

		// resolverLookup maps a struct type to its resolvers (GraphQL field name => Go field index)
		resolverLookup map[reflect.Type]map[string]int

		logger      *zap.Logger
		tracer      trace.Tracer
		formatError func(*gqlerror.Error) *gqlerror.Error
		observer    func(OperationInfo)

		noConcurrency bool

		initialTimeout, pingFrequency time.Duration
	}
)

// New is the main handler function that returns an HTTP handler given a schema PLUS corresponding instances of
// query, mutation and subscription structs (any of which may be nil).
// It panics if the schema is invalid as it is normally generated by schema.Build from the same structs.
func New(schemaString string, qms [3]interface{}, options ...func(*Handler)) *Handler {
	schema, err := gqlparser.LoadSchema(&ast.Source{
		Name:  "schema",
		Input: schemaString,
	})
	if err != nil {
		panic("handler.New - error making schema: " + err.Error())
	}

	h := &Handler{
		schema:           schema,
		qData:            qms[0],
		mData:            qms[1],
		subscriptionData: qms[2],
		logger:           zap.NewNop(),
		tracer:           otel.Tracer(tracerName),
	}
	h.SetOptions(options...)
	h.makeResolverTables()
	return h
}

// ServeHTTP receives a GraphQL query as an HTTP request, executes the
// query (or mutation) and generates an HTTP response or error message.
// A websocket upgrade request is handed over to the subscription handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.serveWS(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	g := gqlRequest{h: h}
	switch r.Method {
	case http.MethodPost:
		decoder := json.NewDecoder(r.Body)
		decoder.UseNumber() // allows us to distinguish ints from floats (see FixNumberVariables() below)
		if err := decoder.Decode(&g); err != nil {
			h.writeError(w, http.StatusBadRequest, "Error decoding JSON request: "+err.Error())
			return
		}
	case http.MethodGet:
		q := r.URL.Query()
		g.Query = q.Get("query")
		g.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			decoder := json.NewDecoder(strings.NewReader(vars))
			decoder.UseNumber()
			if err := decoder.Decode(&g.Variables); err != nil {
				h.writeError(w, http.StatusBadRequest, "Error decoding variables: "+err.Error())
				return
			}
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Since variables are sent as JSON (which does not distinguish int/float) we need to decide
	if err := FixNumberVariables(g.Variables); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := g.Execute(r.Context())
	if buf, err := json.Marshal(result); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Error encoding JSON response: "+err.Error())
	} else {
		_, _ = w.Write(buf)
	}
}

// writeError writes a GraphQL response with a single (request-level) error
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	result := gqlResult{Errors: h.format(gqlerror.List{{Message: message}})}
	buf, _ := json.Marshal(result)
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// FixNumberVariables goes through the structure created by the JSON decoder, converting any json.Number values to
// either an int64 or a float64.  This assumes that all the JSON numbers were decoded into a json.Number type, rather
// than int/float, by use of the json.Decode.UseNumber() method.
func FixNumberVariables(m map[string]interface{}) error {
	for key, val := range m {
		v, err := fixNumber(val)
		if err != nil {
			return err
		}
		m[key] = v
	}
	return nil
}

func fixNumber(val interface{}) (interface{}, error) {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil

	case map[string]interface{}:
		return v, FixNumberVariables(v) // recursively handle nested numbers

	case []interface{}:
		for i := range v {
			elt, err := fixNumber(v[i])
			if err != nil {
				return nil, err
			}
			v[i] = elt
		}
	}
	return val, nil
}
