package handler

// execute.go handles the execution of a GraphQL request

import (
	"context"
	"errors"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// gqlRequest decodes and handles each GraphQL request
	gqlRequest struct {
		h *Handler

		// These are decoded from the http request body (JSON)
		Query         string
		OperationName string
		Variables     map[string]interface{}
	}

	// gqlResult contains the result (or errors) of the request to be encoded in JSON
	gqlResult struct {
		Data   interface{}   `json:"data"`
		Errors gqlerror.List `json:"errors,omitempty"`
	}

	// OperationInfo is passed to the Observer (if any) after an operation has been executed
	OperationInfo struct {
		Name     string // operation name (empty for an anonymous operation)
		Type     string // "query", "mutation" or "subscription"
		Errors   int
		Duration time.Duration
	}
)

// Execute parses and runs the request and returns the result
func (g *gqlRequest) Execute(ctx context.Context) gqlResult {
	doc, errs := g.parse()
	if errs != nil {
		return gqlResult{Errors: g.h.format(errs)}
	}
	operation, err := selectOperation(doc, g.OperationName)
	if err != nil {
		return gqlResult{Errors: g.h.format(gqlerror.List{err})}
	}
	if operation.Operation == ast.Subscription {
		return gqlResult{Errors: g.h.format(gqlerror.List{gqlerror.Errorf("subscriptions are only supported over a websocket")})}
	}
	return g.h.run(ctx, operation, g.Variables)
}

// parse analyses and validates the query string
func (g *gqlRequest) parse() (*ast.QueryDocument, gqlerror.List) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: g.Query})
	if err != nil {
		return nil, gqlerror.List{toGQLError(err)}
	}
	if errs := validator.Validate(g.h.schema, doc); errs != nil {
		return nil, errs
	}
	return doc, nil
}

// selectOperation finds the operation to run: the one with the given name or the only one if name is empty
func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, *gqlerror.Error) {
	if name != "" {
		if op := doc.Operations.ForName(name); op != nil {
			return op, nil
		}
		return nil, gqlerror.Errorf("operation %q not found", name)
	}
	if len(doc.Operations) != 1 {
		return nil, gqlerror.Errorf("operation name is required when the document has %d operations", len(doc.Operations))
	}
	return doc.Operations[0], nil
}

// run executes a query or mutation operation in a span, reporting it to the observer when done
func (h *Handler) run(ctx context.Context, operation *ast.OperationDefinition, vars map[string]interface{}) (r gqlResult) {
	start := time.Now()
	ctx, span := h.tracer.Start(ctx, "graphql.operation", trace.WithAttributes(
		attribute.String("graphql.operation.name", operation.Name),
		attribute.String("graphql.operation.type", string(operation.Operation)),
	))
	defer func() {
		span.SetAttributes(attribute.Int("graphql.errors", len(r.Errors)))
		if len(r.Errors) > 0 {
			span.SetStatus(codes.Error, r.Errors[0].Message)
		}
		span.End()
		if h.observer != nil {
			h.observer(OperationInfo{
				Name:     operation.Name,
				Type:     string(operation.Operation),
				Errors:   len(r.Errors),
				Duration: time.Since(start),
			})
		}
	}()

	op, err := h.newOperation(operation, vars)
	if err != nil {
		r.Errors = h.format(gqlerror.List{err})
		return
	}
	var data interface{}
	switch operation.Operation {
	case ast.Query:
		data = h.qData
	case ast.Mutation:
		op.isMutation = true
		data = h.mData
	}
	if data == nil {
		r.Errors = h.format(gqlerror.List{gqlerror.Errorf("no resolvers for %s", operation.Operation)})
		return
	}

	result, err2 := op.GetSelections(ctx, operation.SelectionSet, data, rootName(h.schema, operation.Operation))
	if err2 != nil {
		span.RecordError(err2)
		r.Errors = h.format(gqlerror.List{toGQLError(err2)})
		return
	}
	r.Data = result
	return
}

// newOperation creates the state for executing an operation including extracting its variables
func (h *Handler) newOperation(operation *ast.OperationDefinition, vars map[string]interface{}) (*gqlOperation, *gqlerror.Error) {
	op := &gqlOperation{Handler: h}
	if len(operation.VariableDefinitions) > 0 {
		values, err := validator.VariableValues(h.schema, operation, vars)
		if err != nil {
			return nil, toGQLError(err)
		}
		op.variables = values
	}
	return op, nil
}

// rootName gets the name of the GraphQL type of an operation's entry point
func rootName(schema *ast.Schema, operation ast.Operation) string {
	var def *ast.Definition
	switch operation {
	case ast.Query:
		def = schema.Query
	case ast.Mutation:
		def = schema.Mutation
	case ast.Subscription:
		def = schema.Subscription
	}
	if def == nil {
		return ""
	}
	return def.Name
}

// toGQLError converts an error into a GraphQL error, retaining the path to the field that failed (if known)
func toGQLError(err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	var fe *fieldError
	switch {
	case errors.As(err, &fe):
		if errors.As(fe.err, &gqlErr) {
			gqlErr.Path = fe.path
			return gqlErr
		}
		return &gqlerror.Error{Message: fe.Error(), Path: fe.path}
	case errors.As(err, &gqlErr):
		return gqlErr
	}
	return &gqlerror.Error{Message: err.Error()}
}
