// Package schema can be used to generate a GraphQL schema (as a string) from
// Go structure(s) representing the GraphQL query (and mutation and subscription)
// entry points.  This goes hand-in-hand with the "handler" which uses instantiations
// of those same structures to fulfill the query (mutation/subscription).
package schema

// schema.go contains the exported functions - Build and MustBuild

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// EntryPoint is an "enumeration" for the 3 different types of GraphQL entry point (query, mutation, subscription)
type EntryPoint int

const (
	Query EntryPoint = iota
	Mutation
	Subscription
)

// String returns the default GraphQL type name for the entry point
func (ep EntryPoint) String() string {
	switch ep {
	case Query:
		return "Query"
	case Mutation:
		return "Mutation"
	case Subscription:
		return "Subscription"
	}
	return ""
}

const (
	openString  = " {\n"
	closeString = "}\n"

	gqlObjectType = "type"
	gqlInputType  = "input"
)

// MustBuild is the same as Build but panics on error
func MustBuild(qms ...interface{}) string {
	s, err := Build(qms...)
	if err != nil {
		panic(err)
	}
	return s
}

// Build generates a string containing a GraphQL schema from Go structs.
// It analyses a Go "query" struct (and optionally mutation and subscription structs, in that
// order) using any exported fields as the resolvers.  A nil value skips that entry point.
func Build(qms ...interface{}) (string, error) {
	if len(qms) > 3 {
		return "", errors.New("more than 3 structs provided for schema (can only have query, mutation, subscription)")
	}
	builder := &strings.Builder{}
	types := newSchemaTypes()

	builder.Grow(256)
	builder.WriteString("schema")
	builder.WriteString(openString)

	for i, v := range qms {
		if v == nil {
			continue
		}
		t := reflect.TypeOf(v)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return "", errors.New("parameters to schema.Build must be structs")
		}
		ep := EntryPoint(i)

		typeName := t.Name()
		if typeName == "" {
			typeName = ep.String() // anon struct uses the default root name
		}
		if err := types.add(typeName, t, gqlObjectType, ep == Subscription); err != nil {
			return "", fmt.Errorf("%w adding %q building schema for %s", err, typeName, ep)
		}

		builder.WriteString("  ")
		builder.WriteString(strings.ToLower(ep.String()))
		builder.WriteString(": ")
		builder.WriteString(typeName)
		builder.WriteRune('\n')
	}
	builder.WriteString(closeString)

	// Types are always written in the same order (eg for consistency in tests)
	names := make([]string, 0, len(types.declaration))
	for k := range types.declaration {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		builder.WriteString(types.declaration[name])
	}
	return builder.String(), nil
}
