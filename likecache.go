package likecache

// likecache.go provides the gql type for generating a GraphQL HTTP handler or schema

import (
	"net/http"

	"github.com/andrewwphillips/likecache/internal/catalog"
	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/andrewwphillips/likecache/internal/schema"
)

type (
	gql struct {
		qms     [3]interface{}
		options []Option
	}
)

// New creates a new instance with from zero to 3 parameters representing the
// query, mutation, and subscription types (though these may also be added or replaced
// later using the SetQuery, SetMutation, and SetSubscription methods).
func New(q ...interface{}) gql {
	r := gql{}
	for i := 0; i < 3; i++ {
		if len(q) > i {
			r.qms[i] = q[i]
		}
	}
	return r
}

// Catalog returns an instance serving the query, mutation and subscription of the Catalog Service
func Catalog(s *catalog.Service) gql {
	roots := s.Roots()
	return New(roots[:]...)
}

// SetQuery adds or replaces the struct representing the root query type
func (g *gql) SetQuery(query interface{}) {
	g.qms[0] = query
}

// SetMutation adds or replaces the struct representing the root mutation type
func (g *gql) SetMutation(mutation interface{}) {
	g.qms[1] = mutation
}

// SetSubscription adds or replaces the struct representing the subscription type
func (g *gql) SetSubscription(subscription interface{}) {
	g.qms[2] = subscription
}

// SetOptions adds handler options used by GetHandler
func (g *gql) SetOptions(options ...Option) {
	g.options = append(g.options, options...)
}

// GetSchema builds and returns the GraphQL schema
func (g *gql) GetSchema() (string, error) {
	return schema.Build(g.qms[:]...)
}

// GetHandler builds the schema and returns the HTTP handler that handles GraphQL queries
// (and subscriptions over a websocket)
func (g *gql) GetHandler() (http.Handler, error) {
	s, err := schema.Build(g.qms[:]...)
	if err != nil {
		return nil, err
	}
	return handler.New(s, g.qms, handlerOptions(g.options)...), nil
}
