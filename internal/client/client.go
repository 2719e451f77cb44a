// Package client is a GraphQL HTTP client that keeps results in a normalized cache
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/andrewwphillips/likecache/internal/cache"
	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

type (
	// Client sends operations to a single GraphQL endpoint
	Client struct {
		endpoint   string
		cache      *cache.Cache
		httpClient *http.Client
		logger     *zap.Logger

		docMu sync.Mutex
		docs  map[string]document // parsed (and transformed) documents by source text
	}

	QueryOptions struct {
		Query       string
		Variables   map[string]interface{}
		FetchPolicy cache.FetchPolicy
	}

	MutateOptions struct {
		Mutation  string
		Variables map[string]interface{}

		// OptimisticResponse, if not nil, is applied to the cache as a pending layer until the
		// mutation completes
		OptimisticResponse map[string]interface{}
	}

	// Error is returned when the server responds with GraphQL errors or an unsuccessful status
	Error struct {
		StatusCode int
		Errors     gqlerror.List
	}

	// response is the body returned by the server
	response struct {
		Data   map[string]interface{} `json:"data"`
		Errors gqlerror.List          `json:"errors"`
	}
)

// ErrCacheMiss is returned by a cache-only query when the cache does not have the complete result
var ErrCacheMiss = errors.New("client: result not in cache")

func (e *Error) Error() string {
	switch {
	case len(e.Errors) == 1:
		return "graphql: " + e.Errors[0].Message
	case len(e.Errors) > 1:
		return fmt.Sprintf("graphql: %s (and %d more errors)", e.Errors[0].Message, len(e.Errors)-1)
	}
	return fmt.Sprintf("graphql: unexpected status %d", e.StatusCode)
}

// New creates a client for endpoint that stores results in c
func New(endpoint string, c *cache.Cache, options ...func(*Client)) *Client {
	r := &Client{
		endpoint:   endpoint,
		cache:      c,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
		docs:       make(map[string]document),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// HTTPClient sets the client used to send requests (eg to add a timeout or a custom transport)
func HTTPClient(httpClient *http.Client) func(*Client) {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func Logger(logger *zap.Logger) func(*Client) {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache returns the cache that results are stored in
func (c *Client) Cache() *cache.Cache { return c.cache }

// Query runs a query according to its fetch policy and writes any network result to the cache
func (c *Client) Query(ctx context.Context, opts QueryOptions) (map[string]interface{}, error) {
	doc, err := c.document(opts.Query)
	if err != nil {
		return nil, err
	}
	if opts.FetchPolicy != cache.NetworkOnly {
		if data, complete := c.cache.Read(doc.Document, opts.Variables, true); complete {
			c.logger.Debug("query served from cache", zap.String("operation", doc.Name()))
			return data, nil
		}
		if opts.FetchPolicy == cache.CacheOnly {
			return nil, ErrCacheMiss
		}
	}

	data, err := c.send(ctx, doc, opts.Variables)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Write(doc.Document, opts.Variables, data, opts.FetchPolicy); err != nil {
		return nil, fmt.Errorf("writing %s result: %w", doc.Name(), err)
	}
	return data, nil
}

// Mutate sends a mutation.  An optimistic response is applied as a pending layer first, which is
// settled with the authoritative result or rolled back if the mutation fails.
func (c *Client) Mutate(ctx context.Context, opts MutateOptions) (map[string]interface{}, error) {
	doc, err := c.document(opts.Mutation)
	if err != nil {
		return nil, err
	}
	optimistic := opts.OptimisticResponse != nil
	var layer cache.LayerID
	if optimistic {
		if layer, err = c.cache.ApplyOptimistic(doc.Document, opts.Variables, opts.OptimisticResponse); err != nil {
			return nil, fmt.Errorf("applying optimistic response: %w", err)
		}
	}

	data, err := c.send(ctx, doc, opts.Variables)
	if err != nil {
		if optimistic {
			if rbErr := c.cache.Rollback(layer); rbErr != nil {
				c.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
		return nil, err
	}

	if !optimistic {
		err = c.cache.Write(doc.Document, opts.Variables, data, cache.NetworkOnly)
	} else {
		rule := cache.RuleFor(c.cache.NetworkOwned(doc.Document, opts.Variables, data), true)
		c.logger.Debug("settling optimistic layer", zap.Stringer("layer", layer), zap.Stringer("rule", rule))
		err = c.cache.Settle(layer, doc.Document, opts.Variables, data, rule)
	}
	if err != nil {
		return nil, fmt.Errorf("writing %s result: %w", doc.Name(), err)
	}
	return data, nil
}

// Watch calls fn with the cached (optimistic) result of query whenever it changes
func (c *Client) Watch(query string, variables map[string]interface{}, fn func(map[string]interface{})) (cancel func(), err error) {
	doc, err := c.document(query)
	if err != nil {
		return nil, err
	}
	return c.cache.Watch(doc.Document, variables, fn), nil
}

// send posts an operation to the endpoint and decodes the result
func (c *Client) send(ctx context.Context, doc document, variables map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":         doc.text,
		"operationName": doc.Name(),
		"variables":     variables,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	c.logger.Debug("sending operation", zap.String("operation", doc.Name()), zap.String("endpoint", c.endpoint))
	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("sending %s: %w", doc.Name(), err)
	}
	defer resp.Body.Close()

	var result response
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	decodeErr := decoder.Decode(&result)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Errors: result.Errors}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding %s response: %w", doc.Name(), decodeErr)
	}
	if len(result.Errors) > 0 {
		return nil, &Error{StatusCode: resp.StatusCode, Errors: result.Errors}
	}
	if result.Data == nil {
		return nil, &Error{StatusCode: resp.StatusCode}
	}
	if err := handler.FixNumberVariables(result.Data); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", doc.Name(), err)
	}
	return result.Data, nil
}
