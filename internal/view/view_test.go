package view_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrewwphillips/likecache/internal/cache"
	"github.com/andrewwphillips/likecache/internal/catalog"
	"github.com/andrewwphillips/likecache/internal/client"
	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/andrewwphillips/likecache/internal/schema"
	"github.com/andrewwphillips/likecache/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedTransport serves requests with a handler in-process.  Once held, the next request waits
// until it is released so that the state while a request is in flight can be checked.
type gatedTransport struct {
	h        http.Handler
	holding  atomic.Bool
	arrived  chan struct{}
	released chan struct{}
	fail     atomic.Bool
}

func newTransport(h http.Handler) *gatedTransport {
	return &gatedTransport{h: h, arrived: make(chan struct{}), released: make(chan struct{})}
}

func (g *gatedTransport) hold() { g.holding.Store(true) }

func (g *gatedTransport) release() {
	g.holding.Store(false)
	close(g.released)
}

func (g *gatedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if g.holding.Load() {
		g.arrived <- struct{}{}
		<-g.released
	}
	if g.fail.Load() {
		return nil, errors.New("connection refused")
	}
	w := httptest.NewRecorder()
	g.h.ServeHTTP(w, r)
	return w.Result(), nil
}

func newView(t *testing.T, config view.Config) (*view.View, *gatedTransport) {
	t.Helper()
	roots := catalog.New(catalog.NewCounter()).Roots()
	transport := newTransport(handler.New(schema.MustBuild(roots[:]...), roots))
	c := client.New("http://catalog/graphql", cache.New(), client.HTTPClient(&http.Client{Transport: transport}))
	return view.New(c, config), transport
}

// TestReproduction checks the displayed value after a toggle for each combination of the two cache
// choices.  Only a network-only list with an optimistic toggle keeps the stale value.
func TestReproduction(t *testing.T) {
	tests := map[string]struct {
		networkOnly, optimistic bool
		expected                bool
	}{
		"CacheFirst":            {false, false, true},
		"CacheFirstOptimistic":  {false, true, true},
		"NetworkOnly":           {true, false, true},
		"NetworkOnlyOptimistic": {true, true, false},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			config := view.Config{FetchPolicy: cache.CacheFirst, Optimistic: test.optimistic}
			if test.networkOnly {
				config.FetchPolicy = cache.NetworkOnly
			}
			v, transport := newView(t, config)
			ctx := context.Background()

			require.NoError(t, v.Mount(ctx))
			defer v.Unmount()
			require.Equal(t, []view.Row{{ID: 1, IsLiked: false}}, v.Rows())

			transport.hold()
			done := make(chan error, 1)
			go func() { done <- v.Toggle(ctx, 1) }()
			select {
			case <-transport.arrived:
			case <-time.After(2 * time.Second):
				t.Fatal("mutation was not sent")
			}

			// While the mutation is in flight the predicted value (if any) is displayed
			assert.True(t, v.Pending())
			assert.Equal(t, []view.Row{{ID: 1, IsLiked: test.optimistic}}, v.Rows(), "in flight")

			transport.release()
			require.NoError(t, <-done)
			assert.False(t, v.Pending())
			assert.Equal(t, []view.Row{{ID: 1, IsLiked: test.expected}}, v.Rows(), "settled")
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := view.DefaultConfig()
	assert.Equal(t, cache.NetworkOnly, config.FetchPolicy)
	assert.True(t, config.Optimistic)
}

func TestRender(t *testing.T) {
	v, _ := newView(t, view.Config{FetchPolicy: cache.CacheFirst})
	require.NoError(t, v.Mount(context.Background()))
	require.NoError(t, v.Toggle(context.Background(), 1))

	var buf bytes.Buffer
	require.NoError(t, v.Render(&buf))
	assert.Equal(t, "products in cache\n1, true\n  toggle `isLiked` (t 1)\n", buf.String())
}

func TestToggleUnknown(t *testing.T) {
	v, _ := newView(t, view.DefaultConfig())
	require.NoError(t, v.Mount(context.Background()))
	assert.Error(t, v.Toggle(context.Background(), 42))
}

func TestMountFailure(t *testing.T) {
	v, transport := newView(t, view.DefaultConfig())
	transport.fail.Store(true)
	assert.Error(t, v.Mount(context.Background()))
	assert.Empty(t, v.Rows(), "a failed query leaves the list empty")
}

// TestToggleFailure checks that a failed mutation rolls back the predicted value
func TestToggleFailure(t *testing.T) {
	v, transport := newView(t, view.Config{FetchPolicy: cache.CacheFirst, Optimistic: true})
	ctx := context.Background()
	require.NoError(t, v.Mount(ctx))

	transport.fail.Store(true)
	transport.hold()
	done := make(chan error, 1)
	go func() { done <- v.Toggle(ctx, 1) }()
	<-transport.arrived
	assert.Equal(t, []view.Row{{ID: 1, IsLiked: true}}, v.Rows(), "predicted")
	transport.release()

	assert.Error(t, <-done)
	assert.Equal(t, []view.Row{{ID: 1, IsLiked: false}}, v.Rows(), "rolled back")
}
