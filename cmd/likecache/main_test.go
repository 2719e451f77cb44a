package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andrewwphillips/likecache/internal/cache"
	"github.com/andrewwphillips/likecache/internal/client"
	"github.com/andrewwphillips/likecache/internal/config"
	"github.com/andrewwphillips/likecache/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{Path: "/graphql"}
	router, err := newRouter(cfg, zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// lastRender returns the output following the final heading
func lastRender(out string) string {
	const heading = "products in cache\n"
	i := strings.LastIndex(out, heading)
	if i < 0 {
		return ""
	}
	return out[i:]
}

func TestInteract(t *testing.T) {
	tests := map[string]struct {
		networkOnly, optimistic bool
		expected                string
	}{
		"CacheFirst":            {false, false, "1, true"},
		"CacheFirstOptimistic":  {false, true, "1, true"},
		"NetworkOnly":           {true, false, "1, true"},
		"NetworkOnlyOptimistic": {true, true, "1, false"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newCatalogServer(t)
			cfg := config.Config{NetworkOnly: test.networkOnly, Optimistic: test.optimistic}
			v := view.New(client.New(srv.URL+"/graphql", cache.New()), viewConfig(cfg))

			var out bytes.Buffer
			require.NoError(t, interact(context.Background(), v, strings.NewReader("t 1\nq\nt 1\n"), &out))

			assert.True(t, strings.HasPrefix(out.String(), "products in cache\n1, false\n"), "initial render: %s", out.String())
			assert.Equal(t, "products in cache\n"+test.expected+"\n  toggle `isLiked` (t 1)\n", lastRender(out.String()))
		})
	}
}

func TestInteractCommands(t *testing.T) {
	srv := newCatalogServer(t)
	v := view.New(client.New(srv.URL+"/graphql", cache.New()), view.DefaultConfig())

	var out bytes.Buffer
	require.NoError(t, interact(context.Background(), v, strings.NewReader("\nx\nt\nt one\nt 9\nr\n"), &out))
	text := out.String()
	assert.Contains(t, text, `unknown command "x"`)
	assert.Contains(t, text, "usage: t <id>")
	assert.Contains(t, text, `bad product id "one"`)
	assert.Contains(t, text, "product 9 is not displayed")
	assert.Equal(t, 3, strings.Count(text, "products in cache"), "initial render, failed toggle and r")
}

func TestInteractMountFailure(t *testing.T) {
	srv := newCatalogServer(t)
	srv.Close()
	v := view.New(client.New(srv.URL+"/graphql", cache.New()), view.DefaultConfig())

	var out bytes.Buffer
	require.NoError(t, interact(context.Background(), v, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "loading products")
	assert.Equal(t, "products in cache\n", lastRender(out.String()))
}

func TestViewConfig(t *testing.T) {
	assert.Equal(t, view.Config{FetchPolicy: cache.NetworkOnly, Optimistic: true},
		viewConfig(config.Config{NetworkOnly: true, Optimistic: true}))
	assert.Equal(t, view.Config{FetchPolicy: cache.CacheFirst},
		viewConfig(config.Config{}))
}

func TestSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"schema"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "toggleProductIsLiked(id: Int, isLiked: Boolean): Product")
	assert.Contains(t, out.String(), "products: [Product]")
}
