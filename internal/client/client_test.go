package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andrewwphillips/likecache/internal/cache"
	"github.com/andrewwphillips/likecache/internal/catalog"
	"github.com/andrewwphillips/likecache/internal/client"
	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/andrewwphillips/likecache/internal/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const (
	productsQuery  = `query Products { products { id isLiked } }`
	toggleMutation = `mutation ToggleProductIsLiked($id: Int, $isLiked: Boolean) {
		toggleProductIsLiked(id: $id, isLiked: $isLiked) { id isLiked }
	}`
)

type object = map[string]interface{}

// newServer starts a catalog service behind the GraphQL handler
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	roots := catalog.New(catalog.NewCounter()).Roots()
	server := httptest.NewServer(handler.New(schema.MustBuild(roots[:]...), roots))
	t.Cleanup(server.Close)
	return server
}

func productList(id int64, liked bool) object {
	return object{"products": []interface{}{object{"__typename": "Product", "id": id, "isLiked": liked}}}
}

func TestAddTypename(t *testing.T) {
	tests := map[string]struct {
		query    string
		expected []string // paths of fields selecting __typename
	}{
		"List":     {productsQuery, []string{"products"}},
		"Already":  {`{ products { __typename id } }`, []string{"products"}},
		"Scalar":   {`{ count }`, nil},
		"Nested":   {`{ a { b { c } } }`, []string{"a", "a.b"}},
		"Inline":   {`{ a { ... on A { b { c } } } }`, []string{"a", "a.b"}},
		"Fragment": {`{ a { ...F } } fragment F on A { b { c } }`, []string{"a", "F", "F.b"}},
	}
	for name, test := range tests {
		doc, err := parser.ParseQuery(&ast.Source{Input: test.query})
		require.Nil(t, err, name)
		client.AddTypename(doc)

		var got []string
		var walk func(prefix string, set ast.SelectionSet)
		walk = func(prefix string, set ast.SelectionSet) {
			count := 0
			for _, s := range set {
				switch sel := s.(type) {
				case *ast.Field:
					if sel.Name == "__typename" {
						count++
					}
					if len(sel.SelectionSet) > 0 {
						p := sel.Name
						if prefix != "" {
							p = prefix + "." + sel.Name
						}
						walk(p, sel.SelectionSet)
					}
				case *ast.InlineFragment:
					walk(prefix, sel.SelectionSet)
				}
			}
			if count > 1 {
				t.Errorf("%s: __typename selected %d times in %q", name, count, prefix)
			}
			if count > 0 && prefix != "" {
				got = append(got, prefix)
			}
		}
		for _, op := range doc.Operations {
			walk("", op.SelectionSet)
		}
		for _, f := range doc.Fragments {
			walk(f.Name, f.SelectionSet)
		}
		if diff := cmp.Diff(test.expected, got, cmpSorted); diff != "" {
			t.Errorf("%s: (-want +got)\n%s", name, diff)
		}
	}
}

var cmpSorted = cmp.Transformer("sort", func(in []string) map[string]bool {
	m := make(map[string]bool, len(in))
	for _, s := range in {
		m[s] = true
	}
	return m
})

func TestQueryNetworkOnly(t *testing.T) {
	server := newServer(t)
	c := client.New(server.URL, cache.New())
	ctx := context.Background()

	for id := int64(1); id <= 2; id++ {
		data, err := c.Query(ctx, client.QueryOptions{Query: productsQuery, FetchPolicy: cache.NetworkOnly})
		require.NoError(t, err)
		assert.Equal(t, productList(id, false), data)
	}
	key := cache.Key{Typename: "Product", ID: "2"}
	assert.Equal(t, []interface{}{cache.Ref{Key: key}}, c.Cache().Extract()[cache.RootQuery]["products"])
	assert.True(t, c.Cache().NetworkOwned(cache.MustParse(`{ p { __typename id } }`), nil,
		object{"p": object{"__typename": "Product", "id": 2}}))
}

func TestQueryCacheFirst(t *testing.T) {
	server := newServer(t)
	c := client.New(server.URL, cache.New())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		data, err := c.Query(ctx, client.QueryOptions{Query: productsQuery, FetchPolicy: cache.CacheFirst})
		require.NoError(t, err)
		assert.Equal(t, productList(1, false), data, "second query is served from the cache")
	}

	data, err := c.Query(ctx, client.QueryOptions{Query: productsQuery, FetchPolicy: cache.NetworkOnly})
	require.NoError(t, err)
	assert.Equal(t, productList(2, false), data, "the server was only called once before")
}

func TestQueryCacheOnly(t *testing.T) {
	c := client.New("http://invalid.invalid/graphql", cache.New())
	_, err := c.Query(context.Background(), client.QueryOptions{Query: productsQuery, FetchPolicy: cache.CacheOnly})
	assert.ErrorIs(t, err, client.ErrCacheMiss)
}

func TestMutate(t *testing.T) {
	server := newServer(t)
	c := client.New(server.URL, cache.New())
	vars := object{"id": 5, "isLiked": false}

	data, err := c.Mutate(context.Background(), client.MutateOptions{
		Mutation:  toggleMutation,
		Variables: vars,
		OptimisticResponse: object{
			"toggleProductIsLiked": object{"__typename": "Product", "id": 5, "isLiked": true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, object{"toggleProductIsLiked": object{"__typename": "Product", "id": int64(5), "isLiked": true}}, data)

	record := c.Cache().Extract()[cache.Key{Typename: "Product", ID: "5"}]
	assert.Equal(t, true, record["isLiked"])
}

func TestMutateFailure(t *testing.T) {
	tests := map[string]struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		"GraphQLError": {http.StatusOK, `{"data":null,"errors":[{"message":"nope"}]}`, func(t *testing.T, err error) {
			var gqlErr *client.Error
			require.True(t, errors.As(err, &gqlErr))
			assert.Equal(t, "graphql: nope", gqlErr.Error())
		}},
		"Status": {http.StatusBadGateway, `bad gateway`, func(t *testing.T, err error) {
			var gqlErr *client.Error
			require.True(t, errors.As(err, &gqlErr))
			assert.Equal(t, http.StatusBadGateway, gqlErr.StatusCode)
		}},
		"BadJSON": {http.StatusOK, `{"data":`, func(t *testing.T, err error) {
			assert.Error(t, err)
		}},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				_, _ = w.Write([]byte(test.body))
			}))
			defer server.Close()

			c := client.New(server.URL, cache.New())
			query := cache.MustParse(`{ products { __typename id isLiked } }`)
			require.NoError(t, c.Cache().Write(query, nil, productList(5, false), cache.CacheFirst))

			_, err := c.Mutate(context.Background(), client.MutateOptions{
				Mutation:  toggleMutation,
				Variables: object{"id": 5, "isLiked": false},
				OptimisticResponse: object{
					"toggleProductIsLiked": object{"__typename": "Product", "id": 5, "isLiked": true},
				},
			})
			test.check(t, err)

			data, _ := c.Cache().Read(query, nil, true)
			assert.Equal(t, productList(5, false), data, "optimistic layer rolled back")
		})
	}
}

func TestTransportError(t *testing.T) {
	server := newServer(t)
	server.Close()
	c := client.New(server.URL, cache.New())
	_, err := c.Query(context.Background(), client.QueryOptions{Query: productsQuery})
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	server := newServer(t)
	c := client.New(server.URL, cache.New())
	var got []object
	cancel, err := c.Watch(productsQuery, nil, func(data map[string]interface{}) { got = append(got, data) })
	require.NoError(t, err)
	defer cancel()

	_, err = c.Query(context.Background(), client.QueryOptions{Query: productsQuery, FetchPolicy: cache.NetworkOnly})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, productList(1, false), got[0])

	_, err = c.Watch(`{ products { `, nil, func(map[string]interface{}) {})
	assert.Error(t, err)
}
