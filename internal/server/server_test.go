package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andrewwphillips/likecache/internal/catalog"
	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/andrewwphillips/likecache/internal/schema"
	"github.com/andrewwphillips/likecache/internal/server"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newServer starts the full router around the catalog service
func newServer(t *testing.T, logger *zap.Logger) (*httptest.Server, *server.Metrics) {
	t.Helper()
	metrics := server.NewMetrics()
	svc := catalog.New(catalog.NewCounter(), catalog.OnList(metrics.ProductListed))
	roots := svc.Roots()
	gql := handler.New(schema.MustBuild(roots[:]...), roots, handler.Observer(metrics.ObserveOperation))
	srv := httptest.NewServer(server.NewRouter("/graphql", gql, metrics, logger))
	t.Cleanup(srv.Close)
	return srv, metrics
}

func post(t *testing.T, url, query, origin string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"query": query})
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestGraphQL(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp := post(t, srv.URL+"/graphql", `query Products { products { id isLiked } }`, "http://localhost:3000")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.JSONEq(t, `{"data":{"products":[{"id":1,"isLiked":false}]}}`, readAll(t, resp))

	resp = post(t, srv.URL+"/graphql", `mutation { toggleProductIsLiked(id: 1, isLiked: false) { id isLiked } }`, "")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"data":{"toggleProductIsLiked":{"id":1,"isLiked":true}}}`, readAll(t, resp))
}

func TestPreflight(t *testing.T) {
	srv, _ := newServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/graphql", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET,POST,OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "content-type,x-test", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestHealthAndRoutes(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", readAll(t, resp))

	resp2, err := http.Get(srv.URL + "/nowhere")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/graphql", nil)
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)
}

func TestMetrics(t *testing.T) {
	srv, _ := newServer(t, nil)

	post(t, srv.URL+"/graphql", `query Products { products { id } }`, "")
	post(t, srv.URL+"/graphql", `query Products { products { id } }`, "")
	post(t, srv.URL+"/graphql", `mutation { toggleProductIsLiked(id: 1, isLiked: true) { id } }`, "")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	text := readAll(t, resp)

	assert.Contains(t, text, `likecache_products_listed_total 2`)
	assert.Contains(t, text, `likecache_graphql_operations_total{operation="Products",type="query"} 2`)
	assert.Contains(t, text, `likecache_graphql_operations_total{operation="anonymous",type="mutation"} 1`)
	assert.Contains(t, text, `likecache_http_request_duration_seconds_count{path="/graphql",status="200"} 3`)
	assert.Contains(t, text, `go_goroutines`)
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	srv, _ := newServer(t, zap.New(core))

	post(t, srv.URL+"/graphql", `{ products { id } }`, "")
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/graphql", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

// TestWebsocketThroughRouter checks that the middleware chain lets a subscription upgrade through
func TestWebsocketThroughRouter(t *testing.T) {
	srv, _ := newServer(t, nil)

	dialer := websocket.Dialer{Subprotocols: []string{"graphql-transport-ws"}}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/graphql", nil)
	require.NoError(t, err)
	defer conn.Close()

	type message struct {
		Type    string
		ID      string
		Payload json.RawMessage
	}
	receive := func() message {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m message
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connection_init"}`)))
	assert.Equal(t, "connection_ack", receive().Type)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"subscribe","id":"1","payload":{"query":"subscription { productToggled { id isLiked } }"}}`)))

	// The subscription is registered asynchronously so keep toggling until an event arrives
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
				body := `{"query":"mutation { toggleProductIsLiked(id: 4, isLiked: true) { id } }"}`
				if resp, err := http.Post(srv.URL+"/graphql", "application/json", strings.NewReader(body)); err == nil {
					_ = resp.Body.Close()
				}
			}
		}
	}()

	m := receive()
	assert.Equal(t, "next", m.Type)
	assert.Equal(t, "1", m.ID)
	assert.JSONEq(t, `{"data":{"productToggled":{"id":4,"isLiked":false}}}`, string(m.Payload))
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second, nil)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunPortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	err = server.Run(context.Background(), l.Addr().String(), http.NotFoundHandler(), time.Second, nil)
	assert.Error(t, err)
}
