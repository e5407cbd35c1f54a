package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblade/dbmq/pkg/broker"
	"github.com/eblade/dbmq/pkg/delivery"
	"github.com/eblade/dbmq/pkg/node"
	"github.com/eblade/dbmq/pkg/transport/httpapi"
)

type client struct {
	t      *testing.T
	base   string
	token  string
	secret string
}

func (c client) do(method, path string, body string, headers map[string]string) *http.Response {
	c.t.Helper()

	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	require.NoError(c.t, err)
	if c.token != "" {
		req.Header.Set(httpapi.HeaderNodeToken, c.token)
		req.Header.Set(httpapi.HeaderNodeSecret, c.secret)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func setup(t *testing.T) (alice, bob client, pushes chan *delivery.Request) {
	t.Helper()

	nodes, err := node.NewMemoryRegistry(
		node.Node{Token: "alice", Secret: "a-secret"},
		node.Node{Token: "bob", Secret: "b-secret"},
	)
	require.NoError(t, err)

	pushes = make(chan *delivery.Request, 16)
	b := broker.New(&broker.Config{
		Nodes: nodes,
		Pusher: delivery.PusherFunc(func(ctx context.Context, req *delivery.Request) error {
			pushes <- req
			return nil
		}),
	})

	srv := httptest.NewServer(httpapi.NewHandler(b, &httpapi.Config{
		MaxBodyBytes: 1024,
		Metrics:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "metrics") }),
	}))
	t.Cleanup(func() {
		srv.Close()
		b.Shutdown(context.Background())
	})

	alice = client{t: t, base: srv.URL, token: "alice", secret: "a-secret"}
	bob = client{t: t, base: srv.URL, token: "bob", secret: "b-secret"}
	return alice, bob, pushes
}

func TestMessageLifecycle(t *testing.T) {
	t.Parallel()
	alice, bob, _ := setup(t)

	resp := alice.do(http.MethodPost, "/orders/o-1", `{"qty":1}`, map[string]string{
		"X-Trace":    "t-1",
		"Not-Stored": "nope",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(delivery.HeaderVersion))

	resp = bob.do(http.MethodGet, "/orders/o-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"qty":1}`, readAll(t, resp))
	assert.Equal(t, "t-1", resp.Header.Get("X-Trace"))
	assert.Empty(t, resp.Header.Get("Not-Stored"))
	assert.Equal(t, "alice", resp.Header.Get("Created-By"))
	assert.Equal(t, "ok", resp.Header.Get(delivery.HeaderStatus))

	resp = bob.do(http.MethodPut, "/orders/o-1", `{"qty":2}`, map[string]string{"Source-Version": "1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(delivery.HeaderVersion))

	resp = alice.do(http.MethodGet, "/orders/o-1", "", nil)
	assert.Equal(t, `{"qty":2}`, readAll(t, resp))
	assert.Equal(t, "bob", resp.Header.Get("Modified-By"))
	assert.Equal(t, "1", resp.Header.Get("Source-Version"))

	resp = alice.do(http.MethodDelete, "/orders/o-1", "", map[string]string{"Source-Version": "1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = alice.do(http.MethodDelete, "/orders/o-1", "", map[string]string{"Source-Version": "2"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = alice.do(http.MethodGet, "/orders/o-1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, errorBody(t, resp), "missing key")
}

func TestSubscriptionRoutes(t *testing.T) {
	t.Parallel()
	alice, bob, pushes := setup(t)

	resp := bob.do(http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = bob.do(http.MethodPost, "/orders?type=replication&url=http://bob.example/in", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = alice.do(http.MethodGet, "/orders", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var subs []map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&subs))
	assert.Equal(t, []map[string]string{{
		"channel": "orders",
		"node":    "bob",
		"type":    "replication",
		"url":     "http://bob.example/in",
	}}, subs)

	resp = alice.do(http.MethodPost, "/orders/o-1", "v1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	select {
	case req := <-pushes:
		assert.Equal(t, "http://bob.example/in", req.URL)
		assert.Equal(t, "o-1", req.Message.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("no push")
	}

	resp = alice.do(http.MethodPut, "/orders/o-1", "v2", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", resp.Header.Get(delivery.HeaderStatus))

	resp = bob.do(http.MethodDelete, "/orders", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = alice.do(http.MethodGet, "/orders", "", nil)
	assert.JSONEq(t, `[]`, readAll(t, resp))
}

func TestErrorStatusCodes(t *testing.T) {
	t.Parallel()
	alice, _, _ := setup(t)
	anonymous := alice
	anonymous.token = ""
	intruder := alice
	intruder.secret = "guess"

	resp := alice.do(http.MethodPost, "/orders/o-1", "x", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		name   string
		c      client
		method string
		path   string
		body   string
		header map[string]string
		want   int
	}{
		{"no token", anonymous, http.MethodGet, "/orders/o-1", "", nil, http.StatusUnauthorized},
		{"bad secret", intruder, http.MethodGet, "/orders/o-1", "", nil, http.StatusUnauthorized},
		{"conflict", alice, http.MethodPost, "/orders/o-1", "x", nil, http.StatusConflict},
		{"update missing", alice, http.MethodPut, "/orders/o-2", "x", nil, http.StatusNotFound},
		{"delete without version", alice, http.MethodDelete, "/orders/o-1", "", nil, http.StatusBadRequest},
		{"delete bad version", alice, http.MethodDelete, "/orders/o-1", "", map[string]string{"Source-Version": "one"}, http.StatusBadRequest},
		{"delete unknown channel", alice, http.MethodDelete, "/ordres/o-1", "", map[string]string{"Source-Version": "1"}, http.StatusNotFound},
		{"reserved channel", alice, http.MethodPost, "/metrics/m-1", "x", nil, http.StatusBadRequest},
		{"bad subscription type", alice, http.MethodPost, "/orders?type=fanout&url=http://a.example", "", nil, http.StatusBadRequest},
		{"bad subscription url", alice, http.MethodPost, "/orders?type=topic&url=nowhere", "", nil, http.StatusBadRequest},
		{"body too large", alice, http.MethodPost, "/orders/big", strings.Repeat("x", 2048), nil, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.c.t = t
			resp := tt.c.do(tt.method, tt.path, tt.body, tt.header)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, errorBody(t, resp))
		})
	}
}

func TestClientTokenAlias(t *testing.T) {
	t.Parallel()
	alice, _, _ := setup(t)

	legacy := alice
	legacy.token = ""
	resp := legacy.do(http.MethodPost, "/orders/o-1", "x", map[string]string{
		httpapi.HeaderClientToken: "alice",
		httpapi.HeaderNodeSecret:  "a-secret",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	alice, _, _ := setup(t)

	resp := alice.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", readAll(t, resp))

	resp = alice.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, "metrics", readAll(t, resp))
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("x: %w", node.ErrInvalidToken), http.StatusUnauthorized},
		{broker.ErrUnknownChannel, http.StatusNotFound},
		{broker.ErrInactiveVersion, http.StatusConflict},
		{broker.ErrBadChannelName, http.StatusBadRequest},
		{broker.ErrRateLimited, http.StatusTooManyRequests},
		{broker.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpapi.StatusCode(tt.err), "%v", tt.err)
	}
}
