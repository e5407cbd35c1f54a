package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblade/dbmq/pkg/delivery"
	"github.com/eblade/dbmq/pkg/message"
)

func TestWebSocketPusherSendsEnvelope(t *testing.T) {
	t.Parallel()

	frames := make(chan []byte, 1)
	upgrader := websocket.Upgrader{Subprotocols: []string{delivery.Subprotocol}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		typ, data, err := conn.ReadMessage()
		if err == nil && typ == websocket.BinaryMessage {
			frames <- data
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sub"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, delivery.NewWebSocketPusher(nil).Push(ctx, testRequest(wsURL)))

	select {
	case data := <-frames:
		env, err := delivery.DecodeEnvelope(data)
		require.NoError(t, err)
		assert.Equal(t, "d-1", env.DeliveryID)
		assert.Equal(t, "orders", env.Channel)

		m, err := env.Message()
		require.NoError(t, err)
		assert.Equal(t, "o-1", m.Key)
		assert.Equal(t, uint64(2), m.Version)
		assert.Equal(t, message.StatusOK, m.Status)
		assert.Equal(t, `{"qty":3}`, string(m.Data))
		assert.Equal(t, "t-1", m.Headers["X-Trace"])
	case <-ctx.Done():
		t.Fatal("no frame received")
	}
}

func TestWebSocketPusherDialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	err := delivery.NewWebSocketPusher(nil).Push(context.Background(), testRequest(wsURL))
	assert.Error(t, err)
}
