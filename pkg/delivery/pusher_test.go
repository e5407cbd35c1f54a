package delivery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblade/dbmq/pkg/delivery"
	"github.com/eblade/dbmq/pkg/message"
)

func testRequest(url string) *delivery.Request {
	return &delivery.Request{
		ID:        "d-1",
		Channel:   "orders",
		NodeToken: "B",
		URL:       url,
		Message: &message.Message{
			Key:     "o-1",
			Data:    []byte(`{"qty":3}`),
			Version: 2,
			Status:  message.StatusOK,
			Headers: message.Headers{"X-Trace": "t-1", message.HeaderModifiedBy: "A"},
		},
	}
}

type closingPusher struct {
	delivery.PusherFunc
	closed int
}

func (p *closingPusher) Close() error {
	p.closed++
	return nil
}

func TestMuxDispatchesOnScheme(t *testing.T) {
	t.Parallel()

	var got []string
	record := func(name string) delivery.PusherFunc {
		return func(ctx context.Context, req *delivery.Request) error {
			got = append(got, name)
			return nil
		}
	}

	mux := delivery.NewMux()
	mux.Handle(record("http"), "http", "https")
	mux.Handle(record("grpc"), "grpc")

	ctx := context.Background()
	require.NoError(t, mux.Push(ctx, testRequest("HTTPS://example.com/hook")))
	require.NoError(t, mux.Push(ctx, testRequest("grpc://10.0.0.1:7000")))

	err := mux.Push(ctx, testRequest("ftp://example.com"))
	assert.ErrorIs(t, err, delivery.ErrUnsupportedScheme)

	assert.Equal(t, []string{"http", "grpc"}, got)
	assert.False(t, mux.Supports("ws"))
	assert.True(t, mux.Supports("https"))
}

func TestMuxCloseClosesEachPusherOnce(t *testing.T) {
	t.Parallel()

	p := &closingPusher{PusherFunc: func(context.Context, *delivery.Request) error { return errors.New("unused") }}
	mux := delivery.NewMux()
	mux.Handle(p, "ws", "wss")

	require.NoError(t, mux.Close())
	assert.Equal(t, 1, p.closed)
}
