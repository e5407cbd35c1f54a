package delivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblade/dbmq/pkg/delivery"
)

func TestHTTPPusherPostsPayloadAndHeaders(t *testing.T) {
	t.Parallel()

	var (
		gotMethod string
		gotBody   []byte
		gotHeader http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := delivery.NewHTTPPusher(nil)
	err := p.Push(context.Background(), testRequest(srv.URL+"/hook"))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"qty":3}`, string(gotBody))
	assert.Equal(t, "t-1", gotHeader.Get("X-Trace"))
	assert.Equal(t, "A", gotHeader.Get("Modified-By"))
	assert.Equal(t, "orders", gotHeader.Get(delivery.HeaderChannel))
	assert.Equal(t, "o-1", gotHeader.Get(delivery.HeaderKey))
	assert.Equal(t, "2", gotHeader.Get(delivery.HeaderVersion))
	assert.Equal(t, "ok", gotHeader.Get(delivery.HeaderStatus))
	assert.Equal(t, "d-1", gotHeader.Get(delivery.HeaderDeliveryID))
}

func TestHTTPPusherReportsNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := delivery.NewHTTPPusher(nil).Push(context.Background(), testRequest(srv.URL))

	var se *delivery.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestHTTPPusherUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := delivery.NewHTTPPusher(nil).Push(context.Background(), testRequest(url))
	assert.Error(t, err)
}

func TestHTTPPusherHonorsContextDeadline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := delivery.NewHTTPPusher(nil).Push(ctx, testRequest(srv.URL))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
