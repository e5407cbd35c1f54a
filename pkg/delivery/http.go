package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Headers added to every HTTP push.
const (
	HeaderChannel    = "Dbmq-Channel"
	HeaderKey        = "Dbmq-Key"
	HeaderVersion    = "Dbmq-Version"
	HeaderStatus     = "Dbmq-Status"
	HeaderDeliveryID = "Dbmq-Delivery-Id"
)

// HTTPConfig configures the HTTP pusher.
type HTTPConfig struct {
	// Client is the HTTP client to use. Default: a client with Timeout.
	Client *http.Client

	// Timeout bounds each push when Client is nil. Zero leaves the bound
	// to the push context deadline.
	Timeout time.Duration

	// UserAgent is sent with every push (default: "dbmq").
	UserAgent string
}

// HTTPPusher POSTs the message payload to the subscriber URL. Message
// headers travel as HTTP headers.
type HTTPPusher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPPusher creates an HTTP pusher.
func NewHTTPPusher(cfg *HTTPConfig) *HTTPPusher {
	if cfg == nil {
		cfg = &HTTPConfig{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "dbmq"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPPusher{
		client:    client,
		userAgent: cfg.UserAgent,
	}
}

func (p *HTTPPusher) Push(ctx context.Context, req *Request) error {
	m := req.Message

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(m.Data))
	if err != nil {
		return err
	}
	for k, v := range m.Headers {
		r.Header.Set(k, v)
	}
	r.Header.Set("Content-Type", "application/octet-stream")
	r.Header.Set("User-Agent", p.userAgent)
	r.Header.Set(HeaderChannel, req.Channel)
	r.Header.Set(HeaderKey, m.Key)
	r.Header.Set(HeaderVersion, strconv.FormatUint(m.Version, 10))
	r.Header.Set(HeaderStatus, m.Status.String())
	r.Header.Set(HeaderDeliveryID, req.ID)

	resp, err := p.client.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: req.URL, Code: resp.StatusCode}
	}
	return nil
}

var _ Pusher = (*HTTPPusher)(nil)
