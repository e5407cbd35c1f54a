// Package delivery pushes stored messages to subscriber endpoints.
//
// A Pusher delivers one message to one subscriber URL. Mux dispatches on
// the URL scheme so a broker can serve subscribers over several transports:
//
//	mux := delivery.NewMux()
//	mux.Handle(delivery.NewHTTPPusher(nil), "http", "https")
//	mux.Handle(delivery.NewWebSocketPusher(nil), "ws", "wss")
//	mux.Handle(delivery.NewRedisPusher(nil), "redis", "rediss")
//	mux.Handle(delivery.NewGRPCPusher(nil), "grpc")
//
// Delivery is fire-and-forget: pushers report failure to the caller but
// never retry.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/eblade/dbmq/pkg/message"
)

// Request is one message bound for one subscriber.
type Request struct {
	// ID uniquely identifies this delivery attempt.
	ID string

	// Channel is the name of the channel the message was written to.
	Channel string

	// NodeToken identifies the subscribing node.
	NodeToken string

	// URL is the subscriber endpoint.
	URL string

	// Message is the pushed message. It must not be modified.
	Message *message.Message
}

// Pusher delivers a message to a subscriber endpoint.
type Pusher interface {
	Push(ctx context.Context, req *Request) error
}

// PusherFunc adapts a function to Pusher.
type PusherFunc func(ctx context.Context, req *Request) error

func (f PusherFunc) Push(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// Mux routes requests to a Pusher by URL scheme.
type Mux struct {
	mu      sync.RWMutex
	pushers map[string]Pusher // scheme -> pusher
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{
		pushers: make(map[string]Pusher),
	}
}

// Handle registers p for the given schemes. Schemes are case-insensitive.
func (m *Mux) Handle(p Pusher, schemes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range schemes {
		m.pushers[strings.ToLower(s)] = p
	}
}

// Supports reports whether a pusher is registered for scheme.
func (m *Mux) Supports(scheme string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.pushers[strings.ToLower(scheme)]
	return ok
}

func (m *Mux) Push(ctx context.Context, req *Request) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("subscriber url: %w", err)
	}

	m.mu.RLock()
	p, ok := m.pushers[strings.ToLower(u.Scheme)]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return p.Push(ctx, req)
}

// Close closes every registered pusher that holds resources.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Keyed on the closer only: PusherFunc values are not comparable.
	seen := make(map[io.Closer]bool)
	var errs []error
	for _, p := range m.pushers {
		c, ok := p.(io.Closer)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Pusher = (*Mux)(nil)
