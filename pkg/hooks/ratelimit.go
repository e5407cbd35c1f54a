package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eblade/dbmq/pkg/broker"
	"github.com/eblade/dbmq/pkg/node"
)

// RateLimitHook limits write rates per node.
type RateLimitHook struct {
	limit         rate.Limit
	burst         int
	exemptServers bool
	idle          time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket // node token -> bucket

	cancel context.CancelFunc
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// WriteRate is the sustained number of writes per second per node.
	// Zero disables limiting.
	WriteRate float64

	// Burst is the max burst allowed (default: 2 * WriteRate, at least 1).
	Burst int

	// ExemptServers lets server-type nodes write without limit.
	ExemptServers bool

	// IdleTimeout drops the state of nodes that stopped writing (default: 5m).
	IdleTimeout time.Duration
}

// NewRateLimitHook creates a new rate limiting hook. Close stops its
// cleanup goroutine.
func NewRateLimitHook(cfg RateLimitConfig) *RateLimitHook {
	if cfg.Burst == 0 {
		cfg.Burst = max(int(cfg.WriteRate*2), 1)
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &RateLimitHook{
		limit:         rate.Limit(cfg.WriteRate),
		burst:         cfg.Burst,
		exemptServers: cfg.ExemptServers,
		idle:          cfg.IdleTimeout,
		buckets:       make(map[string]*bucket),
		cancel:        cancel,
	}

	// Start cleanup goroutine
	go h.cleanup(ctx)

	return h
}

func (h *RateLimitHook) ID() string { return "ratelimit" }

// OnWrite rejects the write with broker.ErrRateLimited when the node is
// over its rate.
func (h *RateLimitHook) OnWrite(ctx context.Context, n node.Node, channel string, op broker.Op) error {
	if h.limit <= 0 {
		return nil // No limit
	}
	if h.exemptServers && n.Type == node.TypeServer {
		return nil
	}

	if !h.getLimiter(n.Token).Allow() {
		return fmt.Errorf("%s by %s: %w", op, n.Token, broker.ErrRateLimited)
	}
	return nil
}

func (h *RateLimitHook) getLimiter(token string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.buckets[token]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(h.limit, h.burst)}
		h.buckets[token] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (h *RateLimitHook) cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.mu.Lock()
			for token, b := range h.buckets {
				// Remove stale buckets
				if now.Sub(b.lastSeen) > h.idle {
					delete(h.buckets, token)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (h *RateLimitHook) Close() error {
	h.cancel()
	return nil
}

var _ broker.WriteHook = (*RateLimitHook)(nil)
