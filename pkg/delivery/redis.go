package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis pub/sub pusher.
type RedisConfig struct {
	// KeyPrefix names the default pub/sub channel, prefix + broker channel
	// (default: "dbmq:").
	KeyPrefix string

	// Client, if set, is used for every push regardless of the URL host.
	Client redis.UniversalClient
}

// RedisPusher PUBLISHes the encoded Envelope on a Redis pub/sub channel.
//
// Subscriber URLs take the form
//
//	redis://[user:pass@]host:port[/db][?channel=name]
//
// Without a channel parameter the pub/sub channel is KeyPrefix followed by
// the broker channel name.
type RedisPusher struct {
	keyPrefix string
	shared    redis.UniversalClient

	mu      sync.Mutex
	clients map[string]*redis.Client // normalized url -> client
}

// NewRedisPusher creates a Redis pusher.
func NewRedisPusher(cfg *RedisConfig) *RedisPusher {
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dbmq:"
	}
	return &RedisPusher{
		keyPrefix: cfg.KeyPrefix,
		shared:    cfg.Client,
		clients:   make(map[string]*redis.Client),
	}
}

func (p *RedisPusher) Push(ctx context.Context, req *Request) error {
	target, pubsub, err := p.parseURL(req.URL, req.Channel)
	if err != nil {
		return err
	}

	client, err := p.client(target)
	if err != nil {
		return err
	}

	data, err := NewEnvelope(req).Encode()
	if err != nil {
		return err
	}

	return client.Publish(ctx, pubsub, data).Err()
}

// parseURL splits the pub/sub channel name off the connection URL.
func (p *RedisPusher) parseURL(raw, channel string) (target, pubsub string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("subscriber url: %w", err)
	}

	q := u.Query()
	pubsub = q.Get("channel")
	q.Del("channel")
	u.RawQuery = q.Encode()

	if pubsub == "" {
		pubsub = p.keyPrefix + channel
	}
	return u.String(), pubsub, nil
}

func (p *RedisPusher) client(target string) (redis.UniversalClient, error) {
	if p.shared != nil {
		return p.shared, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[target]; ok {
		return c, nil
	}

	opts, err := redis.ParseURL(target)
	if err != nil {
		return nil, fmt.Errorf("subscriber url: %w", err)
	}
	c := redis.NewClient(opts)
	p.clients[target] = c
	return c, nil
}

// Close closes the clients this pusher opened. A shared client is left to
// its owner.
func (p *RedisPusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for target, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.clients, target)
	}
	return errors.Join(errs...)
}

var _ Pusher = (*RedisPusher)(nil)
