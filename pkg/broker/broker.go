package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/eblade/dbmq/pkg/delivery"
	"github.com/eblade/dbmq/pkg/message"
	"github.com/eblade/dbmq/pkg/node"
)

// Config holds broker configuration.
type Config struct {
	// DeliveryTimeout bounds each push to a subscriber (default: 10s).
	DeliveryTimeout time.Duration

	// Pusher delivers messages to subscribers. If nil, a mux with the
	// HTTP pusher for http and https is used.
	Pusher delivery.Pusher

	// Nodes authenticates callers. If nil, an empty in-memory registry is
	// used and every call fails authentication.
	Nodes node.Registry

	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// Now returns the time stamped into audit headers (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DeliveryTimeout: 10 * time.Second,
	}
}

// Broker is the directory of channels and the entry point for every
// operation. Each operation authenticates the caller before it touches a
// channel.
type Broker struct {
	config *Config
	hooks  *Hooks
	nodes  node.Registry
	pusher delivery.Pusher
	log    *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel // name -> channel
	closed   bool

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new broker with the given configuration.
func New(config *Config) *Broker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 10 * time.Second
	}
	if config.Pusher == nil {
		mux := delivery.NewMux()
		mux.Handle(delivery.NewHTTPPusher(nil), "http", "https")
		config.Pusher = mux
	}
	if config.Nodes == nil {
		config.Nodes, _ = node.NewMemoryRegistry()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Broker{
		config:   config,
		hooks:    NewHooks(),
		nodes:    config.Nodes,
		pusher:   config.Pusher,
		log:      config.Logger,
		channels: make(map[string]*Channel),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHook registers a hook for extending broker behavior.
func (b *Broker) RegisterHook(hook Hook) {
	b.hooks.Register(hook)
}

// Channel returns the named channel, creating it and starting its
// delivery worker on first use.
func (b *Broker) Channel(name string) (*Channel, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	b.mu.RLock()
	ch, ok := b.channels[name]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return ch, nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	// Double-check
	if ch, ok := b.channels[name]; ok {
		b.mu.Unlock()
		return ch, nil
	}
	ch = newChannel(name)
	b.channels[name] = ch
	b.wg.Add(1)
	go b.deliver(ch)
	b.mu.Unlock()

	b.hooks.OnChannelCreated(b.ctx, name)
	return ch, nil
}

// lookup returns an existing channel without creating it.
func (b *Broker) lookup(name string) (*Channel, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	ch, ok := b.channels[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownChannel)
	}
	return ch, nil
}

func (b *Broker) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Channels returns the names of all channels, sorted.
func (b *Broker) Channels() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.channels))
	for name := range b.channels {
		names = append(names, name)
	}
	b.mu.RUnlock()

	slices.Sort(names)
	return names
}

func (b *Broker) authenticate(ctx context.Context, creds node.Credentials) (node.Node, error) {
	n, err := node.Authenticate(ctx, b.nodes, creds)
	if err != nil {
		b.hooks.OnAuthFailed(ctx, creds.Token, err)
		return node.Node{}, err
	}
	b.hooks.OnAuthenticated(ctx, n)
	return n, nil
}

// admit authenticates the caller and runs the write hooks.
func (b *Broker) admit(ctx context.Context, creds node.Credentials, channel string, op Op) (node.Node, error) {
	n, err := b.authenticate(ctx, creds)
	if err != nil {
		return node.Node{}, err
	}
	if err := b.hooks.OnWrite(ctx, n, channel, op); err != nil {
		return node.Node{}, err
	}
	return n, nil
}

// Get returns the current value of key in channel. A channel that does
// not exist is not created; its keys are all missing.
func (b *Broker) Get(ctx context.Context, creds node.Credentials, channel, key string) (*message.Message, error) {
	if _, err := b.authenticate(ctx, creds); err != nil {
		return nil, err
	}

	ch, err := b.lookup(channel)
	if err != nil {
		if errors.Is(err, ErrUnknownChannel) {
			return nil, fmt.Errorf("%s/%s: %w", channel, key, ErrMissingKey)
		}
		return nil, err
	}
	return ch.Get(key)
}

// Create stores data under a new key and queues it for delivery.
func (b *Broker) Create(ctx context.Context, creds node.Credentials, channel, key string, headers message.Headers, data []byte) (*message.Message, error) {
	n, err := b.admit(ctx, creds, channel, OpCreate)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	ch, err := b.Channel(channel)
	if err != nil {
		return nil, err
	}

	now := b.config.Now()
	m := message.New(key, data, headers)
	m.Headers.Stamp(message.HeaderCreatedBy, message.HeaderCreated, n.Token, now)
	m.Headers.Stamp(message.HeaderModifiedBy, message.HeaderModified, n.Token, now)

	stored, err := ch.Create(m)
	if err != nil {
		return nil, err
	}

	b.hooks.OnStored(ctx, channel, stored)
	return stored, nil
}

// Update stores data as the next version of key and queues it for
// delivery. The returned message has status pending when the channel has
// a replication subscriber; the current value is then left unchanged.
func (b *Broker) Update(ctx context.Context, creds node.Credentials, channel, key string, headers message.Headers, data []byte) (*message.Message, error) {
	n, err := b.admit(ctx, creds, channel, OpUpdate)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	ch, err := b.Channel(channel)
	if err != nil {
		return nil, err
	}

	m := message.New(key, data, headers)
	m.Headers.Stamp(message.HeaderModifiedBy, message.HeaderModified, n.Token, b.config.Now())

	stored, err := ch.Update(m)
	if err != nil {
		return nil, err
	}

	b.hooks.OnStored(ctx, channel, stored)
	return stored, nil
}

// Delete tombstones key if version is its current version. A channel
// that does not exist is not created.
func (b *Broker) Delete(ctx context.Context, creds node.Credentials, channel, key string, version uint64, headers message.Headers) (*message.Message, error) {
	n, err := b.admit(ctx, creds, channel, OpDelete)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	ch, err := b.lookup(channel)
	if err != nil {
		if errors.Is(err, ErrUnknownChannel) {
			return nil, fmt.Errorf("%s/%s: %w", channel, key, ErrMissingKey)
		}
		return nil, err
	}
	if b.isClosed() {
		return nil, ErrClosed
	}

	h := headers.Clone()
	h.Stamp(message.HeaderDeletedBy, message.HeaderDeleted, n.Token, b.config.Now())

	tomb, err := ch.Delete(key, version, h)
	if err != nil {
		return nil, err
	}

	b.hooks.OnDeleted(ctx, channel, tomb)
	return tomb, nil
}

// Subscribe registers rawURL as the caller's endpoint on channel. typ is
// a subscription type name. A node re-subscribing replaces its previous
// type and url.
func (b *Broker) Subscribe(ctx context.Context, creds node.Credentials, channel, typ, rawURL string) (Subscription, error) {
	n, err := b.admit(ctx, creds, channel, OpSubscribe)
	if err != nil {
		return Subscription{}, err
	}

	st, err := ParseSubscriptionType(typ)
	if err != nil {
		return Subscription{}, err
	}
	if err := b.validateURL(rawURL); err != nil {
		return Subscription{}, err
	}

	ch, err := b.Channel(channel)
	if err != nil {
		return Subscription{}, err
	}

	sub := ch.Subscribe(n.Token, st, rawURL)
	b.hooks.OnSubscribed(ctx, sub)
	return sub, nil
}

func (b *Broker) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSubscriptionURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrBadSubscriptionURL, rawURL)
	}
	if s, ok := b.pusher.(interface{ Supports(string) bool }); ok && !s.Supports(u.Scheme) {
		return fmt.Errorf("%w: unsupported scheme %q", ErrBadSubscriptionURL, u.Scheme)
	}
	return nil
}

// Unsubscribe removes the caller's subscription on channel. It is a no-op
// when there is none, and never creates the channel.
func (b *Broker) Unsubscribe(ctx context.Context, creds node.Credentials, channel string) error {
	n, err := b.admit(ctx, creds, channel, OpUnsubscribe)
	if err != nil {
		return err
	}

	ch, err := b.lookup(channel)
	if err != nil {
		if errors.Is(err, ErrUnknownChannel) {
			return nil
		}
		return err
	}

	if ch.Unsubscribe(n.Token) {
		b.hooks.OnUnsubscribed(ctx, channel, n.Token)
	}
	return nil
}

// Subscriptions lists the subscriptions of an existing channel.
func (b *Broker) Subscriptions(ctx context.Context, creds node.Credentials, channel string) ([]Subscription, error) {
	if _, err := b.authenticate(ctx, creds); err != nil {
		return nil, err
	}

	ch, err := b.lookup(channel)
	if err != nil {
		return nil, err
	}
	return ch.Subscriptions(), nil
}

// Shutdown stops all delivery workers. Messages still queued are dropped.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()

	// Wait for all goroutines
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns broker statistics.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	channels := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		channels = append(channels, ch)
	}
	b.mu.RUnlock()

	stats := Stats{Channels: len(channels)}
	for _, ch := range channels {
		cs := ch.Stats()
		stats.Keys += cs.Keys
		stats.Subscriptions += cs.Subscriptions
		stats.Queued += cs.Queued
	}
	return stats
}

// Stats holds broker statistics.
type Stats struct {
	Channels      int
	Keys          int
	Subscriptions int
	Queued        int
}
