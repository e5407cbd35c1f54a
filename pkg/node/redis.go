package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisRegistry keeps nodes in a Redis hash so that several broker
// processes share one set of identities.
//
// Key structure (prefix: "dbmq:"):
//
//	dbmq:nodes → HASH token -> msgpack(record)
type RedisRegistry struct {
	client    redis.UniversalClient
	keyPrefix string
	log       *slog.Logger
}

// RedisConfig configures the Redis registry.
type RedisConfig struct {
	// Addr is the Redis server address (default: "localhost:6379").
	Addr string

	// Addrs is a list of addresses for cluster mode.
	Addrs []string

	// Password for authentication.
	Password string

	// DB is the database number (ignored in cluster mode).
	DB int

	// KeyPrefix is prepended to all keys (default: "dbmq:").
	KeyPrefix string

	// Client allows providing a pre-configured Redis client.
	Client redis.UniversalClient

	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

type nodeRecord struct {
	Secret  string `msgpack:"s"`
	Address string `msgpack:"a,omitempty"`
	Type    byte   `msgpack:"t"`
}

// NewRedisRegistry creates a Redis-backed registry.
func NewRedisRegistry(cfg *RedisConfig) *RedisRegistry {
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	if cfg.Addr == "" && len(cfg.Addrs) == 0 {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dbmq:"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var client redis.UniversalClient
	if cfg.Client != nil {
		client = cfg.Client
	} else if len(cfg.Addrs) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	return &RedisRegistry{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		log:       cfg.Logger,
	}
}

// Start checks connectivity.
func (r *RedisRegistry) Start(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(testCtx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	r.log.Info("redis node registry started", "prefix", r.keyPrefix)
	return nil
}

// Close closes the underlying client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisRegistry) nodesKey() string {
	return r.keyPrefix + "nodes"
}

// Register stores n unless its token is already taken.
func (r *RedisRegistry) Register(ctx context.Context, n Node) error {
	if n.Token == "" {
		return ErrInvalidToken
	}
	if n.Type == 0 {
		n.Type = TypeClient
	}

	data, err := msgpack.Marshal(nodeRecord{
		Secret:  n.Secret,
		Address: n.Address,
		Type:    byte(n.Type),
	})
	if err != nil {
		return err
	}

	ok, err := r.client.HSetNX(ctx, r.nodesKey(), n.Token, data).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, n.Token)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, token string) (Node, error) {
	data, err := r.client.HGet(ctx, r.nodesKey(), token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Node{}, fmt.Errorf("node %s: %w", token, ErrInvalidToken)
	}
	if err != nil {
		return Node{}, fmt.Errorf("node lookup: %w", err)
	}

	var rec nodeRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return Node{}, fmt.Errorf("node %s: decode: %w", token, err)
	}

	return Node{
		Token:   token,
		Secret:  rec.Secret,
		Address: rec.Address,
		Type:    Type(rec.Type),
	}, nil
}

// Client returns the underlying Redis client.
func (r *RedisRegistry) Client() redis.UniversalClient {
	return r.client
}

var _ Registry = (*RedisRegistry)(nil)
