// Package config loads dbmq settings from the environment.
//
// An optional .env file is read first; variables already set in the
// process environment win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/eblade/dbmq/pkg/node"
)

// Config holds process configuration.
type Config struct {
	// Listen is the address of the HTTP API.
	Listen string `env:"DBMQ_LISTEN" envDefault:":8080"`

	LogLevel  slog.Level `env:"DBMQ_LOG_LEVEL" envDefault:"info"`
	LogFormat string     `env:"DBMQ_LOG_FORMAT" envDefault:"text"` // text or json

	// DeliveryTimeout bounds each push to a subscriber.
	DeliveryTimeout time.Duration `env:"DBMQ_DELIVERY_TIMEOUT" envDefault:"10s"`

	// MaxBodyBytes limits message payloads.
	MaxBodyBytes int64 `env:"DBMQ_MAX_BODY_BYTES" envDefault:"16777216"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"DBMQ_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Nodes are provisioned at startup, as token:secret[:type].
	Nodes []string `env:"DBMQ_NODES" envSeparator:","`

	// Metrics enables /metrics.
	Metrics bool `env:"DBMQ_METRICS" envDefault:"true"`

	// WriteRate limits writes per node per second (0 = unlimited).
	WriteRate  float64 `env:"DBMQ_WRITE_RATE" envDefault:"0"`
	WriteBurst int     `env:"DBMQ_WRITE_BURST" envDefault:"0"`

	Redis RedisConfig `envPrefix:"DBMQ_REDIS_"`
}

// RedisConfig selects the Redis node registry. It is used when Addr is set.
type RedisConfig struct {
	Addr      string `env:"ADDR"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"dbmq:"`
}

// Load reads the given .env files (default: ".env", if present) and
// parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("DBMQ_LOG_FORMAT: unknown format %q", cfg.LogFormat)
	}
	return &cfg, nil
}

// ParseNode parses "token:secret[:type]". Type defaults to client.
func ParseNode(s string) (node.Node, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return node.Node{}, fmt.Errorf("node %q: want token:secret[:type]", s)
	}

	n := node.Node{
		Token:  parts[0],
		Secret: parts[1],
		Type:   node.TypeClient,
	}
	if len(parts) == 3 {
		t, err := node.ParseType(parts[2])
		if err != nil {
			return node.Node{}, fmt.Errorf("node %q: %w", s, err)
		}
		n.Type = t
	}
	return n, nil
}

// ParseNodes parses every entry of Nodes.
func (c *Config) ParseNodes() ([]node.Node, error) {
	out := make([]node.Node, 0, len(c.Nodes))
	for _, s := range c.Nodes {
		n, err := ParseNode(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
