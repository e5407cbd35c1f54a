package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Import for side effects - registers /debug/pprof handlers
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/eblade/dbmq/pkg/broker"
	"github.com/eblade/dbmq/pkg/config"
	"github.com/eblade/dbmq/pkg/delivery"
	"github.com/eblade/dbmq/pkg/hooks"
	"github.com/eblade/dbmq/pkg/node"
	"github.com/eblade/dbmq/pkg/transport/httpapi"
)

var (
	addr      = flag.String("addr", "", "HTTP API listen address (overrides DBMQ_LISTEN)")
	envFile   = flag.String("env", "", ".env file to load (default: .env if present)")
	certFile  = flag.String("cert", "", "TLS certificate file (optional)")
	keyFile   = flag.String("key", "", "TLS private key file (optional)")
	pprofAddr = flag.String("pprof", "", "pprof HTTP server address (e.g. :6060)")

	nodes nodeSlice
)

// Custom flag type for accumulating nodes
type nodeSlice []node.Node

func (s *nodeSlice) String() string {
	tokens := []string{}
	for _, n := range *s {
		tokens = append(tokens, n.Token)
	}
	return strings.Join(tokens, ",")
}

func (s *nodeSlice) Set(v string) error {
	n, err := config.ParseNode(v)
	if err != nil {
		return err
	}
	*s = append(*s, n)
	return nil
}

func init() {
	flag.Var(&nodes, "node", "Node: token:secret[:client|server] (can be repeated)")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		slog.Error("dbmq stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, closeRegistry, err := openRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRegistry()

	pushers := newPushers(log)
	defer pushers.Close()

	b := broker.New(&broker.Config{
		DeliveryTimeout: cfg.DeliveryTimeout,
		Pusher:          pushers,
		Nodes:           registry,
		Logger:          log,
	})

	b.RegisterHook(hooks.NewLoggerHook(hooks.LoggerConfig{Logger: log}))

	var metrics http.Handler
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mh := hooks.NewMetricsHook(hooks.MetricsConfig{Stats: b.Stats})
		if err := mh.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		b.RegisterHook(mh)
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	if cfg.WriteRate > 0 {
		rl := hooks.NewRateLimitHook(hooks.RateLimitConfig{
			WriteRate:     cfg.WriteRate,
			Burst:         cfg.WriteBurst,
			ExemptServers: true,
		})
		defer rl.Close()
		b.RegisterHook(rl)
		log.Info("write rate limit enabled", "rate", cfg.WriteRate, "burst", cfg.WriteBurst)
	}

	var tlsConfig *tls.Config
	if *certFile != "" && *keyFile != "" {
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	api := httpapi.NewServer("api", cfg.Listen, httpapi.NewHandler(b, &httpapi.Config{
		Logger:       log,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Metrics:      metrics,
	}), &httpapi.ServerConfig{TLSConfig: tlsConfig})

	// Start pprof server if enabled
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof server listening", "addr", "http://"+*pprofAddr+"/debug/pprof/")
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				log.Warn("pprof server error", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("dbmq listening", "addr", cfg.Listen, "tls", tlsConfig != nil)
		return api.Serve()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return errors.Join(api.Shutdown(sctx), b.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("dbmq stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openRegistry returns the Redis registry when configured, the in-memory
// one otherwise. Nodes from flags and environment are registered in it.
func openRegistry(ctx context.Context, cfg *config.Config, log *slog.Logger) (node.Registry, func(), error) {
	provisioned, err := cfg.ParseNodes()
	if err != nil {
		return nil, nil, err
	}
	provisioned = append(provisioned, nodes...)

	if cfg.Redis.Addr == "" {
		reg, err := node.NewMemoryRegistry(provisioned...)
		if err != nil {
			return nil, nil, err
		}
		log.Info("node registry ready", "backend", "memory", "nodes", reg.Len())
		return reg, func() {}, nil
	}

	reg := node.NewRedisRegistry(&node.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		Logger:    log,
	})
	if err := reg.Start(ctx); err != nil {
		reg.Close()
		return nil, nil, err
	}
	for _, n := range provisioned {
		err := reg.Register(ctx, n)
		if errors.Is(err, node.ErrDuplicateToken) {
			log.Info("node already registered", "node", n.Token)
			continue
		}
		if err != nil {
			reg.Close()
			return nil, nil, err
		}
	}
	return reg, func() { reg.Close() }, nil
}

// newPushers registers a pusher for every supported subscriber url scheme.
func newPushers(log *slog.Logger) *delivery.Mux {
	mux := delivery.NewMux()
	mux.Handle(delivery.NewHTTPPusher(nil), "http", "https")
	mux.Handle(delivery.NewWebSocketPusher(nil), "ws", "wss")
	mux.Handle(delivery.NewRedisPusher(nil), "redis", "rediss")
	mux.Handle(delivery.NewGRPCPusher(&delivery.GRPCConfig{Logger: log}), "grpc")
	return mux
}
