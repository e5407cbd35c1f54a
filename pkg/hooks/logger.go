package hooks

import (
	"context"
	"log/slog"

	"github.com/eblade/dbmq/pkg/broker"
	"github.com/eblade/dbmq/pkg/message"
	"github.com/eblade/dbmq/pkg/node"
)

// LoggerHook logs broker events using slog.
type LoggerHook struct {
	logger *slog.Logger
	level  LogLevel
}

// LogLevel controls which events are logged.
type LogLevel int

const (
	// LogLevelAuth logs rejected callers.
	LogLevelAuth LogLevel = 1 << iota
	// LogLevelChannel logs channel creation.
	LogLevelChannel
	// LogLevelSubscribe logs subscribe/unsubscribe events.
	LogLevelSubscribe
	// LogLevelStore logs accepted writes and deletes.
	LogLevelStore
	// LogLevelDelivery logs push attempts.
	LogLevelDelivery
	// LogLevelAll logs all events.
	LogLevelAll = LogLevelAuth | LogLevelChannel | LogLevelSubscribe | LogLevelStore | LogLevelDelivery
)

// LoggerConfig configures the logger hook.
type LoggerConfig struct {
	// Logger is the slog.Logger to use (default: slog.Default()).
	Logger *slog.Logger

	// Level controls which events are logged (default: LogLevelAll).
	Level LogLevel
}

// NewLoggerHook creates a new logging hook.
func NewLoggerHook(cfg LoggerConfig) *LoggerHook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Level == 0 {
		cfg.Level = LogLevelAll
	}
	return &LoggerHook{
		logger: cfg.Logger,
		level:  cfg.Level,
	}
}

func (h *LoggerHook) ID() string { return "logger" }

// AuthHook implementation

func (h *LoggerHook) OnAuthenticated(ctx context.Context, n node.Node) {}

func (h *LoggerHook) OnAuthFailed(ctx context.Context, token string, err error) {
	if h.level&LogLevelAuth == 0 {
		return
	}
	h.logger.Warn("authentication failed",
		"node", token,
		"error", err.Error(),
	)
}

// ChannelHook implementation

func (h *LoggerHook) OnChannelCreated(ctx context.Context, channel string) {
	if h.level&LogLevelChannel == 0 {
		return
	}
	h.logger.Info("channel created",
		"channel", channel,
	)
}

// SubscriptionHook implementation

func (h *LoggerHook) OnSubscribed(ctx context.Context, sub broker.Subscription) {
	if h.level&LogLevelSubscribe == 0 {
		return
	}
	h.logger.Info("node subscribed",
		"channel", sub.Channel,
		"node", sub.NodeToken,
		"type", sub.Type,
		"url", sub.URL,
	)
}

func (h *LoggerHook) OnUnsubscribed(ctx context.Context, channel, token string) {
	if h.level&LogLevelSubscribe == 0 {
		return
	}
	h.logger.Info("node unsubscribed",
		"channel", channel,
		"node", token,
	)
}

// MessageHook implementation

func (h *LoggerHook) OnStored(ctx context.Context, channel string, m *message.Message) {
	if h.level&LogLevelStore == 0 {
		return
	}
	h.logger.Debug("message stored",
		"channel", channel,
		"key", m.Key,
		"version", m.Version,
		"status", m.Status,
		"payload_size", len(m.Data),
	)
}

func (h *LoggerHook) OnDeleted(ctx context.Context, channel string, tombstone *message.Message) {
	if h.level&LogLevelStore == 0 {
		return
	}
	h.logger.Debug("message deleted",
		"channel", channel,
		"key", tombstone.Key,
		"version", tombstone.Version,
		"by", tombstone.Headers[message.HeaderDeletedBy],
	)
}

// DeliveryHook implementation

// OnDelivered logs successful pushes. The broker itself logs failures.
func (h *LoggerHook) OnDelivered(ctx context.Context, d broker.Delivery, err error) {
	if h.level&LogLevelDelivery == 0 || err != nil {
		return
	}
	h.logger.Debug("message delivered",
		"channel", d.Subscription.Channel,
		"key", d.Message.Key,
		"version", d.Message.Version,
		"node", d.Subscription.NodeToken,
		"delivery_id", d.ID,
		"duration", d.Duration,
	)
}

var (
	_ broker.AuthHook         = (*LoggerHook)(nil)
	_ broker.ChannelHook      = (*LoggerHook)(nil)
	_ broker.SubscriptionHook = (*LoggerHook)(nil)
	_ broker.MessageHook      = (*LoggerHook)(nil)
	_ broker.DeliveryHook     = (*LoggerHook)(nil)
)
