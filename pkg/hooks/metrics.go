// Package hooks provides composable hook implementations for the dbmq broker.
package hooks

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eblade/dbmq/pkg/broker"
	"github.com/eblade/dbmq/pkg/message"
	"github.com/eblade/dbmq/pkg/node"
)

// MetricsHook exports broker activity as Prometheus metrics.
//
// Metrics exported (namespace "dbmq" by default):
//   - auth_failures_total{reason}
//   - channels_created_total
//   - messages_stored_total{status}
//   - messages_deleted_total
//   - payload_bytes_stored_total
//   - subscription_changes_total{op}
//   - deliveries_total{scheme,result}
//   - delivery_duration_seconds{scheme}
//   - channels, keys, subscriptions, delivery_queue_length (when Stats is set)
type MetricsHook struct {
	authFailures   *prometheus.CounterVec
	channels       prometheus.Counter
	stored         *prometheus.CounterVec
	deleted        prometheus.Counter
	bytesStored    prometheus.Counter
	subChanges     *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	deliveryTiming *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// MetricsConfig configures the metrics hook.
type MetricsConfig struct {
	// Namespace prefixes every metric name (default: "dbmq").
	Namespace string

	// Stats, if set, backs the point-in-time gauges. Usually Broker.Stats.
	Stats func() broker.Stats
}

// NewMetricsHook creates a new metrics hook. Call Register to expose it.
func NewMetricsHook(cfg MetricsConfig) *MetricsHook {
	if cfg.Namespace == "" {
		cfg.Namespace = "dbmq"
	}
	ns := cfg.Namespace

	h := &MetricsHook{
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "auth_failures_total",
			Help:      "Callers rejected by authentication.",
		}, []string{"reason"}),
		channels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "channels_created_total",
			Help:      "Channels created.",
		}),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_stored_total",
			Help:      "Creates and updates accepted, by resulting status.",
		}, []string{"status"}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_deleted_total",
			Help:      "Keys tombstoned.",
		}),
		bytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "payload_bytes_stored_total",
			Help:      "Payload bytes accepted by creates and updates.",
		}),
		subChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "subscription_changes_total",
			Help:      "Subscribe and unsubscribe operations that changed a subscription table.",
		}, []string{"op"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "deliveries_total",
			Help:      "Push attempts, by subscriber url scheme and result.",
		}, []string{"scheme", "result"}),
		deliveryTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent pushing one message to one subscriber.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scheme"}),
	}

	h.collectors = []prometheus.Collector{
		h.authFailures, h.channels, h.stored, h.deleted,
		h.bytesStored, h.subChanges, h.deliveries, h.deliveryTiming,
	}

	if cfg.Stats != nil {
		gauge := func(name, help string, get func(broker.Stats) int) prometheus.Collector {
			return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: ns,
				Name:      name,
				Help:      help,
			}, func() float64 { return float64(get(cfg.Stats())) })
		}
		h.collectors = append(h.collectors,
			gauge("channels", "Channels in the broker.", func(s broker.Stats) int { return s.Channels }),
			gauge("keys", "Keys with a current or pending value.", func(s broker.Stats) int { return s.Keys }),
			gauge("subscriptions", "Subscriptions across all channels.", func(s broker.Stats) int { return s.Subscriptions }),
			gauge("delivery_queue_length", "Messages waiting for a delivery worker.", func(s broker.Stats) int { return s.Queued }),
		)
	}

	return h
}

func (h *MetricsHook) ID() string { return "metrics" }

// Register registers all metrics with reg.
func (h *MetricsHook) Register(reg prometheus.Registerer) error {
	for _, c := range h.collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// AuthHook implementation

func (h *MetricsHook) OnAuthenticated(ctx context.Context, n node.Node) {}

func (h *MetricsHook) OnAuthFailed(ctx context.Context, token string, err error) {
	reason := "other"
	switch {
	case errors.Is(err, node.ErrInvalidToken):
		reason = "invalid_token"
	case errors.Is(err, node.ErrInvalidSecret):
		reason = "invalid_secret"
	}
	h.authFailures.WithLabelValues(reason).Inc()
}

// ChannelHook implementation

func (h *MetricsHook) OnChannelCreated(ctx context.Context, channel string) {
	h.channels.Inc()
}

// MessageHook implementation

func (h *MetricsHook) OnStored(ctx context.Context, channel string, m *message.Message) {
	h.stored.WithLabelValues(m.Status.String()).Inc()
	h.bytesStored.Add(float64(len(m.Data)))
}

func (h *MetricsHook) OnDeleted(ctx context.Context, channel string, tombstone *message.Message) {
	h.deleted.Inc()
}

// SubscriptionHook implementation

func (h *MetricsHook) OnSubscribed(ctx context.Context, sub broker.Subscription) {
	h.subChanges.WithLabelValues("subscribe").Inc()
}

func (h *MetricsHook) OnUnsubscribed(ctx context.Context, channel, token string) {
	h.subChanges.WithLabelValues("unsubscribe").Inc()
}

// DeliveryHook implementation

func (h *MetricsHook) OnDelivered(ctx context.Context, d broker.Delivery, err error) {
	scheme := "unknown"
	if u, perr := url.Parse(d.Subscription.URL); perr == nil && u.Scheme != "" {
		scheme = strings.ToLower(u.Scheme)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	h.deliveries.WithLabelValues(scheme, result).Inc()
	h.deliveryTiming.WithLabelValues(scheme).Observe(d.Duration.Seconds())
}

var (
	_ broker.AuthHook         = (*MetricsHook)(nil)
	_ broker.ChannelHook      = (*MetricsHook)(nil)
	_ broker.MessageHook      = (*MetricsHook)(nil)
	_ broker.SubscriptionHook = (*MetricsHook)(nil)
	_ broker.DeliveryHook     = (*MetricsHook)(nil)
)
