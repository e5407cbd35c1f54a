package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eblade/dbmq/pkg/delivery"
	"github.com/eblade/dbmq/pkg/message"
)

// deliver drains the channel's queue until the broker shuts down. Each
// message goes to every subscriber present when it is dequeued, one push
// at a time. Failed pushes are logged and dropped.
func (b *Broker) deliver(ch *Channel) {
	defer b.wg.Done()

	for {
		m, ok := ch.queue.pop(b.ctx)
		if !ok {
			return
		}
		for _, sub := range ch.Subscriptions() {
			if b.ctx.Err() != nil {
				return
			}
			b.push(sub, m)
		}
	}
}

func (b *Broker) push(sub Subscription, m *message.Message) {
	req := &delivery.Request{
		ID:        uuid.NewString(),
		Channel:   sub.Channel,
		NodeToken: sub.NodeToken,
		URL:       sub.URL,
		Message:   m,
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.config.DeliveryTimeout)
	start := time.Now()
	err := b.pusher.Push(ctx, req)
	elapsed := time.Since(start)
	cancel()

	if err != nil {
		b.log.Warn("delivery failed",
			"channel", sub.Channel,
			"key", m.Key,
			"version", m.Version,
			"node", sub.NodeToken,
			"url", sub.URL,
			"delivery_id", req.ID,
			"error", err)
	}

	b.hooks.OnDelivered(b.ctx, Delivery{
		ID:           req.ID,
		Subscription: sub,
		Message:      m,
		Duration:     elapsed,
	}, err)
}
