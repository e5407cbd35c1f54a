package broker

import (
	"context"
	"sync"

	"github.com/eblade/dbmq/pkg/message"
	"github.com/eblade/dbmq/pkg/node"
)

// Hooks manages registered hooks and dispatches events.
type Hooks struct {
	mu sync.RWMutex

	auth         []AuthHook
	write        []WriteHook
	channel      []ChannelHook
	message      []MessageHook
	subscription []SubscriptionHook
	delivery     []DeliveryHook
}

// NewHooks creates a new hook manager.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register registers a hook. The hook is checked for all supported interfaces.
func (h *Hooks) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ah, ok := hook.(AuthHook); ok {
		h.auth = append(h.auth, ah)
	}
	if wh, ok := hook.(WriteHook); ok {
		h.write = append(h.write, wh)
	}
	if ch, ok := hook.(ChannelHook); ok {
		h.channel = append(h.channel, ch)
	}
	if mh, ok := hook.(MessageHook); ok {
		h.message = append(h.message, mh)
	}
	if sh, ok := hook.(SubscriptionHook); ok {
		h.subscription = append(h.subscription, sh)
	}
	if dh, ok := hook.(DeliveryHook); ok {
		h.delivery = append(h.delivery, dh)
	}
}

// OnAuthenticated notifies all auth hooks of a successful authentication.
func (h *Hooks) OnAuthenticated(ctx context.Context, n node.Node) {
	h.mu.RLock()
	hooks := h.auth
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnAuthenticated(ctx, n)
	}
}

// OnAuthFailed notifies all auth hooks of a rejected caller.
func (h *Hooks) OnAuthFailed(ctx context.Context, token string, err error) {
	h.mu.RLock()
	hooks := h.auth
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnAuthFailed(ctx, token, err)
	}
}

// OnWrite calls all write hooks. Returns the first rejection.
func (h *Hooks) OnWrite(ctx context.Context, n node.Node, channel string, op Op) error {
	h.mu.RLock()
	hooks := h.write
	h.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook.OnWrite(ctx, n, channel, op); err != nil {
			return err
		}
	}
	return nil
}

// OnChannelCreated notifies all channel hooks of a new channel.
func (h *Hooks) OnChannelCreated(ctx context.Context, channel string) {
	h.mu.RLock()
	hooks := h.channel
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnChannelCreated(ctx, channel)
	}
}

// OnStored notifies all message hooks of an accepted write.
func (h *Hooks) OnStored(ctx context.Context, channel string, m *message.Message) {
	h.mu.RLock()
	hooks := h.message
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnStored(ctx, channel, m)
	}
}

// OnDeleted notifies all message hooks of a tombstoned key.
func (h *Hooks) OnDeleted(ctx context.Context, channel string, tombstone *message.Message) {
	h.mu.RLock()
	hooks := h.message
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnDeleted(ctx, channel, tombstone)
	}
}

// OnSubscribed notifies all subscription hooks of a new or changed subscription.
func (h *Hooks) OnSubscribed(ctx context.Context, sub Subscription) {
	h.mu.RLock()
	hooks := h.subscription
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnSubscribed(ctx, sub)
	}
}

// OnUnsubscribed notifies all subscription hooks of a removed subscription.
func (h *Hooks) OnUnsubscribed(ctx context.Context, channel, token string) {
	h.mu.RLock()
	hooks := h.subscription
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnUnsubscribed(ctx, channel, token)
	}
}

// OnDelivered notifies all delivery hooks of a push attempt.
func (h *Hooks) OnDelivered(ctx context.Context, d Delivery, err error) {
	h.mu.RLock()
	hooks := h.delivery
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnDelivered(ctx, d, err)
	}
}
