// Package broker provides the dbmq broker core: channels of versioned,
// key-addressed messages and the workers that push them to subscribers.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/eblade/dbmq/pkg/message"
	"github.com/eblade/dbmq/pkg/node"
)

// Hook provides extension points for observing and admitting broker
// operations. A hook implements any subset of the interfaces below.
//
// Hook methods are called synchronously and never with a channel lock
// held. For long-running operations, implementations should spawn
// goroutines internally.
type Hook interface {
	// ID returns a unique identifier for this hook.
	ID() string
}

// AuthHook observes authentication results.
type AuthHook interface {
	Hook

	// OnAuthenticated is called after a caller has been authenticated.
	OnAuthenticated(ctx context.Context, n node.Node)

	// OnAuthFailed is called when a caller presents bad credentials.
	OnAuthFailed(ctx context.Context, token string, err error)
}

// WriteHook admits or rejects writes from authenticated nodes.
type WriteHook interface {
	Hook

	// OnWrite is called before op touches the channel.
	// Return nil to allow, error to reject.
	OnWrite(ctx context.Context, n node.Node, channel string, op Op) error
}

// ChannelHook observes channel lifecycle.
type ChannelHook interface {
	Hook

	// OnChannelCreated is called once per channel, after it is created.
	OnChannelCreated(ctx context.Context, channel string)
}

// MessageHook observes accepted writes.
type MessageHook interface {
	Hook

	// OnStored is called after a create or update has been accepted.
	// m has status ok, or pending when it is held for replication.
	OnStored(ctx context.Context, channel string, m *message.Message)

	// OnDeleted is called after a key has been tombstoned.
	OnDeleted(ctx context.Context, channel string, tombstone *message.Message)
}

// SubscriptionHook observes changes to subscription tables.
type SubscriptionHook interface {
	Hook

	// OnSubscribed is called after a subscription is installed or updated.
	OnSubscribed(ctx context.Context, sub Subscription)

	// OnUnsubscribed is called after a subscription is removed.
	OnUnsubscribed(ctx context.Context, channel, token string)
}

// DeliveryHook observes push attempts.
type DeliveryHook interface {
	Hook

	// OnDelivered is called after every push. err is nil on success.
	// Failed pushes are not retried.
	OnDelivered(ctx context.Context, d Delivery, err error)
}

// Delivery describes one push attempt to one subscriber.
type Delivery struct {
	ID           string
	Subscription Subscription
	Message      *message.Message
	Duration     time.Duration
}

// Op is a write operation subject to WriteHook admission.
type Op byte

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
	OpSubscribe
	OpUnsubscribe
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	default:
		return fmt.Sprintf("Op(%d)", byte(o))
	}
}
