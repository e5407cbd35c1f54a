package broker

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/eblade/dbmq/pkg/message"
)

// replicators memoizes whether a channel has a replication subscriber.
type replicators int8

const (
	replicatorsUnknown replicators = iota
	replicatorsNo
	replicatorsYes
)

// Channel is a named set of keyed messages and the subscribers that get
// a copy of every write.
//
// One mutex guards the ledger and the subscription table, so every
// check-then-act sequence on a key is atomic. Accepted messages are
// queued for the channel's delivery worker in lock order.
type Channel struct {
	name string

	mu          sync.Mutex
	ledger      map[string]*message.Versions // key -> versions
	subs        map[string]*Subscription     // node token -> subscription
	replicators replicators

	queue *queue
}

func newChannel(name string) *Channel {
	return &Channel{
		name:   name,
		ledger: make(map[string]*message.Versions),
		subs:   make(map[string]*Subscription),
		queue:  newQueue(),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Get returns a copy of the current value of key.
func (c *Channel) Get(key string) (*message.Message, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.ledger[key]
	if v == nil || v.Current == nil {
		return nil, fmt.Errorf("%s/%s: %w", c.name, key, ErrMissingKey)
	}
	return v.Current.Clone(), nil
}

// Create installs m as the first version of its key and queues it for
// delivery. The channel takes ownership of m. A key that was deleted can
// be created again; its tombstone is discarded.
func (c *Channel) Create(m *message.Message) (*message.Message, error) {
	if m.Key == "" {
		return nil, ErrEmptyKey
	}
	if m.Version != 1 {
		return nil, fmt.Errorf("%s/%s: %w (got %d)", c.name, m.Key, ErrBadVersion, m.Version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v := c.ledger[m.Key]; v.Live() {
		return nil, fmt.Errorf("%s/%s: %w", c.name, m.Key, ErrKeyConflict)
	}

	m.Status = message.StatusOK
	c.ledger[m.Key] = &message.Versions{Current: m}
	c.queue.push(m)

	return m.Clone(), nil
}

// Update stores m as the next version of its key and queues it for
// delivery. The version is always current+1; whatever m carries is
// overwritten. The channel takes ownership of m.
//
// With a replication subscriber present the new version is held as
// pending and the current value stays visible. Nothing promotes a pending
// version to current.
func (c *Channel) Update(m *message.Message) (*message.Message, error) {
	if m.Key == "" {
		return nil, ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.ledger[m.Key]
	if v == nil || v.Current == nil {
		return nil, fmt.Errorf("%s/%s: %w", c.name, m.Key, ErrMissingKey)
	}

	m.Version = v.Current.Version + 1
	if m.Headers == nil {
		m.Headers = make(message.Headers)
	}
	for _, h := range []string{message.HeaderCreated, message.HeaderCreatedBy} {
		if _, ok := m.Headers[h]; !ok {
			if val, ok := v.Current.Headers[h]; ok {
				m.Headers[h] = val
			}
		}
	}

	if c.hasReplicatorsLocked() {
		m.Status = message.StatusPending
		v.Pending = m
	} else {
		m.Status = message.StatusOK
		v.Current = m
	}
	c.queue.push(m)

	return m.Clone(), nil
}

// Delete moves the current value of key to the tombstone slot, provided
// version is the current version. headers are merged into the tombstone.
// Deletes are not delivered.
func (c *Channel) Delete(key string, version uint64, headers message.Headers) (*message.Message, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.ledger[key]
	if v == nil || v.Current == nil {
		return nil, fmt.Errorf("%s/%s: %w", c.name, key, ErrMissingKey)
	}
	if v.Current.Version != version {
		return nil, fmt.Errorf("%s/%s: %w: %d, current is %d",
			c.name, key, ErrInactiveVersion, version, v.Current.Version)
	}

	tomb := v.Current.Clone()
	maps.Copy(tomb.Headers, headers)
	v.Deleted = tomb
	v.Current = nil

	return tomb.Clone(), nil
}

// Subscribe registers url for the node, replacing the type and url of an
// existing subscription of that node.
func (c *Channel) Subscribe(token string, typ SubscriptionType, url string) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[token]
	if ok {
		sub.Type = typ
		sub.URL = url
	} else {
		sub = &Subscription{
			Channel:   c.name,
			NodeToken: token,
			Type:      typ,
			URL:       url,
		}
		c.subs[token] = sub
	}
	c.replicators = replicatorsUnknown

	return *sub
}

// Unsubscribe removes the node's subscription. It reports whether there
// was one.
func (c *Channel) Unsubscribe(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.subs[token]
	delete(c.subs, token)
	c.replicators = replicatorsUnknown

	return ok
}

// Subscriptions returns a snapshot of the subscription table, ordered by
// node token.
func (c *Channel) Subscriptions() []Subscription {
	c.mu.Lock()
	out := make([]Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		out = append(out, *sub)
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b Subscription) int {
		return cmp.Compare(a.NodeToken, b.NodeToken)
	})
	return out
}

// HasReplicators reports whether any subscriber has type replication.
func (c *Channel) HasReplicators() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasReplicatorsLocked()
}

func (c *Channel) hasReplicatorsLocked() bool {
	if c.replicators == replicatorsUnknown {
		c.replicators = replicatorsNo
		for _, sub := range c.subs {
			if sub.Type == SubscriptionReplication {
				c.replicators = replicatorsYes
				break
			}
		}
	}
	return c.replicators == replicatorsYes
}

// ChannelStats is a point-in-time view of a channel.
type ChannelStats struct {
	Keys          int // keys with a current or pending value
	Subscriptions int
	Queued        int // messages awaiting delivery
}

// Stats returns channel statistics.
func (c *Channel) Stats() ChannelStats {
	c.mu.Lock()
	var keys int
	for _, v := range c.ledger {
		if v.Live() {
			keys++
		}
	}
	subs := len(c.subs)
	c.mu.Unlock()

	return ChannelStats{
		Keys:          keys,
		Subscriptions: subs,
		Queued:        c.queue.len(),
	}
}
