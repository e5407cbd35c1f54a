package broker

import (
	"fmt"
	"strings"
)

// SubscriptionType is how a subscriber takes part in a channel.
//
// All types are pushed identically. A replication subscriber additionally
// makes updates on its channel held as pending instead of applied. Queue
// subscribers are not load-balanced: every queue subscriber gets every
// message.
type SubscriptionType byte

const (
	SubscriptionTopic SubscriptionType = iota + 1
	SubscriptionQueue
	SubscriptionReplication
)

func (t SubscriptionType) String() string {
	switch t {
	case SubscriptionTopic:
		return "topic"
	case SubscriptionQueue:
		return "queue"
	case SubscriptionReplication:
		return "replication"
	default:
		return fmt.Sprintf("SubscriptionType(%d)", byte(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t SubscriptionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SubscriptionType) UnmarshalText(b []byte) error {
	v, err := ParseSubscriptionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseSubscriptionType parses a type name, case-insensitively.
func ParseSubscriptionType(s string) (SubscriptionType, error) {
	switch strings.ToLower(s) {
	case "topic":
		return SubscriptionTopic, nil
	case "queue":
		return SubscriptionQueue, nil
	case "replication":
		return SubscriptionReplication, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadSubscriptionType, s)
}

// Subscription registers a node's endpoint on a channel. A node has at
// most one subscription per channel.
type Subscription struct {
	Channel   string           `json:"channel"`
	NodeToken string           `json:"node"`
	Type      SubscriptionType `json:"type"`
	URL       string           `json:"url"`
}
