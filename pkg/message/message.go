// Package message defines the versioned, key-addressed messages stored in
// broker channels and the per-key ledger entry that tracks them.
package message

import (
	"fmt"
	"maps"
)

// Status is the lifecycle state of a message version.
type Status byte

const (
	// StatusOK marks a version that is (or was) visible to readers.
	StatusOK Status = iota + 1
	// StatusPending marks a proposed version held back while replication
	// subscribers are present.
	StatusPending
	// StatusConflict marks a version that lost a concurrent write.
	StatusConflict
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPending:
		return "pending"
	case StatusConflict:
		return "conflict"
	default:
		return fmt.Sprintf("Status(%d)", byte(s))
	}
}

// ParseStatus parses a status name as produced by String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ok":
		return StatusOK, nil
	case "pending":
		return StatusPending, nil
	case "conflict":
		return StatusConflict, nil
	}
	return 0, fmt.Errorf("unknown message status %q", s)
}

// Headers carries message metadata. Order is irrelevant.
type Headers map[string]string

// Clone returns a copy that shares no state with h.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	maps.Copy(out, h)
	return out
}

// Message is one version of the value stored under a key.
//
// A Message becomes immutable once a channel has accepted it. Channel
// operations derive new values with Clone instead of mutating stored ones.
type Message struct {
	Key     string
	Data    []byte
	Version uint64
	Status  Status
	Headers Headers
}

// New creates a version-1 message with status pending. The headers are
// copied.
func New(key string, data []byte, headers Headers) *Message {
	return &Message{
		Key:     key,
		Data:    data,
		Version: 1,
		Status:  StatusPending,
		Headers: headers.Clone(),
	}
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := &Message{
		Key:     m.Key,
		Version: m.Version,
		Status:  m.Status,
		Headers: m.Headers.Clone(),
	}
	if m.Data != nil {
		out.Data = make([]byte, len(m.Data))
		copy(out.Data, m.Data)
	}
	return out
}
