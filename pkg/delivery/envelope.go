package delivery

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/eblade/dbmq/pkg/message"
)

// Envelope is the self-describing form of a pushed message used by the
// transports that have no headers of their own (WebSocket, Redis, gRPC).
// It is encoded with msgpack.
type Envelope struct {
	DeliveryID string            `msgpack:"id"`
	Channel    string            `msgpack:"c"`
	Key        string            `msgpack:"k"`
	Version    uint64            `msgpack:"v"`
	Status     string            `msgpack:"s"`
	Headers    map[string]string `msgpack:"h,omitempty"`
	Data       []byte            `msgpack:"d"`
}

// NewEnvelope wraps req.
func NewEnvelope(req *Request) *Envelope {
	m := req.Message
	return &Envelope{
		DeliveryID: req.ID,
		Channel:    req.Channel,
		Key:        m.Key,
		Version:    m.Version,
		Status:     m.Status.String(),
		Headers:    m.Headers,
		Data:       m.Data,
	}
}

// Message rebuilds the carried message.
func (e *Envelope) Message() (*message.Message, error) {
	status, err := message.ParseStatus(e.Status)
	if err != nil {
		return nil, err
	}
	return &message.Message{
		Key:     e.Key,
		Data:    e.Data,
		Version: e.Version,
		Status:  status,
		Headers: message.Headers(e.Headers),
	}, nil
}

// Encode serializes e.
func (e *Envelope) Encode() ([]byte, error) {
	return msgpack.Marshal(e)
}

// DecodeEnvelope parses data produced by Envelope.Encode.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &e, nil
}
