// Package node holds the identities of peers allowed to talk to the broker
// and authenticates them.
package node

import (
	"context"
	"crypto/subtle"
	"fmt"
)

// Type is the role a node plays.
type Type byte

const (
	// TypeClient is a node that reads and writes messages.
	TypeClient Type = iota + 1
	// TypeServer is a peer broker.
	TypeServer
)

func (t Type) String() string {
	switch t {
	case TypeClient:
		return "client"
	case TypeServer:
		return "server"
	default:
		return fmt.Sprintf("Type(%d)", byte(t))
	}
}

// ParseType parses "client" or "server".
func ParseType(s string) (Type, error) {
	switch s {
	case "client":
		return TypeClient, nil
	case "server":
		return TypeServer, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Node is a registered identity. It is immutable once registered.
type Node struct {
	Token   string
	Secret  string
	Address string
	Type    Type
}

// Credentials is what a caller presents on every operation.
type Credentials struct {
	Token  string
	Secret string
}

// Registry looks nodes up by token.
type Registry interface {
	// Lookup returns the node registered under token, or ErrInvalidToken.
	Lookup(ctx context.Context, token string) (Node, error)
}

// Authenticate checks creds against reg. Nothing is cached; every call
// consults the registry.
func Authenticate(ctx context.Context, reg Registry, creds Credentials) (Node, error) {
	if creds.Token == "" {
		return Node{}, ErrInvalidToken
	}

	n, err := reg.Lookup(ctx, creds.Token)
	if err != nil {
		return Node{}, err
	}

	if subtle.ConstantTimeCompare([]byte(creds.Secret), []byte(n.Secret)) != 1 {
		return Node{}, fmt.Errorf("node %s: %w", creds.Token, ErrInvalidSecret)
	}

	return n, nil
}
