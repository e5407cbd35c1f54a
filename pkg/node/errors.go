package node

import "errors"

// Node errors.
var (
	// ErrInvalidToken indicates no node is registered under the token.
	ErrInvalidToken = errors.New("invalid node token")

	// ErrInvalidSecret indicates the secret does not match the token.
	ErrInvalidSecret = errors.New("invalid node secret")

	// ErrInvalidType indicates an unknown node type name.
	ErrInvalidType = errors.New("invalid node type")

	// ErrDuplicateToken indicates a token is already registered.
	ErrDuplicateToken = errors.New("node token already registered")
)
