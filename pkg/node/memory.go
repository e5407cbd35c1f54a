package node

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRegistry keeps nodes in process memory. It is the default for a
// single broker process.
type MemoryRegistry struct {
	mu    sync.RWMutex
	nodes map[string]Node // token -> node
}

// NewMemoryRegistry creates a registry holding the given nodes.
func NewMemoryRegistry(nodes ...Node) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		nodes: make(map[string]Node, len(nodes)),
	}
	for _, n := range nodes {
		if err := r.Register(n); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a node. Tokens are unique and registered nodes are never
// replaced.
func (r *MemoryRegistry) Register(n Node) error {
	if n.Token == "" {
		return ErrInvalidToken
	}
	if n.Type == 0 {
		n.Type = TypeClient
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[n.Token]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, n.Token)
	}
	r.nodes[n.Token] = n
	return nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, token string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[token]
	if !ok {
		return Node{}, fmt.Errorf("node %s: %w", token, ErrInvalidToken)
	}
	return n, nil
}

// Len returns the number of registered nodes.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

var _ Registry = (*MemoryRegistry)(nil)
