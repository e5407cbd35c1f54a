package node_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblade/dbmq/pkg/node"
)

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	reg, err := node.NewMemoryRegistry(
		node.Node{Token: "A", Secret: "a-secret", Type: node.TypeClient},
		node.Node{Token: "S", Secret: "s-secret", Address: "10.0.0.2:8080", Type: node.TypeServer},
	)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		n, err := node.Authenticate(ctx, reg, node.Credentials{Token: "S", Secret: "s-secret"})
		require.NoError(t, err)
		assert.Equal(t, node.TypeServer, n.Type)
		assert.Equal(t, "10.0.0.2:8080", n.Address)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := node.Authenticate(ctx, reg, node.Credentials{Token: "Z", Secret: "a-secret"})
		assert.ErrorIs(t, err, node.ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := node.Authenticate(ctx, reg, node.Credentials{})
		assert.ErrorIs(t, err, node.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := node.Authenticate(ctx, reg, node.Credentials{Token: "A", Secret: "s-secret"})
		assert.ErrorIs(t, err, node.ErrInvalidSecret)
	})
}

func TestMemoryRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg, err := node.NewMemoryRegistry(node.Node{Token: "A", Secret: "x"})
	require.NoError(t, err)

	err = reg.Register(node.Node{Token: "A", Secret: "y"})
	assert.ErrorIs(t, err, node.ErrDuplicateToken)

	n, err := reg.Lookup(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "x", n.Secret, "registered nodes are immutable")
	assert.Equal(t, node.TypeClient, n.Type, "type defaults to client")
	assert.Equal(t, 1, reg.Len())
}

func TestMemoryRegistryRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	_, err := node.NewMemoryRegistry(node.Node{Secret: "x"})
	assert.ErrorIs(t, err, node.ErrInvalidToken)
}

func TestParseType(t *testing.T) {
	t.Parallel()

	typ, err := node.ParseType("server")
	require.NoError(t, err)
	assert.Equal(t, node.TypeServer, typ)
	assert.Equal(t, "client", node.TypeClient.String())

	_, err = node.ParseType("peer")
	assert.ErrorIs(t, err, node.ErrInvalidType)
}
