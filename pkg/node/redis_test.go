package node_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblade/dbmq/pkg/node"
)

func TestRedisRegistry(t *testing.T) {
	addr := os.Getenv("DBMQ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DBMQ_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	prefix := "dbmq-test-" + uuid.NewString() + ":"
	reg := node.NewRedisRegistry(&node.RedisConfig{
		Addr:      addr,
		KeyPrefix: prefix,
	})
	require.NoError(t, reg.Start(ctx))
	t.Cleanup(func() {
		reg.Client().Del(context.Background(), prefix+"nodes")
		reg.Close()
	})

	require.NoError(t, reg.Register(ctx, node.Node{
		Token:   "S",
		Secret:  "s-secret",
		Address: "10.0.0.3:8080",
		Type:    node.TypeServer,
	}))
	assert.ErrorIs(t, reg.Register(ctx, node.Node{Token: "S", Secret: "other"}), node.ErrDuplicateToken)

	n, err := node.Authenticate(ctx, reg, node.Credentials{Token: "S", Secret: "s-secret"})
	require.NoError(t, err)
	assert.Equal(t, node.TypeServer, n.Type)
	assert.Equal(t, "10.0.0.3:8080", n.Address)

	_, err = node.Authenticate(ctx, reg, node.Credentials{Token: "S", Secret: "other"})
	assert.ErrorIs(t, err, node.ErrInvalidSecret)

	_, err = reg.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, node.ErrInvalidToken)
}
