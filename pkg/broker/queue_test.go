package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eblade/dbmq/pkg/message"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := newQueue()
	for _, k := range []string{"a", "b", "c"} {
		q.push(&message.Message{Key: k})
	}
	assert.Equal(t, 3, q.len())

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		m, ok := q.pop(ctx)
		require.True(t, ok)
		assert.Equal(t, want, m.Key)
	}
	assert.Equal(t, 0, q.len())
}

func TestQueuePopWaitsForPush(t *testing.T) {
	t.Parallel()

	q := newQueue()
	got := make(chan string)
	go func() {
		m, ok := q.pop(context.Background())
		if ok {
			got <- m.Key
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.push(&message.Message{Key: "late"})

	select {
	case k := <-got:
		assert.Equal(t, "late", k)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestQueuePopCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := newQueue().pop(ctx)
	assert.False(t, ok)
}
