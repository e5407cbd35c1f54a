package broker

import (
	"context"
	"sync"

	"github.com/eblade/dbmq/pkg/message"
)

// queue is an unbounded FIFO of messages awaiting delivery. push never
// blocks, so it is safe to call with the channel lock held.
type queue struct {
	mu     sync.Mutex
	items  []*message.Message
	notify chan struct{} // capacity 1; signalled on push
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(m *message.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until a message is available or ctx is done.
func (q *queue) pop(ctx context.Context) (*message.Message, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return m, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
