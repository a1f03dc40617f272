package matrix

import (
	"context"
	"sync"
)

// DefaultQueueDepth bounds the backlog of one sender.
const DefaultQueueDepth = 32

// dispatcher runs inbound messages on one worker per sender. Messages of a
// sender are handled in arrival order; different senders run in parallel.
// A worker exits as soon as its queue drains.
type dispatcher struct {
	handle func(context.Context, Message)
	depth  int

	mu     sync.Mutex
	queues map[string][]Message
	wg     sync.WaitGroup
}

func newDispatcher(depth int, handle func(context.Context, Message)) *dispatcher {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &dispatcher{handle: handle, depth: depth, queues: make(map[string][]Message)}
}

// submit enqueues msg. It reports false when the sender's backlog is full
// and the message was dropped.
func (d *dispatcher) submit(ctx context.Context, msg Message) bool {
	key := msg.Sender.String()

	d.mu.Lock()
	q, running := d.queues[key]
	if len(q) >= d.depth {
		d.mu.Unlock()
		return false
	}
	d.queues[key] = append(q, msg)
	if !running {
		d.wg.Add(1)
		go d.work(ctx, key)
	}
	d.mu.Unlock()
	return true
}

func (d *dispatcher) work(ctx context.Context, key string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		msg := q[0]
		d.queues[key] = q[1:]
		d.mu.Unlock()

		d.handle(ctx, msg)
	}
}

// wait blocks until every queued message has been handled.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
