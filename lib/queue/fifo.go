// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"sync"
	"time"

	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// fifo is one named unbounded FIFO channel inside the broker. The
// fabric is message-agnostic: ingress channels carry encoded packets,
// egress channels carry encoded replies, and the broker never looks
// inside either. Push never blocks beyond the append; pop blocks up
// to a timeout and signals absence rather than erroring, so polling
// loops can re-check their shutdown flag between attempts.
type fifo struct {
	mu    sync.Mutex
	items []wire.RawMessage

	// signal wakes at most one waiting consumer when an item
	// arrives. Capacity 1: a pending wakeup is never lost, and a
	// full channel means a wakeup is already queued.
	signal chan struct{}
}

func newFIFO() *fifo {
	return &fifo{signal: make(chan struct{}, 1)}
}

// push appends a message and wakes one waiting consumer.
func (q *fifo) push(m wire.RawMessage) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest message, waiting up to timeout
// for one to arrive. The second return is false when the wait expired
// with the queue still empty.
func (q *fifo) pop(timeout time.Duration) (wire.RawMessage, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items) > 0
			q.mu.Unlock()
			if remaining {
				// More items queued: re-arm the wakeup so a
				// concurrent consumer is not left sleeping.
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return m, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-deadline.C:
			return nil, false
		}
	}
}

// depth returns the number of queued messages.
func (q *fifo) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
