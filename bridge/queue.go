// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bridge

import (
	"sync"

	"github.com/buerkert/renode-infrastructure/can"
)

// frameQueue is an unbounded FIFO of can.Frame values (spec §3 "tx queue
// (unbounded FIFO of CanMessageFrame)"). Push never blocks, matching the
// hot-path requirement on OnFrameReceived (spec §5); pop blocks the single
// publish worker until an item arrives or the queue is closed, the
// cooperative-await shape soc/nxp/usb/bus.go uses for its own rendezvous
// points (a sync.Cond-based EP completion wait) adapted here from a
// one-shot wakeup to a drain loop.
type frameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []can.Frame
	closed bool
}

func newFrameQueue() *frameQueue {
	q := &frameQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends f to the tail of the queue and wakes the waiting worker. It
// never blocks and never fails: the queue has no capacity limit, so there is
// nothing to drop (spec §4.3 "A drop on enqueue logs a warning (only
// possible if the queue is made bounded)" — this queue is deliberately not
// that).
func (q *frameQueue) push(f can.Frame) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an item is available or the queue is closed, returning
// ok=false in the latter case once fully drained.
func (q *frameQueue) pop() (f can.Frame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return can.Frame{}, false
	}

	f = q.items[0]
	q.items = q.items[1:]
	return f, true
}

// close marks the queue closed and wakes the worker so it can observe
// draining completion and exit.
func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
