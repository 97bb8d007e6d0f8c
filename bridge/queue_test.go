// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bridge

import (
	"testing"
	"time"

	"github.com/buerkert/renode-infrastructure/can"
)

func TestFrameQueueFIFOOrder(t *testing.T) {
	q := newFrameQueue()

	for i := 0; i < 5; i++ {
		q.push(can.Frame{Kind: can.Data, CobID: uint16(i)})
	}

	for i := 0; i < 5; i++ {
		f, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d: expected ok", i)
		}
		if f.CobID != uint16(i) {
			t.Errorf("pop %d: CobID = %d, want %d", i, f.CobID, i)
		}
	}
}

func TestFrameQueuePopBlocksUntilPush(t *testing.T) {
	q := newFrameQueue()

	result := make(chan can.Frame, 1)
	go func() {
		f, ok := q.pop()
		if ok {
			result <- f
		}
	}()

	select {
	case <-result:
		t.Fatal("pop returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(can.Frame{Kind: can.Data, CobID: 0x99})

	select {
	case f := <-result:
		if f.CobID != 0x99 {
			t.Errorf("CobID = %#x, want 0x99", f.CobID)
		}
	case <-time.After(time.Second):
		t.Fatal("pop never returned after push")
	}
}

func TestFrameQueueCloseUnblocksEmptyPop(t *testing.T) {
	q := newFrameQueue()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected pop to report !ok after close with an empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("pop never returned after close")
	}
}

func TestFrameQueueCloseDrainsRemainingItemsFirst(t *testing.T) {
	q := newFrameQueue()
	q.push(can.Frame{Kind: can.Data, CobID: 1})
	q.close()

	f, ok := q.pop()
	if !ok || f.CobID != 1 {
		t.Fatal("expected the queued item to be drained before !ok")
	}

	if _, ok := q.pop(); ok {
		t.Fatal("expected !ok once drained")
	}
}
