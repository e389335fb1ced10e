package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateSerializesConcurrentMutatingCallers(t *testing.T) {
	g := NewGate()
	var active int32
	var sawOverlap int32

	run := func(done chan<- struct{}) {
		release, err := g.Await(context.Background())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			close(done)
			return
		}
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&sawOverlap, 1)
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		release()
		close(done)
	}

	d1, d2 := make(chan struct{}), make(chan struct{})
	go run(d1)
	go run(d2)
	<-d1
	<-d2

	if atomic.LoadInt32(&sawOverlap) != 0 {
		t.Fatal("expected the gate to serialize overlapping acquisitions")
	}
}

func TestGateAwaitRespectsCancellation(t *testing.T) {
	g := NewGate()
	release, err := g.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.Await(ctx)
	if err == nil {
		t.Fatal("expected Await to return an error once the context deadline passes")
	}
}
