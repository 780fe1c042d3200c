package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitersFor(t *testing.T, gates *TurnGates, sessionID string) int {
	t.Helper()
	gates.mu.Lock()
	defer gates.mu.Unlock()
	g, ok := gates.gates[sessionID]
	if !ok {
		return 0
	}
	return g.waiters
}

func TestTurnGatesSerializeOneSession(t *testing.T) {
	t.Parallel()

	gates := NewTurnGates(1)
	ctx := context.Background()

	release, err := gates.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := gates.Acquire(ctx, "s1")
		if err != nil {
			t.Errorf("queued acquire failed: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the first turn holds the gate")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("queued acquire did not proceed after release")
	}
}

func TestTurnGatesDifferentSessionsRunInParallel(t *testing.T) {
	t.Parallel()

	gates := NewTurnGates(1)
	ctx := context.Background()

	r1, err := gates.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("acquire s1 failed: %v", err)
	}
	defer r1()

	r2, err := gates.Acquire(ctx, "s2")
	if err != nil {
		t.Fatalf("acquire s2 should not block on s1: %v", err)
	}
	r2()
}

func TestTurnGatesRejectBeyondQueueDepth(t *testing.T) {
	t.Parallel()

	gates := NewTurnGates(1)
	ctx := context.Background()

	release, err := gates.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer release()

	done := make(chan struct{})
	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	go func() {
		defer close(done)
		if _, err := gates.Acquire(waitCtx, "s1"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected queued acquire to end with context.Canceled, got %v", err)
		}
	}()

	deadline := time.Now().Add(time.Second)
	for waitersFor(t, gates, "s1") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("queued waiter never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := gates.Acquire(ctx, "s1"); !errors.Is(err, ErrTurnQueueFull) {
		t.Fatalf("expected ErrTurnQueueFull, got %v", err)
	}

	cancelWait()
	<-done
}

func TestTurnGatesZeroDepthRejectsWhenBusy(t *testing.T) {
	t.Parallel()

	gates := NewTurnGates(0)
	release, err := gates.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer release()

	if _, err := gates.Acquire(context.Background(), "s1"); !errors.Is(err, ErrTurnQueueFull) {
		t.Fatalf("expected ErrTurnQueueFull with zero depth, got %v", err)
	}
}

func TestTurnGatesPruneAfterRelease(t *testing.T) {
	t.Parallel()

	gates := NewTurnGates(1)
	release, err := gates.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()

	gates.mu.Lock()
	_, exists := gates.gates["s1"]
	gates.mu.Unlock()
	if exists {
		t.Fatal("expected idle gate to be pruned")
	}

	// A fresh acquire after pruning still works.
	release2, err := gates.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("acquire after prune failed: %v", err)
	}
	release2()
}
