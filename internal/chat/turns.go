package chat

import (
	"context"
	"errors"
	"sync"
)

// ErrTurnQueueFull reports that a session already has one turn in flight and
// one queued behind it.
var ErrTurnQueueFull = errors.New("chat: turn queue full for session")

// TurnGates serializes agent turns per session id. A turn acquires the
// session's gate before touching the store or the engine, so two turns on
// one session can never interleave their response streams, regardless of
// which socket they arrived on. One waiter may queue behind the running
// turn; further arrivals are rejected.
type TurnGates struct {
	mu       sync.Mutex
	gates    map[string]*gate
	maxQueue int
}

type gate struct {
	slot    chan struct{} // holds one token when the gate is free
	waiters int
}

// NewTurnGates creates a gate set with the given per-session queue depth.
// A depth below zero is treated as zero (reject whenever busy).
func NewTurnGates(maxQueue int) *TurnGates {
	if maxQueue < 0 {
		maxQueue = 0
	}
	return &TurnGates{
		gates:    make(map[string]*gate),
		maxQueue: maxQueue,
	}
}

// Acquire blocks until the session's gate is free, the queue is full, or ctx
// ends. On success it returns a release function that must be called exactly
// once when the turn finishes.
func (t *TurnGates) Acquire(ctx context.Context, sessionID string) (func(), error) {
	t.mu.Lock()
	g, ok := t.gates[sessionID]
	if !ok {
		g = &gate{slot: make(chan struct{}, 1)}
		g.slot <- struct{}{}
		t.gates[sessionID] = g
	}

	select {
	case <-g.slot:
		t.mu.Unlock()
		return func() { t.release(sessionID, g) }, nil
	default:
	}

	if g.waiters >= t.maxQueue {
		t.mu.Unlock()
		return nil, ErrTurnQueueFull
	}
	g.waiters++
	t.mu.Unlock()

	select {
	case <-g.slot:
		t.mu.Lock()
		g.waiters--
		t.mu.Unlock()
		return func() { t.release(sessionID, g) }, nil
	case <-ctx.Done():
		t.mu.Lock()
		g.waiters--
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (t *TurnGates) release(sessionID string, g *gate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case g.slot <- struct{}{}:
	default:
	}

	// Only prune an entry no goroutine is still waiting on; waiters hold a
	// reference to this gate's slot channel.
	if g.waiters == 0 && t.gates[sessionID] == g {
		delete(t.gates, sessionID)
	}
}
