// Package engine defines the agent engine collaborator: an asynchronous
// producer of assistant content fragments for a conversation history.
package engine

import (
	"context"
	"iter"
)

// Turn is one prior conversational entry passed to the engine as context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Engine produces the assistant reply for a conversation as an ordered
// stream of content fragments. Fragment boundaries carry no meaning.
//
// Iteration ending without an error is turn completion; yielding a non-nil
// error terminates the turn as failed. Implementations must honor ctx
// cancellation so an abandoned socket does not leak an invocation.
type Engine interface {
	// Generate streams fragments for the given history. The last history
	// entry is the user's newest message.
	Generate(ctx context.Context, history []Turn) iter.Seq2[string, error]

	// Healthy reports whether the engine is reachable.
	Healthy(ctx context.Context) error

	// Close releases resources.
	Close()
}
