package engine

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// ReplyFunc computes a full assistant reply for a history. The local engine
// fragments the reply before streaming it.
type ReplyFunc func(history []Turn) (string, error)

// Local is an in-process engine used when no engine address is configured,
// and by tests. It streams its reply in word-sized fragments so consumers
// exercise the same accumulation path as with a remote engine.
type Local struct {
	reply ReplyFunc
}

// NewLocal creates a local engine. A nil reply function echoes the newest
// user message.
func NewLocal(reply ReplyFunc) *Local {
	if reply == nil {
		reply = func(history []Turn) (string, error) {
			if len(history) == 0 {
				return "Hello! What can I help you with?", nil
			}
			return fmt.Sprintf("You said: %s", history[len(history)-1].Content), nil
		}
	}
	return &Local{reply: reply}
}

// Generate streams the computed reply as word fragments.
func (l *Local) Generate(ctx context.Context, history []Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		full, err := l.reply(history)
		if err != nil {
			yield("", err)
			return
		}

		words := strings.SplitAfter(full, " ")
		for _, word := range words {
			if word == "" {
				continue
			}
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(word, nil) {
				return
			}
		}
	}
}

// Healthy always succeeds for the in-process engine.
func (l *Local) Healthy(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (l *Local) Close() {}

// Ensure Local implements Engine.
var _ Engine = (*Local)(nil)
