package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLocalStreamsFragmentsThatConcatenateToReply(t *testing.T) {
	t.Parallel()

	eng := NewLocal(nil)
	history := []Turn{{Role: "user", Content: "Book dentist tomorrow"}}

	var got strings.Builder
	fragments := 0
	for fragment, err := range eng.Generate(context.Background(), history) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		fragments++
		got.WriteString(fragment)
	}

	if got.String() != "You said: Book dentist tomorrow" {
		t.Fatalf("unexpected assembled reply: %q", got.String())
	}
	if fragments < 2 {
		t.Fatalf("expected reply to be fragmented, got %d fragment(s)", fragments)
	}
}

func TestLocalPropagatesReplyError(t *testing.T) {
	t.Parallel()

	boom := errors.New("tool failure")
	eng := NewLocal(func([]Turn) (string, error) { return "", boom })

	for _, err := range eng.Generate(context.Background(), nil) {
		if !errors.Is(err, boom) {
			t.Fatalf("expected reply error, got %v", err)
		}
		return
	}
	t.Fatal("expected the stream to yield an error")
}

func TestLocalStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := NewLocal(func([]Turn) (string, error) { return "one two three", nil })

	seen := 0
	for _, err := range eng.Generate(ctx, nil) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context error, got %v", err)
			}
			return
		}
		seen++
		cancel()
	}
	if seen == 0 {
		t.Fatal("expected at least one fragment before cancellation")
	}
}
