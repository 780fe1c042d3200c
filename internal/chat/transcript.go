package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TranscriptEvent is one NDJSON line in a session transcript.
type TranscriptEvent struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Role      string `json:"role,omitempty"`
	EventType string `json:"event"`
	Content   string `json:"content,omitempty"`
	Cause     string `json:"cause,omitempty"`
}

// Transcript appends conversation events to per-session NDJSON files from a
// single background writer, so turn handling never blocks on disk I/O.
// Events are dropped (with a warning) when the queue is full.
type Transcript struct {
	dir     string
	queue   chan TranscriptEvent
	done    chan struct{}
	closed  sync.Once
	wg      sync.WaitGroup
	enabled bool
}

// TranscriptConfig controls transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// NewTranscript creates the transcript writer and starts its drain goroutine.
// A disabled transcript accepts and discards events.
func NewTranscript(cfg TranscriptConfig) (*Transcript, error) {
	t := &Transcript{
		dir:     cfg.Dir,
		done:    make(chan struct{}),
		enabled: cfg.Enabled,
	}
	if !cfg.Enabled {
		return t, nil
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	t.queue = make(chan TranscriptEvent, cfg.QueueSize)
	t.wg.Add(1)
	go t.drain()

	return t, nil
}

// Log enqueues one event. It never blocks.
func (t *Transcript) Log(ev TranscriptEvent) {
	if !t.enabled {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	select {
	case t.queue <- ev:
	default:
		slog.Warn("transcript queue full, dropping event", "session_id", ev.SessionID, "event", ev.EventType)
	}
}

// Close stops the writer after flushing queued events.
func (t *Transcript) Close() error {
	if !t.enabled {
		return nil
	}
	t.closed.Do(func() {
		close(t.done)
		t.wg.Wait()
	})
	return nil
}

func (t *Transcript) drain() {
	defer t.wg.Done()
	for {
		select {
		case ev := <-t.queue:
			t.write(ev)
		case <-t.done:
			for {
				select {
				case ev := <-t.queue:
					t.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (t *Transcript) write(ev TranscriptEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to marshal transcript event", "error", err)
		return
	}

	path := filepath.Join(t.dir, sanitizeFilename(ev.SessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("failed to open transcript file", "path", path, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Warn("failed to write transcript line", "path", path, "error", err)
	}
}

// sanitizeFilename keeps session-id derived filenames to a safe charset.
func sanitizeFilename(id string) string {
	if id == "" {
		return "unknown"
	}
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
