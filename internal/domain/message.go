package domain

import (
	"time"
)

// Message is one persisted conversational turn entry. The store appends
// exactly one user message before the engine runs and exactly one assistant
// message after the stream completes; streamed fragments are never stored
// individually.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
