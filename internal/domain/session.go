// Package domain contains core domain types for the chat service.
package domain

import (
	"time"
)

// ChatSession is a logical conversation identified by a client-generated
// session id. It is created lazily on the first user message for an unseen
// id and never mutated afterwards except to associate a user id.
type ChatSession struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
