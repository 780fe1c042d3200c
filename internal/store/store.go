// Package store provides conversation persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/kipackjeong/Demo-sub001/internal/domain"
)

// Repository defines the interface for persisting chat sessions and messages.
//
// Implementations must be safe under concurrent appends to different
// sessions and concurrent read/append on the same session. Append order per
// session is conversational turn order; ListMessages returns it unchanged.
type Repository interface {
	// GetOrCreateSession returns the session for the given id, creating it
	// if the id has not been seen. An unknown id is never an error. The
	// userID is associated on first creation and left untouched afterwards
	// unless the stored association is still empty.
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.ChatSession, error)

	// AppendMessage appends one message to a session, creating the session
	// first when the id is unseen. Returned messages carry a store-assigned
	// monotonic id.
	AppendMessage(ctx context.Context, sessionID, userID, role, content string) (*domain.Message, error)

	// ListMessages returns all messages for a session in append order.
	// An unknown session id yields an empty slice.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
