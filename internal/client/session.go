package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kipackjeong/Demo-sub001/internal/protocol"
)

// NewSessionID generates a process-unique conversation id: a namespace, a
// high-resolution timestamp, and a random suffix.
func NewSessionID(namespace string) string {
	if namespace == "" {
		namespace = "chat"
	}
	return fmt.Sprintf("%s-%d-%s", namespace, time.Now().UnixNano(), uuid.NewString()[:8])
}

// Correlator owns the session id for one conversation surface. The id is
// generated once on first use and stamped onto every outbound user message,
// so the conversation survives reconnects and server restarts.
type Correlator struct {
	namespace string
	once      sync.Once
	id        string
}

// NewCorrelator creates a correlator; the session id is not generated until
// first use.
func NewCorrelator(namespace string) *Correlator {
	return &Correlator{namespace: namespace}
}

// SessionID returns the conversation id, generating it on first call.
func (c *Correlator) SessionID() string {
	c.once.Do(func() {
		c.id = NewSessionID(c.namespace)
	})
	return c.id
}

// UserMessage builds an outbound user_message frame stamped with the
// conversation's session id.
func (c *Correlator) UserMessage(content string) protocol.Frame {
	return protocol.UserMessage(c.SessionID(), content)
}
