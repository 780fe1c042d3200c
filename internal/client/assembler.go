package client

import (
	"strings"
	"sync"

	"github.com/kipackjeong/Demo-sub001/internal/protocol"
)

// AssemblerEvents are the lifecycle callbacks the presentation layer
// consumes. Callbacks run on the frame-delivery goroutine and must not call
// back into the assembler.
type AssemblerEvents struct {
	// OnComposing fires when the assistant starts a turn. Repeated typing
	// frames within one turn fire it once.
	OnComposing func()
	// OnUpdate fires per fragment with the accumulated partial reply.
	OnUpdate func(partial string)
	// OnComplete fires with the final reply, the concatenation of all
	// fragment contents in arrival order.
	OnComplete func(final string)
	// OnFailed fires with the cause when a turn ends in an error frame; the
	// partial buffer is discarded.
	OnFailed func(cause string)
}

// Assembler folds the inbound frame sequence for one conversation into
// assistant-message lifecycle events. It holds at most one in-progress
// buffer; frames for other sessions are ignored.
type Assembler struct {
	sessionID string
	events    AssemblerEvents

	mu        sync.Mutex
	buf       strings.Builder
	composing bool
}

// NewAssembler creates an assembler bound to one session id.
func NewAssembler(sessionID string, events AssemblerEvents) *Assembler {
	return &Assembler{sessionID: sessionID, events: events}
}

// Handle consumes one inbound frame.
func (a *Assembler) Handle(frame protocol.Frame) {
	if frame.Type == protocol.TypeConnected || frame.SessionID != a.sessionID {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch frame.Type {
	case protocol.TypeTyping:
		// Typing over an unterminated buffer means the peer never sent the
		// prior turn's terminator; complete it rather than grow forever.
		if a.buf.Len() > 0 {
			a.finishLocked()
		}
		if !a.composing {
			a.composing = true
			if a.events.OnComposing != nil {
				a.events.OnComposing()
			}
		}

	case protocol.TypeAgentResponse:
		a.buf.WriteString(frame.Content)
		if a.events.OnUpdate != nil {
			a.events.OnUpdate(a.buf.String())
		}

	case protocol.TypeDone:
		// A done with no turn in progress completes nothing.
		if !a.composing && a.buf.Len() == 0 {
			return
		}
		a.finishLocked()

	case protocol.TypeError:
		a.buf.Reset()
		a.composing = false
		if a.events.OnFailed != nil {
			a.events.OnFailed(frame.Content)
		}
	}
}

func (a *Assembler) finishLocked() {
	final := a.buf.String()
	a.buf.Reset()
	a.composing = false
	if a.events.OnComplete != nil {
		a.events.OnComplete(final)
	}
}
