// Package chat implements the server side of the real-time chat transport:
// the per-socket connection handler, per-session turn serialization, the
// connection registry, and transcript logging.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/kipackjeong/Demo-sub001/internal/domain"
	"github.com/kipackjeong/Demo-sub001/internal/engine"
	"github.com/kipackjeong/Demo-sub001/internal/identity"
	"github.com/kipackjeong/Demo-sub001/internal/metrics"
	"github.com/kipackjeong/Demo-sub001/internal/protocol"
	"github.com/kipackjeong/Demo-sub001/internal/store"
)

const (
	defaultTurnTimeout    = 2 * time.Minute
	defaultTurnQueueDepth = 1
)

// Options configures a Handler.
type Options struct {
	// TurnTimeout bounds one engine invocation. Defaults to two minutes.
	TurnTimeout time.Duration
	// TurnQueueDepth is the number of turns allowed to wait behind the one
	// in flight on a session. Defaults to one; beyond it, user messages are
	// answered with an error frame.
	TurnQueueDepth int
	// AllowedOrigin restricts browser origins outside dev mode.
	AllowedOrigin string
	// Dev disables origin checking.
	Dev bool
	// Transcript receives conversation events; nil disables logging.
	Transcript *Transcript
	// Metrics receives transport counters; nil creates a private set.
	Metrics *metrics.Metrics
}

// Handler upgrades chat sockets and runs the per-connection control loop.
type Handler struct {
	repo        store.Repository
	eng         engine.Engine
	gates       *TurnGates
	registry    *Registry
	transcript  *Transcript
	metrics     *metrics.Metrics
	turnTimeout time.Duration
	origin      string
	isDev       bool
}

// NewHandler creates a chat handler.
func NewHandler(repo store.Repository, eng engine.Engine, registry *Registry, opts Options) *Handler {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = defaultTurnTimeout
	}
	if opts.TurnQueueDepth == 0 {
		opts.TurnQueueDepth = defaultTurnQueueDepth
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Transcript == nil {
		opts.Transcript, _ = NewTranscript(TranscriptConfig{})
	}
	return &Handler{
		repo:        repo,
		eng:         eng,
		gates:       NewTurnGates(opts.TurnQueueDepth),
		registry:    registry,
		transcript:  opts.Transcript,
		metrics:     opts.Metrics,
		turnTimeout: opts.TurnTimeout,
		origin:      opts.AllowedOrigin,
		isDev:       opts.Dev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("Chat connection request", "user_id", userID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept chat socket", "error", err, "user_id", userID)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "session ended") }()

	connID := uuid.NewString()
	h.registry.Register(connID, ws)
	defer h.registry.Unregister(connID, ws)

	h.metrics.ConnectionsActive.Inc()
	defer h.metrics.ConnectionsActive.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Handshake: the connected frame carries no session id and no content.
	if err := h.writeFrame(ctx, ws, protocol.Connected()); err != nil {
		slog.Warn("Failed to send handshake", "error", err, "conn_id", connID)
		return
	}

	h.readLoop(ctx, ws, userID, connID)
	slog.Info("Chat connection ended", "user_id", userID, "conn_id", connID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.origin == "*" || h.origin == "" || origin == h.origin {
		return true
	}
	slog.Warn("Chat origin rejected", "origin", origin, "allowed", h.origin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, connID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Chat socket closed by client", "conn_id", connID)
			} else {
				slog.Warn("Chat socket read error", "error", err, "conn_id", connID)
			}
			return
		}

		// Decode leniently first so a validation failure can still echo the
		// session id back on the error frame.
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(ctx, ws, "", "malformed frame: not a JSON object")
			continue
		}
		if err := frame.Validate(); err != nil {
			h.sendError(ctx, ws, frame.SessionID, err.Error())
			continue
		}
		h.metrics.FramesTotal.WithLabelValues(string(frame.Type), "in").Inc()

		switch frame.Type {
		case protocol.TypeUserMessage:
			h.runTurn(ctx, ws, userID, frame)
		default:
			// Clients only send user messages; anything else is a protocol
			// error, answered but never fatal to the connection.
			h.sendError(ctx, ws, frame.SessionID, "unexpected frame type "+string(frame.Type))
		}
	}
}

// runTurn executes one agent turn: persist the user message, stream the
// engine's fragments in order, persist the assembled reply, terminate with
// done or error. Turns on one session are serialized by the gate.
func (h *Handler) runTurn(ctx context.Context, ws *websocket.Conn, userID string, frame protocol.Frame) {
	start := time.Now()
	sessionID := frame.SessionID

	release, err := h.gates.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrTurnQueueFull) {
			slog.Warn("Turn rejected, queue full", "session_id", sessionID)
			h.sendError(ctx, ws, sessionID, "a reply is already being composed for this conversation, try again shortly")
			h.metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		}
		return
	}
	defer release()

	turnCtx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	if _, err := h.repo.GetOrCreateSession(turnCtx, sessionID, userID); err != nil {
		slog.Error("Failed to upsert session", "error", err, "session_id", sessionID)
		h.sendError(turnCtx, ws, sessionID, "failed to open conversation")
		h.metrics.TurnsTotal.WithLabelValues("store_error").Inc()
		return
	}

	// The user turn must be durable before the engine reads history, so the
	// engine always sees the message it is answering.
	if _, err := h.repo.AppendMessage(turnCtx, sessionID, userID, protocol.RoleUser, frame.Content); err != nil {
		slog.Error("Failed to persist user message", "error", err, "session_id", sessionID)
		h.sendError(turnCtx, ws, sessionID, "failed to save your message")
		h.metrics.TurnsTotal.WithLabelValues("store_error").Inc()
		return
	}
	h.transcript.Log(TranscriptEvent{
		SessionID: sessionID,
		UserID:    userID,
		Role:      protocol.RoleUser,
		EventType: "user_message",
		Content:   frame.Content,
	})

	history, err := h.repo.ListMessages(turnCtx, sessionID)
	if err != nil {
		slog.Error("Failed to load history", "error", err, "session_id", sessionID)
		h.sendError(turnCtx, ws, sessionID, "failed to load conversation history")
		h.metrics.TurnsTotal.WithLabelValues("store_error").Inc()
		return
	}

	// Best-effort composing signal before the first fragment. A write
	// failure here means the client is gone; abandon the turn unstarted.
	if err := h.writeFrame(turnCtx, ws, protocol.Typing(sessionID)); err != nil {
		slog.Debug("Client gone before turn start", "session_id", sessionID)
		h.metrics.TurnsTotal.WithLabelValues("aborted").Inc()
		return
	}

	var reply strings.Builder
	for fragment, err := range h.eng.Generate(turnCtx, toEngineHistory(history)) {
		if err != nil {
			// Engine failure: one error frame, no partial assistant message
			// persisted. The conversation stays resumable.
			slog.Error("Engine stream failed", "error", err, "session_id", sessionID)
			h.transcript.Log(TranscriptEvent{
				SessionID: sessionID,
				UserID:    userID,
				EventType: "turn_failed",
				Cause:     err.Error(),
			})
			h.sendError(turnCtx, ws, sessionID, err.Error())
			h.metrics.TurnsTotal.WithLabelValues("engine_error").Inc()
			return
		}
		if fragment == "" {
			continue
		}
		reply.WriteString(fragment)
		if werr := h.writeFrame(turnCtx, ws, protocol.AgentResponse(sessionID, fragment)); werr != nil {
			// Client disappeared mid-stream: cancel the engine invocation
			// and persist nothing for this turn.
			cancel()
			slog.Warn("Client gone mid-stream, turn abandoned", "session_id", sessionID)
			h.metrics.TurnsTotal.WithLabelValues("aborted").Inc()
			return
		}
	}

	if _, err := h.repo.AppendMessage(turnCtx, sessionID, userID, protocol.RoleAssistant, reply.String()); err != nil {
		// A persistence failure must become an application error, never a
		// done frame for a reply the store lost.
		slog.Error("Failed to persist assistant message", "error", err, "session_id", sessionID)
		h.sendError(turnCtx, ws, sessionID, "failed to save the reply")
		h.metrics.TurnsTotal.WithLabelValues("store_error").Inc()
		return
	}
	h.transcript.Log(TranscriptEvent{
		SessionID: sessionID,
		UserID:    userID,
		Role:      protocol.RoleAssistant,
		EventType: "assistant_message",
		Content:   reply.String(),
	})

	if err := h.writeFrame(turnCtx, ws, protocol.Done(sessionID)); err != nil {
		slog.Debug("Client gone at turn end", "session_id", sessionID)
		return
	}

	h.metrics.TurnsTotal.WithLabelValues("ok").Inc()
	h.metrics.TurnDuration.Observe(time.Since(start).Seconds())
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, frame protocol.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	h.metrics.FramesTotal.WithLabelValues(string(frame.Type), "out").Inc()
	return nil
}

func (h *Handler) sendError(ctx context.Context, ws *websocket.Conn, sessionID, cause string) {
	if err := h.writeFrame(ctx, ws, protocol.Error(sessionID, cause)); err != nil {
		slog.Debug("Failed to send error frame", "error", err, "session_id", sessionID)
	}
}

func toEngineHistory(msgs []*domain.Message) []engine.Turn {
	history := make([]engine.Turn, 0, len(msgs))
	for _, msg := range msgs {
		history = append(history, engine.Turn{Role: msg.Role, Content: msg.Content})
	}
	return history
}
