package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kipackjeong/Demo-sub001/internal/domain"
	"github.com/kipackjeong/Demo-sub001/internal/identity"
	"github.com/kipackjeong/Demo-sub001/internal/protocol"
	"github.com/kipackjeong/Demo-sub001/internal/store"
)

func newSessionsRouter(t *testing.T) (chi.Router, store.Repository) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	r := chi.NewRouter()
	NewSessionsHandler(NewHandler(repo)).RegisterRoutes(r)
	return r, repo
}

func TestListMessagesReturnsAppendOrder(t *testing.T) {
	t.Parallel()

	r, repo := newSessionsRouter(t)
	ctx := context.Background()

	for _, m := range []struct{ role, content string }{
		{protocol.RoleUser, "hello"},
		{protocol.RoleAssistant, "hi there"},
		{protocol.RoleUser, "book a slot"},
	} {
		if _, err := repo.AppendMessage(ctx, "s1", "anon_1", m.role, m.content); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SessionID string            `json:"session_id"`
		Messages  []*domain.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if body.SessionID != "s1" || len(body.Messages) != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
	want := []string{"hello", "hi there", "book a slot"}
	for i, w := range want {
		if body.Messages[i].Content != w {
			t.Errorf("message %d: got %q, want %q", i, body.Messages[i].Content, w)
		}
	}
}

func TestListMessagesUnknownSessionIsEmpty(t *testing.T) {
	t.Parallel()

	r, _ := newSessionsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/never-seen/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unknown session, got %d", rec.Code)
	}
	var body struct {
		Messages []*domain.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if body.Messages == nil || len(body.Messages) != 0 {
		t.Fatalf("expected an empty list, got %v", body.Messages)
	}
}

func TestGetMeRequiresIdentity(t *testing.T) {
	t.Parallel()

	r, _ := newSessionsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(identity.WithUserID(req.Context(), "anon_42"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if body["user_id"] != "anon_42" {
		t.Fatalf("unexpected identity: %v", body)
	}
}
