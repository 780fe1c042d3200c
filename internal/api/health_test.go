package api

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kipackjeong/Demo-sub001/internal/chat"
	"github.com/kipackjeong/Demo-sub001/internal/engine"
	"github.com/kipackjeong/Demo-sub001/internal/store"
)

type downEngine struct{}

func (downEngine) Generate(ctx context.Context, history []engine.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", fmt.Errorf("engine down"))
	}
}

func (downEngine) Healthy(ctx context.Context) error { return fmt.Errorf("engine down") }

func (downEngine) Close() {}

func newHealthRouter(t *testing.T, eng engine.Engine, registry *chat.Registry) chi.Router {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	r := chi.NewRouter()
	NewHealthHandler(repo, eng, registry).RegisterHealth(r)
	return r
}

func TestHealthReportsOK(t *testing.T) {
	t.Parallel()

	registry := chat.NewRegistry()
	registry.Register("c1", nil)
	r := newHealthRouter(t, engine.NewLocal(nil), registry)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status      string            `json:"status"`
		Checks      map[string]string `json:"checks"`
		Connections int               `json:"connections_active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if body.Status != "healthy" || body.Checks["database"] != "ok" || body.Checks["engine"] != "ok" {
		t.Fatalf("unexpected health body: %+v", body)
	}
	if body.Connections != 1 {
		t.Fatalf("expected 1 active connection, got %d", body.Connections)
	}
}

func TestHealthDegradesWhenEngineDown(t *testing.T) {
	t.Parallel()

	r := newHealthRouter(t, downEngine{}, chat.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if body.Status != "degraded" || body.Checks["engine"] != "unreachable" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}
