package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIPFromRequestStripsPort(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:52431"
	if got := IPFromRequest(r); got != "203.0.113.7" {
		t.Fatalf("IPFromRequest = %q, want bare host", got)
	}
}

func TestIPFromRequestKeepsBareHost(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7"
	if got := IPFromRequest(r); got != "203.0.113.7" {
		t.Fatalf("IPFromRequest = %q, want the address unchanged", got)
	}
}

func TestMiddlewareMintsAndKeepsAnonID(t *testing.T) {
	t.Parallel()

	var first string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = UserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if !isValidAnonID(first) {
		t.Fatalf("expected a minted anon id, got %q", first)
	}

	var anon *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == AnonCookieName {
			anon = c
		}
	}
	if anon == nil {
		t.Fatal("anon cookie was not set")
	}

	// A returning client keeps its id.
	var second string
	h = Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		second = UserIDFromContext(r.Context())
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(anon)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if second != first {
		t.Fatalf("returning client got a new id: %q vs %q", second, first)
	}
}
