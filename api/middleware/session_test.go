package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func resolveSession(t *testing.T, build func(*http.Request)) string {
	t.Helper()
	var got string
	handler := Session(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	build(req)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestSessionFromHeader(t *testing.T) {
	got := resolveSession(t, func(r *http.Request) {
		r.Header.Set("X-Session-Id", "sess-header")
	})
	if got != "sess-header" {
		t.Fatalf("expected header session, got %q", got)
	}
}

func TestSessionHeaderWinsOverCookie(t *testing.T) {
	got := resolveSession(t, func(r *http.Request) {
		r.Header.Set("X-Session-Id", "sess-header")
		r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-cookie"})
	})
	if got != "sess-header" {
		t.Fatalf("expected header to win, got %q", got)
	}
}

func TestSessionFromCookie(t *testing.T) {
	got := resolveSession(t, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-cookie"})
	})
	if got != "sess-cookie" {
		t.Fatalf("expected cookie session, got %q", got)
	}
}

func TestSessionFallsBackToAnonymous(t *testing.T) {
	got := resolveSession(t, func(r *http.Request) {})
	if got != AnonymousSession {
		t.Fatalf("expected anonymous fallback, got %q", got)
	}
}
