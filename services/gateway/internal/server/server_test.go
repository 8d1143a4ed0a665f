package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestGateway(t *testing.T, authURL, catalogURL string) *Server {
	t.Helper()
	redis := miniredis.RunT(t)
	srv, err := New(Config{
		AuthBaseURL:                authURL,
		CatalogBaseURL:             catalogURL,
		RedisAddr:                  redis.Addr(),
		RegisterRateLimitPerMinute: 3,
		LoginRateLimitPerMinute:    3,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return srv
}

func TestForwardingByPathPrefix(t *testing.T) {
	authBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_ = json.NewEncoder(w).Encode(map[string]string{"service": "auth", "path": r.URL.Path})
	}))
	defer authBackend.Close()
	catalogBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"service": "catalog", "path": r.URL.Path})
	}))
	defer catalogBackend.Close()

	handler := newTestGateway(t, authBackend.URL, catalogBackend.URL).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("auth status passed through: got %d want %d", rec.Code, http.StatusTeapot)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["service"] != "auth" || payload["path"] != "/api/users/me" {
		t.Fatalf("unexpected upstream: %+v", payload)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/Books", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog status: got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["service"] != "catalog" || payload["path"] != "/api/Books" {
		t.Fatalf("unexpected upstream: %+v", payload)
	}
}

func TestAuthorizationHeaderForwarded(t *testing.T) {
	var seenAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
	}))
	defer backend.Close()

	handler := newTestGateway(t, backend.URL, backend.URL).Router()
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seenAuth != "Bearer some-token" {
		t.Fatalf("authorization not forwarded: got %q", seenAuth)
	}
}

func TestBodyForwardedBothWays(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	}))
	defer backend.Close()

	handler := newTestGateway(t, backend.URL, backend.URL).Router()
	req := httptest.NewRequest(http.MethodPost, "/api/Bookmark", strings.NewReader(`{"bookId":7}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusCreated)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"bookId":7}` {
		t.Fatalf("body not passed through: %q", got)
	}
}

func TestUpstreamFailureIsGeneric502(t *testing.T) {
	handler := newTestGateway(t, "http://127.0.0.1:1", "http://127.0.0.1:1").Router()
	req := httptest.NewRequest(http.MethodGet, "/api/Books", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusBadGateway)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "upstream unavailable" {
		t.Fatalf("error message leaks upstream detail: %q", payload["error"])
	}
}

func TestRegisterRateLimit(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	handler := newTestGateway(t, backend.URL, backend.URL).Router()
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{}"))
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{}"))
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth request: got %d want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}

	// A different client is not affected.
	req = httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{}"))
	req.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("other client: got %d", rec.Code)
	}
}
