package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/auth"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/oauth"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/storage"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/store"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/token"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/services/auth/internal/app"
)

const strongPassword = "Str0ng#Password"

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	tokens, err := token.New("test-secret", token.Options{})
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}
	mem := store.NewMemoryStore()
	appCore, err := app.New(app.Config{
		Store:     mem,
		Tokens:    tokens,
		Exchanger: nopExchanger{},
		Objects:   storage.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return New(Config{App: appCore}), mem
}

type nopExchanger struct{}

func (nopExchanger) Exchange(_ context.Context, _, _ string) (oauth.Identity, error) {
	return oauth.Identity{}, fmt.Errorf("not configured")
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginAndMe(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/auth/register", map[string]string{
		"email":    "reader@example.com",
		"password": strongPassword,
		"name":     "Reader",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status: got %d body %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, handler, "/auth/login", map[string]string{
		"email":    "reader@example.com",
		"password": strongPassword,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status: got %d body %s", rec.Code, rec.Body.String())
	}
	var loginResp struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if loginResp.Token == "" {
		t.Fatal("expected a token")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	meRec := httptest.NewRecorder()
	handler.ServeHTTP(meRec, req)
	if meRec.Code != http.StatusOK {
		t.Fatalf("me status: got %d body %s", meRec.Code, meRec.Body.String())
	}
	var me domain.User
	if err := json.Unmarshal(meRec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Email != "reader@example.com" {
		t.Fatalf("unexpected me payload: %+v", me)
	}
}

func TestDuplicateRegisterConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	body := map[string]string{"email": "dup@example.com", "password": strongPassword, "name": "Dup"}

	if rec := postJSON(t, handler, "/auth/register", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first register: got %d", rec.Code)
	}
	if rec := postJSON(t, handler, "/auth/register", body, ""); rec.Code != http.StatusConflict {
		t.Fatalf("second register: got %d want %d", rec.Code, http.StatusConflict)
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	postJSON(t, handler, "/auth/register", map[string]string{
		"email": "user@example.com", "password": strongPassword, "name": "User",
	}, "")
	rec := postJSON(t, handler, "/auth/login", map[string]string{
		"email": "user@example.com", "password": "Wr0ng#Password!",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/auth/register", map[string]string{
		"email": "reader@example.com", "password": strongPassword, "name": "Reader",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d", rec.Code)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/readers", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	forbidden := httptest.NewRecorder()
	handler.ServeHTTP(forbidden, req)
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("reader hitting admin route: got %d want %d", forbidden.Code, http.StatusForbidden)
	}

	adminToken := registerAdmin(t, srv, mem)
	req = httptest.NewRequest(http.MethodGet, "/api/users/readers", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	allowed := httptest.NewRecorder()
	handler.ServeHTTP(allowed, req)
	if allowed.Code != http.StatusOK {
		t.Fatalf("admin listing readers: got %d body %s", allowed.Code, allowed.Body.String())
	}
}

func TestActivateDeactivateUser(t *testing.T) {
	srv, mem := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/auth/register", map[string]string{
		"email": "target@example.com", "password": strongPassword, "name": "Target",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d", rec.Code)
	}
	var resp struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	adminToken := registerAdmin(t, srv, mem)

	req := httptest.NewRequest(http.MethodPatch, fmt.Sprintf("/api/users/%d/deactivate", resp.User.ID), nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	deact := httptest.NewRecorder()
	handler.ServeHTTP(deact, req)
	if deact.Code != http.StatusOK {
		t.Fatalf("deactivate: got %d body %s", deact.Code, deact.Body.String())
	}

	login := postJSON(t, handler, "/auth/login", map[string]string{
		"email": "target@example.com", "password": strongPassword,
	}, "")
	if login.Code != http.StatusUnauthorized {
		t.Fatalf("login after deactivation: got %d want %d", login.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/users/99999/activate", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	missing := httptest.NewRecorder()
	handler.ServeHTTP(missing, req)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("activate unknown user: got %d want %d", missing.Code, http.StatusNotFound)
	}
}

// registerAdmin seeds an admin directly in the store and logs in through the API.
func registerAdmin(t *testing.T, srv *Server, mem *store.MemoryStore) string {
	t.Helper()
	hash, err := auth.HashPassword(strongPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := domain.User{
		Email:        "admin@example.com",
		Name:         "Admin",
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Subscription: domain.TierPremium,
		Active:       true,
	}
	if err := mem.CreateUser(&admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	rec := postJSON(t, srv.Router(), "/auth/login", map[string]string{
		"email": "admin@example.com", "password": strongPassword,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: got %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode admin login: %v", err)
	}
	return resp.Token
}
