package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/oauth"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/storage"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/store"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/token"
)

type stubExchanger struct {
	identity oauth.Identity
	err      error
}

func (s stubExchanger) Exchange(_ context.Context, _, _ string) (oauth.Identity, error) {
	return s.identity, s.err
}

func newTestApp(t *testing.T, exchanger oauth.Exchanger) (*App, *store.MemoryStore) {
	t.Helper()
	tokens, err := token.New("test-secret", token.Options{})
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}
	if exchanger == nil {
		exchanger = stubExchanger{err: errors.New("exchange not configured")}
	}
	mem := store.NewMemoryStore()
	appCore, err := New(Config{
		Store:     mem,
		Tokens:    tokens,
		Exchanger: exchanger,
		Objects:   storage.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return appCore, mem
}

const strongPassword = "Str0ng#Password"

func TestRegisterAndLogin(t *testing.T) {
	appCore, _ := newTestApp(t, nil)

	user, tok, err := appCore.Register("Reader@Example.com", strongPassword, "Reader One", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "reader@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Role != domain.RoleReader || user.Subscription != domain.TierFree {
		t.Fatalf("unexpected defaults: role=%s subscription=%s", user.Role, user.Subscription)
	}
	if tok == "" {
		t.Fatal("expected a token on register")
	}

	loggedIn, loginTok, err := appCore.Login("reader@example.com", strongPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Fatalf("login returned wrong user: got %d want %d", loggedIn.ID, user.ID)
	}
	resolved, ok := appCore.UserFromToken(loginTok)
	if !ok || resolved.ID != user.ID {
		t.Fatalf("token did not resolve to the user: ok=%v id=%d", ok, resolved.ID)
	}
}

func TestRegisterAuthorGetsAuthorTier(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	user, _, err := appCore.Register("author@example.com", strongPassword, "Author", domain.RoleAuthor)
	if err != nil {
		t.Fatalf("register author: %v", err)
	}
	if user.Subscription != domain.TierAuthor {
		t.Fatalf("author subscription: got %s want %s", user.Subscription, domain.TierAuthor)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	if _, _, err := appCore.Register("dup@example.com", strongPassword, "First", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := appCore.Register("dup@example.com", strongPassword, "Second", "")
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	if _, _, err := appCore.Register("weak@example.com", "short", "Weak", ""); err == nil {
		t.Fatal("expected weak password to be rejected")
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	_, _, err := appCore.Register("boss@example.com", strongPassword, "Boss", domain.RoleAdmin)
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	user, _, err := appCore.Register("login@example.com", strongPassword, "Login", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := appCore.Login("login@example.com", "Wr0ng#Password!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := appCore.Login("nobody@example.com", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}

	if err := appCore.SetActive(user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := appCore.Login("login@example.com", strongPassword); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("inactive account: expected ErrAccountInactive, got %v", err)
	}
}

func TestGoogleLoginCreatesAndFindsUser(t *testing.T) {
	identity := oauth.Identity{
		ExternalID: "google-uid-42",
		Email:      "GMail.User@example.com",
		Name:       "GMail User",
		Picture:    "https://lh3.example.com/photo.jpg",
	}
	appCore, _ := newTestApp(t, stubExchanger{identity: identity})

	first, _, err := appCore.GoogleLogin(context.Background(), "auth-code", "https://app.example.com/callback")
	if err != nil {
		t.Fatalf("first google login: %v", err)
	}
	if first.Role != domain.RoleReader || first.Subscription != domain.TierFree {
		t.Fatalf("unexpected defaults: role=%s subscription=%s", first.Role, first.Subscription)
	}
	if first.Email != "gmail.user@example.com" {
		t.Fatalf("email not normalized: %q", first.Email)
	}
	if first.ProfilePictureURL != identity.Picture {
		t.Fatalf("picture not carried over: %q", first.ProfilePictureURL)
	}

	second, _, err := appCore.GoogleLogin(context.Background(), "auth-code", "https://app.example.com/callback")
	if err != nil {
		t.Fatalf("second google login: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same account, got %d and %d", first.ID, second.ID)
	}
}

func TestGoogleLoginInactiveAccount(t *testing.T) {
	identity := oauth.Identity{ExternalID: "google-uid-7", Email: "blocked@example.com", Name: "Blocked"}
	appCore, _ := newTestApp(t, stubExchanger{identity: identity})

	user, _, err := appCore.GoogleLogin(context.Background(), "code", "https://app.example.com/callback")
	if err != nil {
		t.Fatalf("google login: %v", err)
	}
	if err := appCore.SetActive(user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := appCore.GoogleLogin(context.Background(), "code", "https://app.example.com/callback"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestChangeSubscription(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	reader, _, err := appCore.Register("tier@example.com", strongPassword, "Tier", "")
	if err != nil {
		t.Fatalf("register reader: %v", err)
	}
	author, _, err := appCore.Register("writer@example.com", strongPassword, "Writer", domain.RoleAuthor)
	if err != nil {
		t.Fatalf("register author: %v", err)
	}

	if err := appCore.ChangeSubscription(reader.ID, domain.TierPremium); err != nil {
		t.Fatalf("reader to premium: %v", err)
	}
	if err := appCore.ChangeSubscription(reader.ID, domain.TierAuthor); !errors.Is(err, ErrInvalidSubscription) {
		t.Fatalf("reader to author tier: expected ErrInvalidSubscription, got %v", err)
	}
	if err := appCore.ChangeSubscription(author.ID, domain.TierFree); !errors.Is(err, ErrInvalidSubscription) {
		t.Fatalf("author to free: expected ErrInvalidSubscription, got %v", err)
	}
	if err := appCore.ChangeSubscription(99999, domain.TierPremium); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: expected ErrUserNotFound, got %v", err)
	}

	updated, err := appCore.GetUser(reader.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if updated.Subscription != domain.TierPremium {
		t.Fatalf("subscription not persisted: %s", updated.Subscription)
	}
}

func TestUploadProfilePicture(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	user, _, err := appCore.Register("avatar@example.com", strongPassword, "Avatar", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	body := strings.NewReader("fake-png-bytes")
	key, err := appCore.UploadProfilePicture(user, "me.png", body, int64(body.Len()))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(key, "avatars/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected object key: %q", key)
	}

	updated, err := appCore.GetUser(user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if updated.ProfilePictureURL != key {
		t.Fatalf("picture key not saved: got %q want %q", updated.ProfilePictureURL, key)
	}
	url, err := appCore.ProfilePictureURL(updated)
	if err != nil {
		t.Fatalf("picture url: %v", err)
	}
	if url == "" {
		t.Fatal("expected a non-empty picture url")
	}

	if _, err := appCore.UploadProfilePicture(user, "script.exe", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected unsupported extension to be rejected")
	}
}

func TestSaveAndGetProfile(t *testing.T) {
	appCore, _ := newTestApp(t, nil)
	user, _, err := appCore.Register("profile@example.com", strongPassword, "Profile", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	empty, err := appCore.GetProfile(user.ID)
	if err != nil {
		t.Fatalf("get empty profile: %v", err)
	}
	if empty.UserID != user.ID || empty.NIC != "" {
		t.Fatalf("unexpected empty profile: %+v", empty)
	}

	in := domain.UserProfile{NIC: "991234567V", Phone: "+94771234567", Address: "12 Temple Rd", Occupation: "Teacher"}
	if err := appCore.SaveProfile(user.ID, in); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	got, err := appCore.GetProfile(user.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.NIC != in.NIC || got.Phone != in.Phone || got.Address != in.Address || got.Occupation != in.Occupation {
		t.Fatalf("profile mismatch: %+v", got)
	}
}
