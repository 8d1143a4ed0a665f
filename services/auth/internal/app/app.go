package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/auth"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/oauth"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/storage"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/store"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/token"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL        string
	TokenSecret        string
	TokenTTL           time.Duration
	TokenIssuer        string
	TokenAudience      string
	GoogleClientID     string
	GoogleClientSecret string
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool

	Store     store.Store
	Tokens    *token.Issuer
	Exchanger oauth.Exchanger
	Objects   storage.ObjectStore
}

// App is the auth orchestration service wiring storage, hashing, OAuth and
// token issuance together.
type App struct {
	store         store.Store
	tokens        *token.Issuer
	exchanger     oauth.Exchanger
	objects       storage.ObjectStore
	presignExpiry time.Duration
}

// New constructs the application. The token signing secret is mandatory;
// startup fails without it.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	tokens := cfg.Tokens
	if tokens == nil {
		var err error
		tokens, err = token.New(cfg.TokenSecret, token.Options{
			Issuer:   cfg.TokenIssuer,
			Audience: cfg.TokenAudience,
			TTL:      cfg.TokenTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("init token issuer: %w", err)
		}
	}

	exchanger := cfg.Exchanger
	if exchanger == nil {
		var err error
		exchanger, err = oauth.NewGoogleExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret)
		if err != nil {
			return nil, fmt.Errorf("init google oauth: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	return &App{
		store:         dataStore,
		tokens:        tokens,
		exchanger:     exchanger,
		objects:       objects,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// Register creates a local account and issues a token. Duplicate emails
// surface as ErrEmailAlreadyExists.
func (a *App) Register(email, password, name string, role domain.UserRole) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	if role == "" {
		role = domain.RoleReader
	}
	if role != domain.RoleReader && role != domain.RoleAuthor {
		return domain.User{}, "", ErrInvalidRole
	}
	_, exists, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Role:         role,
		Subscription: defaultTierForRole(role),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateUser(&user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, "", ErrEmailAlreadyExists
		}
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	return a.issueToken(user)
}

// Login validates credentials and issues a token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !user.Active {
		return domain.User{}, "", ErrAccountInactive
	}
	return a.issueToken(user)
}

// GoogleLogin exchanges the authorization code, then finds or creates the
// account bound to the external identity and issues a token.
func (a *App) GoogleLogin(ctx context.Context, code, redirectURI string) (domain.User, string, error) {
	identity, err := a.exchanger.Exchange(ctx, code, redirectURI)
	if err != nil {
		return domain.User{}, "", err
	}
	user, ok, err := a.store.GetUserByGoogleID(identity.ExternalID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		user = domain.User{
			Email:             strings.TrimSpace(strings.ToLower(identity.Email)),
			Name:              strings.TrimSpace(identity.Name),
			GoogleID:          identity.ExternalID,
			Role:              domain.RoleReader,
			Subscription:      domain.TierFree,
			Active:            true,
			ProfilePictureURL: identity.Picture,
			CreatedAt:         time.Now().UTC(),
		}
		if err := a.store.CreateUser(&user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return domain.User{}, "", ErrEmailAlreadyExists
			}
			return domain.User{}, "", fmt.Errorf("create user: %w", err)
		}
	}
	if !user.Active {
		return domain.User{}, "", ErrAccountInactive
	}
	return a.issueToken(user)
}

// UserFromToken resolves the current user from a bearer token.
func (a *App) UserFromToken(tokenString string) (domain.User, bool) {
	claims, err := a.tokens.Verify(tokenString)
	if err != nil {
		return domain.User{}, false
	}
	id, err := claims.UserID()
	if err != nil {
		return domain.User{}, false
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil || !ok || !user.Active {
		return domain.User{}, false
	}
	return user, true
}

// GetUser returns a user by id.
func (a *App) GetUser(id uint) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// ListReaders returns all reader accounts.
func (a *App) ListReaders() ([]domain.User, error) {
	return a.store.ListUsersByRole(domain.RoleReader)
}

// ListAuthors returns all author accounts.
func (a *App) ListAuthors() ([]domain.User, error) {
	return a.store.ListUsersByRole(domain.RoleAuthor)
}

// SetActive activates or deactivates an account.
func (a *App) SetActive(id uint, active bool) error {
	if err := a.store.SetUserActive(id, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// ChangeSubscription validates the tier against the account role and updates it.
// Authors keep the author tier; reader accounts cannot take it.
func (a *App) ChangeSubscription(id uint, tier domain.SubscriptionTier) error {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	switch user.Role {
	case domain.RoleAuthor:
		if tier != domain.TierAuthor {
			return ErrInvalidSubscription
		}
	default:
		if tier != domain.TierFree && tier != domain.TierPremium {
			return ErrInvalidSubscription
		}
	}
	if err := a.store.SetSubscription(id, tier); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// UploadProfilePicture stores the image object and records its key.
func (a *App) UploadProfilePicture(user domain.User, filename string, r io.Reader, size int64) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", errors.New("filename required")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
	default:
		return "", fmt.Errorf("unsupported image type %q", ext)
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := path.Join("avatars", fmt.Sprint(user.ID), uuid.NewString()+ext)
	if err := a.objects.Put(context.Background(), key, r, size, contentType); err != nil {
		return "", fmt.Errorf("save picture: %w", err)
	}
	if err := a.store.SetProfilePicture(user.ID, key); err != nil {
		_ = a.objects.Delete(context.Background(), key)
		return "", fmt.Errorf("save picture key: %w", err)
	}
	return key, nil
}

// ProfilePictureURL returns a pre-signed URL for the user's picture.
func (a *App) ProfilePictureURL(user domain.User) (string, error) {
	if strings.TrimSpace(user.ProfilePictureURL) == "" {
		return "", ErrUserNotFound
	}
	if strings.HasPrefix(user.ProfilePictureURL, "http") {
		// External picture (e.g. from the OAuth provider), already a URL.
		return user.ProfilePictureURL, nil
	}
	url, err := a.objects.PresignGet(context.Background(), user.ProfilePictureURL, a.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign picture: %w", err)
	}
	return url, nil
}

// SaveProfile creates or replaces the user's 1:1 profile extension.
func (a *App) SaveProfile(userID uint, p domain.UserProfile) error {
	p.UserID = userID
	return a.store.SaveProfile(p)
}

// GetProfile returns the profile extension; an empty profile when absent.
func (a *App) GetProfile(userID uint) (domain.UserProfile, error) {
	p, ok, err := a.store.GetProfile(userID)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	if !ok {
		return domain.UserProfile{UserID: userID}, nil
	}
	return p, nil
}

func (a *App) issueToken(user domain.User) (domain.User, string, error) {
	tok, err := a.tokens.Issue(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, tok, nil
}

func defaultTierForRole(role domain.UserRole) domain.SubscriptionTier {
	if role == domain.RoleAuthor {
		return domain.TierAuthor
	}
	return domain.TierFree
}
