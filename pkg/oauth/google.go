package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Identity is the third-party identity returned by the provider.
type Identity struct {
	ExternalID string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Picture    string `json:"picture"`
}

// Exchanger trades an authorization code for a third-party identity.
type Exchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (Identity, error)
}

// GoogleExchanger implements Exchanger against Google's OAuth endpoints.
type GoogleExchanger struct {
	clientID     string
	clientSecret string
	userInfoURL  string
}

// NewGoogleExchanger builds the exchanger. Client credentials are mandatory.
func NewGoogleExchanger(clientID, clientSecret string) (*GoogleExchanger, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, errors.New("google oauth client id and secret are required")
	}
	return &GoogleExchanger{
		clientID:     clientID,
		clientSecret: clientSecret,
		userInfoURL:  userInfoURL,
	}, nil
}

// Exchange swaps the authorization code for an access token and fetches the
// user's profile. Any transport failure or non-success status propagates.
func (g *GoogleExchanger) Exchange(ctx context.Context, code, redirectURI string) (Identity, error) {
	if err := ValidateExchangeInput(code, redirectURI); err != nil {
		return Identity{}, err
	}
	conf := &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}

	resp, err := conf.Client(ctx, tok).Get(g.userInfoURL)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("fetch user info: status %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return Identity{}, fmt.Errorf("decode user info: %w", err)
	}
	if strings.TrimSpace(identity.ExternalID) == "" {
		return Identity{}, errors.New("provider returned no user id")
	}
	return identity, nil
}

// ValidateExchangeInput checks the code and redirect URI shape before any
// network call is made.
func ValidateExchangeInput(code, redirectURI string) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("authorization code is required")
	}
	if strings.TrimSpace(redirectURI) == "" {
		return errors.New("redirect URI is required")
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return errors.New("redirect URI must be an absolute URL")
	}
	return nil
}
