package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Identity is who the provider says the token belongs to
type Identity struct {
	ProviderType string `json:"provider_type"`
	Subject      string `json:"sub"`
	Login        string `json:"login,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Provider abstracts the OAuth provider operations the session bridge needs.
type Provider interface {
	// Type returns the provider type identifier (e.g., "wordpress", "oauth2").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh trades a refresh token for a new token set.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// UserInfo resolves the identity behind an access token.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// Endpoints are the provider URLs used by the authorization code flow
type Endpoints struct {
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
}

// ClientConfig is the registered OAuth client
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	// HTTPClient is used for token and userinfo calls. Defaults to a
	// client with a 30s timeout.
	HTTPClient *http.Client
}

// baseProvider carries the oauth2 plumbing shared by all providers
type baseProvider struct {
	config      oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func newBaseProvider(client ClientConfig, endpoints Endpoints) baseProvider {
	httpClient := client.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return baseProvider{
		config: oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURI,
			Scopes:       client.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  endpoints.AuthorizationURL,
				TokenURL: endpoints.TokenURL,
			},
		},
		userInfoURL: endpoints.UserInfoURL,
		httpClient:  httpClient,
	}
}

// withClient makes oauth2 use our HTTP client for token endpoint calls
func (p *baseProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *baseProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *baseProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(p.withClient(ctx), code)
}

func (p *baseProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token")
	}
	// A token with only a refresh token is never valid, forcing a refresh
	src := p.config.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// maxUserInfoBytes bounds a userinfo response body
const maxUserInfoBytes = 1 << 20

// fetchJSON GETs url with the bearer token and decodes the JSON body into v
func (p *baseProvider) fetchJSON(ctx context.Context, token *oauth2.Token, url string, v any) error {
	client := p.config.Client(p.withClient(ctx), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to get user info: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(v); err != nil {
		return fmt.Errorf("failed to decode user info: %w", err)
	}
	return nil
}
