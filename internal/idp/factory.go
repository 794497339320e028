package idp

import (
	"fmt"
	"net/http"

	"github.com/dgellow/checkin-front/internal/config"
)

// NewProvider creates a Provider based on the OAuth config.
func NewProvider(cfg config.OAuthConfig, redirectURI string, httpClient *http.Client) (Provider, error) {
	client := ClientConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: string(cfg.ClientSecret),
		RedirectURI:  redirectURI,
		Scopes:       cfg.Scopes,
		HTTPClient:   httpClient,
	}
	endpoints := Endpoints{
		AuthorizationURL: cfg.AuthorizationURL,
		TokenURL:         cfg.TokenURL,
		UserInfoURL:      cfg.UserInfoURL,
	}

	switch cfg.Provider {
	case config.ProviderWordPress:
		return NewWordPressProvider(client, endpoints), nil

	case config.ProviderOAuth2:
		return NewOAuth2Provider(client, endpoints)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
