package idp

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuth2Provider is a generic provider with explicitly configured endpoints.
// The user id comes from the userinfo "sub" claim, or from a user_id field
// in the token response when no userinfo endpoint is configured.
type OAuth2Provider struct {
	baseProvider
}

type oauth2UserInfoResponse struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// NewOAuth2Provider creates a generic OAuth 2.0 provider.
func NewOAuth2Provider(client ClientConfig, endpoints Endpoints) (*OAuth2Provider, error) {
	if endpoints.AuthorizationURL == "" || endpoints.TokenURL == "" {
		return nil, fmt.Errorf("authorizationURL and tokenURL must be provided")
	}
	return &OAuth2Provider{baseProvider: newBaseProvider(client, endpoints)}, nil
}

// Type returns the provider type.
func (p *OAuth2Provider) Type() string {
	return "oauth2"
}

// UserInfo resolves the user id.
func (p *OAuth2Provider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	if p.userInfoURL == "" {
		userID := fmt.Sprint(token.Extra("user_id"))
		if userID == "" || userID == "<nil>" {
			return nil, fmt.Errorf("token response has no user_id and no userinfo endpoint is configured")
		}
		return &Identity{ProviderType: "oauth2", Subject: userID}, nil
	}

	var info oauth2UserInfoResponse
	if err := p.fetchJSON(ctx, token, p.userInfoURL, &info); err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("user info response has no sub claim")
	}

	return &Identity{
		ProviderType: "oauth2",
		Subject:      info.Sub,
		Login:        info.PreferredUsername,
		Email:        info.Email,
		Name:         info.Name,
	}, nil
}
