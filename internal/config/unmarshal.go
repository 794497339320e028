package config

import (
	"encoding/json"
	"fmt"
	"time"
)

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr           json.RawMessage `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		NoSSL          bool            `json:"noSSL"`
		AllowedOrigins []string        `json:"allowedOrigins,omitempty"`
		LogLevel       string          `json:"logLevel,omitempty"`
		LogFormat      string          `json:"logFormat,omitempty"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.Addr, err = ParseConfigValue(raw.Addr); err != nil {
		return fmt.Errorf("parsing addr: %w", err)
	}
	if s.BaseURL, err = ParseConfigValue(raw.BaseURL); err != nil {
		return fmt.Errorf("parsing baseURL: %w", err)
	}
	s.NoSSL = raw.NoSSL
	s.AllowedOrigins = raw.AllowedOrigins
	s.LogLevel = raw.LogLevel
	s.LogFormat = raw.LogFormat
	return nil
}

// UnmarshalJSON implements custom unmarshaling for OriginPair
func (p *OriginPair) UnmarshalJSON(data []byte) error {
	type rawPair struct {
		Plain json.RawMessage `json:"plain,omitempty"`
		TLS   json.RawMessage `json:"tls,omitempty"`
	}

	var raw rawPair
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if p.Plain, err = ParseConfigValue(raw.Plain); err != nil {
		return fmt.Errorf("parsing plain origin: %w", err)
	}
	if p.TLS, err = ParseConfigValue(raw.TLS); err != nil {
		return fmt.Errorf("parsing tls origin: %w", err)
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for BackendConfig
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		API             OriginPair `json:"api"`
		WebSocket       OriginPair `json:"websocket,omitempty"`
		Root            OriginPair `json:"root,omitempty"`
		ExpectEncrypted bool       `json:"expectEncrypted"`
		Timeout         string     `json:"timeout,omitempty"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	timeout, err := parseDuration("timeout", raw.Timeout)
	if err != nil {
		return err
	}

	b.API = raw.API
	b.WebSocket = raw.WebSocket
	b.Root = raw.Root
	b.ExpectEncrypted = raw.ExpectEncrypted
	b.Timeout = timeout
	return nil
}

// UnmarshalJSON implements custom unmarshaling for OAuthConfig
func (o *OAuthConfig) UnmarshalJSON(data []byte) error {
	type rawOAuth struct {
		Provider         ProviderKind    `json:"provider"`
		ProviderURL      json.RawMessage `json:"providerURL,omitempty"`
		AuthorizationURL string          `json:"authorizationURL,omitempty"`
		TokenURL         string          `json:"tokenURL,omitempty"`
		UserInfoURL      string          `json:"userInfoURL,omitempty"`
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		Scopes           []string        `json:"scopes,omitempty"`
		RedirectPath     string          `json:"redirectPath,omitempty"`
		StateSecret      json.RawMessage `json:"stateSecret"`
		StateTTL         string          `json:"stateTtl,omitempty"`
	}

	var raw rawOAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Provider = raw.Provider
	o.AuthorizationURL = raw.AuthorizationURL
	o.TokenURL = raw.TokenURL
	o.UserInfoURL = raw.UserInfoURL
	o.Scopes = raw.Scopes
	o.RedirectPath = raw.RedirectPath

	var err error
	if o.ProviderURL, err = ParseConfigValue(raw.ProviderURL); err != nil {
		return fmt.Errorf("parsing providerURL: %w", err)
	}
	if o.ClientID, err = ParseConfigValue(raw.ClientID); err != nil {
		return fmt.Errorf("parsing clientId: %w", err)
	}

	secret, err := ParseConfigValue(raw.ClientSecret)
	if err != nil {
		return fmt.Errorf("parsing clientSecret: %w", err)
	}
	o.ClientSecret = Secret(secret)

	stateSecret, err := ParseConfigValue(raw.StateSecret)
	if err != nil {
		return fmt.Errorf("parsing stateSecret: %w", err)
	}
	o.StateSecret = Secret(stateSecret)

	if o.StateTTL, err = parseDuration("stateTtl", raw.StateTTL); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	type rawSession struct {
		IdleTimeout     string `json:"idleTimeout,omitempty"`
		MaxLifetime     string `json:"maxLifetime,omitempty"`
		CleanupInterval string `json:"cleanupInterval,omitempty"`
	}

	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.IdleTimeout, err = parseDuration("idleTimeout", raw.IdleTimeout); err != nil {
		return err
	}
	if s.MaxLifetime, err = parseDuration("maxLifetime", raw.MaxLifetime); err != nil {
		return err
	}
	if s.CleanupInterval, err = parseDuration("cleanupInterval", raw.CleanupInterval); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		KeyPrefix           string          `json:"keyPrefix,omitempty"`
		RedisURL            json.RawMessage `json:"redisURL,omitempty"`
		PoolSize            int             `json:"poolSize,omitempty"`
		FirestoreProject    json.RawMessage `json:"firestoreProject,omitempty"`
		FirestoreDatabase   string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection string          `json:"firestoreCollection,omitempty"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.KeyPrefix = raw.KeyPrefix
	s.PoolSize = raw.PoolSize
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	redisURL, err := ParseConfigValue(raw.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing redisURL: %w", err)
	}
	s.RedisURL = Secret(redisURL)

	if s.FirestoreProject, err = ParseConfigValue(raw.FirestoreProject); err != nil {
		return fmt.Errorf("parsing firestoreProject: %w", err)
	}
	return nil
}
