package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/checkin-front/internal/log"
)

// Version is the config file format accepted by Load
const Version = "v0.0.1-checkin"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, &ConfigError{Field: "version", Message: "config version is required"}
	}
	if !strings.HasPrefix(version, Version) {
		return Config{}, configErrorf("version", "unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, err
	}

	// The custom UnmarshalJSON methods resolve env refs immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	config.applyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, err
	}

	return config, nil
}

// validateRawConfig enforces that secrets are never written inline in the file
func validateRawConfig(rawConfig map[string]any) error {
	oauth, ok := rawConfig["oauth"].(map[string]any)
	if !ok {
		return nil
	}
	for _, name := range []string{"clientSecret", "stateSecret"} {
		value, exists := oauth[name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return configErrorf("oauth."+name, "must use environment variable reference for security")
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return configErrorf("oauth."+name, `must use {"$env": "VAR_NAME"} format`)
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration. The returned error
// is always a *ConfigError.
func ValidateConfig(config *Config) error {
	s := config.Server
	if s.Addr == "" {
		return &ConfigError{Field: "server.addr", Message: "addr is required"}
	}
	if s.BaseURL == "" {
		return &ConfigError{Field: "server.baseURL", Message: "baseURL is required"}
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil || base.Host == "" {
		return configErrorf("server.baseURL", "invalid URL %q", s.BaseURL)
	}

	if s.NoSSL && config.Backend.ExpectEncrypted {
		return &ConfigError{
			Field:   "backend.expectEncrypted",
			Message: "an encrypted backend cannot be expected when server.noSSL is set",
		}
	}
	if !s.NoSSL && base.Scheme != "https" {
		return configErrorf("server.baseURL", "must use https unless server.noSSL is set (got %s)", base.Scheme)
	}

	if err := validateBackend(config); err != nil {
		return err
	}
	if err := validateOAuth(&config.OAuth); err != nil {
		return err
	}
	if err := validateSession(&config.Session); err != nil {
		return err
	}
	return validateStorage(&config.Storage)
}

func validateBackend(config *Config) error {
	mode := "tls"
	if config.Server.NoSSL {
		mode = "plain"
	}

	origins := []struct {
		field string
		pair  OriginPair
		need  bool
	}{
		{"backend.api", config.Backend.API, true},
		{"backend.websocket", config.Backend.WebSocket, false},
		{"backend.root", config.Backend.Root, false},
	}
	for _, o := range origins {
		if !o.need && o.pair.IsZero() {
			continue
		}
		origin := config.Origin(o.pair)
		field := o.field + "." + mode
		if origin == "" {
			return configErrorf(field, "origin is required for this TLS mode")
		}
		if !isAbsoluteURL(origin) {
			return configErrorf(field, "invalid origin %q", origin)
		}
		if config.Backend.ExpectEncrypted && !strings.HasPrefix(origin, "https://") {
			return configErrorf(field, "origin %q is not encrypted but backend.expectEncrypted is set", origin)
		}
	}

	if config.Backend.Timeout < 0 {
		return &ConfigError{Field: "backend.timeout", Message: "cannot be negative"}
	}
	return nil
}

func validateOAuth(oauth *OAuthConfig) error {
	switch oauth.Provider {
	case ProviderWordPress, ProviderOAuth2:
	default:
		return configErrorf("oauth.provider", "unknown provider %q", oauth.Provider)
	}
	if oauth.ClientID == "" {
		return &ConfigError{Field: "oauth.clientId", Message: "clientId is required"}
	}
	if oauth.ClientSecret == "" {
		return &ConfigError{Field: "oauth.clientSecret", Message: "clientSecret is required"}
	}
	if oauth.AuthorizationURL == "" || oauth.TokenURL == "" {
		return &ConfigError{Field: "oauth.providerURL", Message: "providerURL or explicit authorizationURL and tokenURL are required"}
	}
	if oauth.Provider == ProviderWordPress && oauth.UserInfoURL == "" {
		return &ConfigError{Field: "oauth.userInfoURL", Message: "userInfoURL is required for the wordpress provider"}
	}
	if !strings.HasPrefix(oauth.RedirectPath, "/") {
		return configErrorf("oauth.redirectPath", "must start with / (got %q)", oauth.RedirectPath)
	}
	if len(oauth.StateSecret) < 32 {
		return configErrorf("oauth.stateSecret", "must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(oauth.StateSecret))
	}
	if oauth.StateTTL < 0 {
		return &ConfigError{Field: "oauth.stateTtl", Message: "cannot be negative"}
	}
	return nil
}

func validateSession(session *SessionConfig) error {
	if session.IdleTimeout < 0 {
		return &ConfigError{Field: "session.idleTimeout", Message: "cannot be negative"}
	}
	if session.MaxLifetime < session.IdleTimeout {
		return &ConfigError{Field: "session.maxLifetime", Message: "cannot be shorter than session.idleTimeout"}
	}
	if session.CleanupInterval < 0 {
		return &ConfigError{Field: "session.cleanupInterval", Message: "cannot be negative"}
	}
	if session.CleanupInterval > session.IdleTimeout {
		log.LogWarn("Session cleanup interval is greater than the idle timeout")
	}
	return nil
}

func validateStorage(storage *StorageConfig) error {
	switch storage.Kind {
	case StorageKindRedis:
		if storage.RedisURL == "" {
			return &ConfigError{Field: "storage.redisURL", Message: "redisURL is required when using redis storage"}
		}
	case StorageKindFirestore:
		if storage.FirestoreProject == "" {
			return &ConfigError{Field: "storage.firestoreProject", Message: "firestoreProject is required when using firestore storage"}
		}
	case StorageKindMemory:
		log.LogWarn("Memory session storage does not survive restarts and is not shared across instances")
	default:
		return configErrorf("storage.kind", "unknown storage kind %q", storage.Kind)
	}
	if storage.PoolSize < 0 {
		return &ConfigError{Field: "storage.poolSize", Message: "cannot be negative"}
	}
	return nil
}
