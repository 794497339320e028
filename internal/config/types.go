package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the SessionStore implementation
type StorageKind string

const (
	StorageKindRedis     StorageKind = "redis"
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// ProviderKind selects the OAuth provider implementation
type ProviderKind string

const (
	ProviderWordPress ProviderKind = "wordpress"
	ProviderOAuth2    ProviderKind = "oauth2"
)

const (
	DefaultRedirectPath    = "/oauth_redirect/"
	DefaultStateTTL        = 10 * time.Minute
	DefaultIdleTimeout     = 24 * time.Hour
	DefaultMaxLifetime     = 7 * 24 * time.Hour
	DefaultCleanupInterval = 5 * time.Minute
	DefaultBackendTimeout  = 30 * time.Second
	DefaultKeyPrefix       = "checkin:"
)

// ServerConfig is the listening side of the front server
type ServerConfig struct {
	Addr           string   `json:"addr" env:"ADDR"`
	BaseURL        string   `json:"baseURL" env:"BASE_URL"`
	NoSSL          bool     `json:"noSSL" env:"NO_SSL"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `json:"logLevel,omitempty" env:"LOG_LEVEL"`
	LogFormat      string   `json:"logFormat,omitempty" env:"LOG_FORMAT"`
}

// OriginPair holds the same upstream reachable over plain HTTP and over TLS.
// Which one is used depends on ServerConfig.NoSSL.
type OriginPair struct {
	Plain string `json:"plain,omitempty" env:"PLAIN"`
	TLS   string `json:"tls,omitempty" env:"TLS"`
}

// IsZero reports whether neither origin is set
func (p OriginPair) IsZero() bool {
	return p.Plain == "" && p.TLS == ""
}

// BackendConfig describes the WordPress/WooCommerce upstreams
type BackendConfig struct {
	API             OriginPair    `json:"api" envPrefix:"API_"`
	WebSocket       OriginPair    `json:"websocket,omitempty" envPrefix:"WS_"`
	Root            OriginPair    `json:"root,omitempty" envPrefix:"ROOT_"`
	ExpectEncrypted bool          `json:"expectEncrypted" env:"EXPECT_ENCRYPTED"`
	Timeout         time.Duration `json:"timeout,omitempty" env:"TIMEOUT"`
}

// OAuthConfig configures the authorization code flow against the provider
type OAuthConfig struct {
	Provider         ProviderKind  `json:"provider" env:"PROVIDER"`
	ProviderURL      string        `json:"providerURL,omitempty" env:"PROVIDER_URL"`
	AuthorizationURL string        `json:"authorizationURL,omitempty" env:"AUTHORIZATION_URL"`
	TokenURL         string        `json:"tokenURL,omitempty" env:"TOKEN_URL"`
	UserInfoURL      string        `json:"userInfoURL,omitempty" env:"USERINFO_URL"`
	ClientID         string        `json:"clientId" env:"CLIENT_ID"`
	ClientSecret     Secret        `json:"clientSecret" env:"CLIENT_SECRET"`
	Scopes           []string      `json:"scopes,omitempty" env:"SCOPES" envSeparator:","`
	RedirectPath     string        `json:"redirectPath,omitempty" env:"REDIRECT_PATH"`
	StateSecret      Secret        `json:"stateSecret" env:"STATE_SECRET"`
	StateTTL         time.Duration `json:"stateTtl,omitempty" env:"STATE_TTL"`
}

// SessionConfig represents session lifetime configuration
type SessionConfig struct {
	IdleTimeout     time.Duration `json:"idleTimeout,omitempty" env:"IDLE_TIMEOUT"`
	MaxLifetime     time.Duration `json:"maxLifetime,omitempty" env:"MAX_LIFETIME"`
	CleanupInterval time.Duration `json:"cleanupInterval,omitempty" env:"CLEANUP_INTERVAL"`
}

// StorageConfig selects and configures the session store
type StorageConfig struct {
	Kind                StorageKind `json:"kind" env:"KIND"`
	KeyPrefix           string      `json:"keyPrefix,omitempty" env:"KEY_PREFIX"`
	RedisURL            Secret      `json:"redisURL,omitempty" env:"REDIS_URL"`
	PoolSize            int         `json:"poolSize,omitempty" env:"REDIS_POOL_SIZE"`
	FirestoreProject    string      `json:"firestoreProject,omitempty" env:"FIRESTORE_PROJECT"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty" env:"FIRESTORE_DATABASE"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty" env:"FIRESTORE_COLLECTION"`
}

// Config represents the config structure with resolved values.
// It is loaded once at startup and passed by value to constructors.
type Config struct {
	Server  ServerConfig  `json:"server" envPrefix:"SERVER_"`
	Backend BackendConfig `json:"backend" envPrefix:"BACKEND_"`
	OAuth   OAuthConfig   `json:"oauth" envPrefix:"OAUTH_"`
	Session SessionConfig `json:"session" envPrefix:"SESSION_"`
	Storage StorageConfig `json:"storage" envPrefix:"STORAGE_"`
}

// Origin picks the member of the pair matching the deployment's TLS mode
func (c *Config) Origin(p OriginPair) string {
	if c.Server.NoSSL {
		return p.Plain
	}
	return p.TLS
}

// APIOrigin returns the REST API upstream
func (c *Config) APIOrigin() string {
	return c.Origin(c.Backend.API)
}

// WebSocketOrigin returns the WebSocket upstream, falling back to the API origin
func (c *Config) WebSocketOrigin() string {
	if c.Backend.WebSocket.IsZero() {
		return c.APIOrigin()
	}
	return c.Origin(c.Backend.WebSocket)
}

// RootOrigin returns the catch-all upstream, falling back to the API origin
func (c *Config) RootOrigin() string {
	if c.Backend.Root.IsZero() {
		return c.APIOrigin()
	}
	return c.Origin(c.Backend.Root)
}

// RedirectURI is the absolute callback URL registered with the provider
func (c *Config) RedirectURI() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + c.OAuth.RedirectPath
}

// CookieSecure reports whether cookies carry the Secure attribute
func (c *Config) CookieSecure() bool {
	return !c.Server.NoSSL
}

// applyDefaults fills zero values. It is safe to call more than once.
func (c *Config) applyDefaults() {
	if c.OAuth.Provider == "" {
		c.OAuth.Provider = ProviderWordPress
	}
	if c.OAuth.RedirectPath == "" {
		c.OAuth.RedirectPath = DefaultRedirectPath
	}
	if c.OAuth.StateTTL == 0 {
		c.OAuth.StateTTL = DefaultStateTTL
	}
	if c.OAuth.ProviderURL != "" {
		base := strings.TrimRight(c.OAuth.ProviderURL, "/")
		if c.OAuth.AuthorizationURL == "" {
			c.OAuth.AuthorizationURL = base + "/oauth/authorize"
		}
		if c.OAuth.TokenURL == "" {
			c.OAuth.TokenURL = base + "/oauth/token"
		}
		if c.OAuth.UserInfoURL == "" {
			c.OAuth.UserInfoURL = base + "/oauth/me"
		}
	}
	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = DefaultIdleTimeout
	}
	if c.Session.MaxLifetime == 0 {
		c.Session.MaxLifetime = DefaultMaxLifetime
	}
	if c.Session.CleanupInterval == 0 {
		c.Session.CleanupInterval = DefaultCleanupInterval
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageKindRedis
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = DefaultKeyPrefix
	}
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR_NAME"} reference resolved immediately.
//
// The explicit JSON syntax is used instead of $VAR substitution so that
// shell scripts touching the config file cannot expand it by accident.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
