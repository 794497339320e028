package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment variable read by LoadFromEnv
const EnvPrefix = "CHECKIN_FRONT_"

// LoadFromEnv builds the config from the process environment only,
// e.g. CHECKIN_FRONT_SERVER_ADDR or CHECKIN_FRONT_OAUTH_CLIENT_ID.
func LoadFromEnv() (Config, error) {
	return loadEnvironment(nil)
}

// loadEnvironment reads from environ, or from the process environment when nil
func loadEnvironment(environ map[string]string) (Config, error) {
	var config Config
	opts := env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}
	if err := env.ParseWithOptions(&config, opts); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	config.applyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}
