package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/checkin-front/internal"
	"github.com/dgellow/checkin-front/internal/config"
	"github.com/dgellow/checkin-front/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.Version,
		"server": map[string]any{
			"addr":           ":8080",
			"baseURL":        "https://checkin.yourshop.com",
			"allowedOrigins": []string{"https://checkin.yourshop.com"},
		},
		"backend": map[string]any{
			"api": map[string]string{
				"plain": "http://localhost:8000",
				"tls":   "https://yourshop.com",
			},
			"websocket": map[string]string{
				"plain": "http://localhost:9000",
				"tls":   "https://ws.yourshop.com",
			},
			"expectEncrypted": true,
			"timeout":         "30s",
		},
		"oauth": map[string]any{
			"provider":     "wordpress",
			"providerURL":  "https://yourshop.com",
			"clientId":     map[string]string{"$env": "WP_OAUTH_CLIENT_ID"},
			"clientSecret": map[string]string{"$env": "WP_OAUTH_CLIENT_SECRET"},
			"stateSecret":  map[string]string{"$env": "CHECKIN_STATE_SECRET"},
			"redirectPath": config.DefaultRedirectPath,
		},
		"session": map[string]any{
			"idleTimeout": "24h",
			"maxLifetime": "168h",
		},
		"storage": map[string]any{
			"kind":      "redis",
			"redisURL":  map[string]string{"$env": "REDIS_URL"},
			"keyPrefix": config.DefaultKeyPrefix,
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

// loadConfig reads the config file, or the CHECKIN_FRONT_* environment
// when no file is given
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func main() {
	conf := flag.String("config", "", "path to config file (default: read CHECKIN_FRONT_* environment variables)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*conf)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			log.LogErrorWithFields("main", "Invalid configuration", map[string]any{
				"field": cfgErr.Field,
				"error": cfgErr.Message,
			})
		} else {
			log.LogError("Failed to load config: %v", err)
		}
		os.Exit(1)
	}

	if err := log.Configure(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		log.LogError("Invalid logging configuration: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting checkin-front", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	app, err := internal.NewCheckinFront(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Server stopped: %v", err)
		os.Exit(1)
	}
}
