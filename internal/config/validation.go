package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if !strings.HasPrefix(version, Version) {
		result.addError("version", "unsupported version '%s' - use '%s'", version, Version)
	}

	validateServerStructure(rawConfig, result)
	validateBackendStructure(rawConfig, result)
	validateOAuthStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result, nil
}

func section(rawConfig map[string]any, name string, result *ValidationResult) (map[string]any, bool) {
	s, ok := rawConfig[name].(map[string]any)
	if !ok {
		result.addError(name, "%s field is required and must be an object", name)
	}
	return s, ok
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := section(rawConfig, "server", result)
	if !ok {
		return
	}
	if _, ok := server["addr"]; !ok {
		result.addError("server.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://checkin.example.com\"")
	}
	noSSL, _ := server["noSSL"].(bool)
	if backend, ok := rawConfig["backend"].(map[string]any); ok {
		if expect, _ := backend["expectEncrypted"].(bool); expect && noSSL {
			result.addError("backend.expectEncrypted", "contradicts server.noSSL: an encrypted backend cannot be expected on a plain HTTP deployment")
		}
	}
	if base, ok := server["baseURL"].(string); ok && !noSSL && strings.HasPrefix(base, "http://") {
		result.addError("server.baseURL", "plain http baseURL requires server.noSSL")
	}
}

func validateBackendStructure(rawConfig map[string]any, result *ValidationResult) {
	backend, ok := section(rawConfig, "backend", result)
	if !ok {
		return
	}
	if _, ok := backend["api"].(map[string]any); !ok {
		result.addError("backend.api", "api origin pair is required. Example: {\"plain\": \"http://localhost:8000\", \"tls\": \"https://shop.example.com\"}")
	}
	validateDurationField(backend, "timeout", "backend.timeout", result)
}

func validateOAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	oauth, ok := section(rawConfig, "oauth", result)
	if !ok {
		return
	}
	if provider, ok := oauth["provider"].(string); ok {
		if provider != string(ProviderWordPress) && provider != string(ProviderOAuth2) {
			result.addError("oauth.provider", "unknown provider '%s' - use 'wordpress' or 'oauth2'", provider)
		}
	}
	if _, ok := oauth["clientId"]; !ok {
		result.addError("oauth.clientId", "clientId is required")
	}
	_, hasProvider := oauth["providerURL"]
	_, hasAuthorize := oauth["authorizationURL"]
	if !hasProvider && !hasAuthorize {
		result.addError("oauth.providerURL", "providerURL is required unless authorizationURL and tokenURL are set")
	}
	for _, name := range []string{"clientSecret", "stateSecret"} {
		value, exists := oauth[name]
		if !exists {
			result.addError("oauth."+name, "%s is required. Hint: {\"$env\": \"CHECKIN_%s\"}", name, strings.ToUpper(name))
			continue
		}
		if verr := validateEnvVarReference(value, name, "oauth."+name); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}
	validateDurationField(oauth, "stateTtl", "oauth.stateTtl", result)
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := rawConfig["session"].(map[string]any)
	if !ok {
		return
	}
	idle := validateDurationField(session, "idleTimeout", "session.idleTimeout", result)
	cleanup := validateDurationField(session, "cleanupInterval", "session.cleanupInterval", result)
	if idle > 0 && cleanup > idle {
		result.addWarning("session", "cleanupInterval (%s) is longer than idleTimeout (%s). Expired sessions will linger until cleanup runs.", cleanup, idle)
	}
	validateDurationField(session, "maxLifetime", "session.maxLifetime", result)
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}
	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case StorageKindRedis, "":
		if _, ok := storage["redisURL"]; !ok {
			result.addError("storage.redisURL", "redisURL is required when using redis storage")
		}
	case StorageKindFirestore:
		if _, ok := storage["firestoreProject"]; !ok {
			result.addError("storage.firestoreProject", "firestoreProject is required when using firestore storage")
		}
	case StorageKindMemory:
		result.addWarning("storage.kind", "memory storage is process-local; sessions are lost on restart")
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use 'redis', 'memory' or 'firestore'", kind)
	}
}

// validateDurationField returns the parsed duration, or zero when absent or invalid
func validateDurationField(m map[string]any, key, path string, result *ValidationResult) time.Duration {
	raw, ok := m[key]
	if !ok {
		return 0
	}
	s, ok := raw.(string)
	if !ok {
		result.addError(path, "must be a duration string like \"30s\" or \"10m\"")
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return 0
	}
	return d
}

func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference for security. Hint: {\"$env\": \"YOUR_ENV_VAR\"}", fieldName),
		}
	case map[string]any:
		if _, ok := v["$env"]; !ok {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"VAR_NAME\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{Path: path, Message: fmt.Sprintf("%s must be an environment variable reference", fieldName)}
	}
}

func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	bashStyleRegex := regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
