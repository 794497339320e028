package proxy

import (
	"path"
	"strings"
)

// MatchPath reports whether requestPath matches a route pattern.
// Supports glob patterns with * wildcards:
//   - /ws matches only /ws
//   - /api/* matches /api/orders but not /api/orders/7
//   - /api/** matches /api and anything below it
//   - /** matches everything
func MatchPath(pattern, requestPath string) bool {
	if pattern == "" {
		return false
	}
	return matchGlobPattern(normalizePath(pattern), normalizePath(requestPath))
}

// normalizePath ensures path has leading slash and no trailing slash
func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	// Remove trailing slash (except for root)
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}

	return path.Clean(p)
}

// matchGlobPattern matches a normalized path against a normalized pattern
func matchGlobPattern(pattern, requestPath string) bool {
	if pattern == requestPath {
		return true
	}

	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		if prefix == "" {
			return true
		}
		prefix = normalizePath(prefix)
		return requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/")
	}

	if !strings.Contains(pattern, "*") {
		return false
	}

	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(requestPath, "/")
	if len(patternParts) != len(pathParts) {
		return false
	}

	for i, patternPart := range patternParts {
		if patternPart == "*" {
			// * matches any single non-empty segment
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if patternPart != pathParts[i] {
			return false
		}
	}
	return true
}
