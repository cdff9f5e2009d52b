package errors

import (
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for injection into graph queries or
// SMT symbols.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (..)
//   - No SMT quoting characters (| and \) or the # variable separator
//   - Maximum length of 256 characters
//
// Ecosystem-specific validation is done by the registry clients.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	for _, pattern := range []string{"..", "|", "\\", "#"} {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateRepository validates a repository owner/name pair.
// Both parts must be non-empty simple path segments.
func ValidateRepository(owner, name string) error {
	for _, part := range []string{owner, name} {
		if part == "" {
			return New(ErrCodeInvalidInput, "repository owner and name are required")
		}
		if strings.ContainsAny(part, "/\\") || strings.Contains(part, "..") {
			return New(ErrCodeInvalidInput, "invalid repository segment: %q", part)
		}
		for _, r := range part {
			if unicode.IsControl(r) || unicode.IsSpace(r) {
				return New(ErrCodeInvalidInput, "repository segment contains invalid characters")
			}
		}
	}
	return nil
}

// ValidateDepth validates a traversal depth.
// Zero is allowed and means "root node only".
func ValidateDepth(depth int) error {
	const maxDepth = 64
	if depth < 0 || depth > maxDepth {
		return New(ErrCodeInvalidInput, "max_depth must be between 0 and %d", maxDepth)
	}
	return nil
}

// ValidateLimit validates the number of configurations requested from an
// enumerating SMT operation.
func ValidateLimit(limit int) error {
	const maxLimit = 1000
	if limit < 1 || limit > maxLimit {
		return New(ErrCodeInvalidInput, "limit must be between 1 and %d", maxLimit)
	}
	return nil
}
