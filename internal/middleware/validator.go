package middleware

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var (
	tenantPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	objectKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9!_.*'()/-]{1,1024}$`)
)

// allowedDocumentTypes are the upload types the extractor understands.
var allowedDocumentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

// MaxValidationRulesLen bounds the free-text rules sent to the model.
const MaxValidationRulesLen = 2000

// ValidateObjectKey checks a storage key supplied by a caller.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("object_key cannot be empty")
	}
	if !objectKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid object_key format")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") || path.Clean(key) != key {
		return fmt.Errorf("path traversal detected in object_key")
	}
	return nil
}

// ValidateDocumentType accepts a Content-Type header value for uploads.
func ValidateDocumentType(contentType string) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid content type %q", contentType)
	}
	if !allowedDocumentTypes[mt] {
		return "", fmt.Errorf("unsupported document type %s (allowed: png, jpeg, webp, gif, pdf)", mt)
	}
	return mt, nil
}

// ValidateValidationRules checks the rules text of a reflection request.
func ValidateValidationRules(rules string) error {
	if strings.TrimSpace(rules) == "" {
		return fmt.Errorf("validation_rules cannot be empty")
	}
	if len(rules) > MaxValidationRulesLen {
		return fmt.Errorf("validation_rules exceeds %d characters", MaxValidationRulesLen)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}
