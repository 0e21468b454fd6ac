package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// Input validation and sanitization utilities.

// ValidateToolType accepts display names and legacy identifiers.
func ValidateToolType(s string) error {
	if _, err := tools.Parse(s); err != nil {
		return fmt.Errorf("invalid tool type: %s", s)
	}
	return nil
}

var ciIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateCIID validates configuration item identifiers.
func ValidateCIID(ciID string) error {
	if ciID == "" {
		return fmt.Errorf("ciId cannot be empty")
	}
	if !ciIDPattern.MatchString(ciID) {
		return fmt.Errorf("invalid ciId format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

var questionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// ValidateQuestionID validates question identifiers like "q-1" or "2.04".
func ValidateQuestionID(id string) error {
	if id == "" {
		return fmt.Errorf("question id cannot be empty")
	}
	if !questionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid question id format")
	}
	return nil
}

const maxQuestionLen = 4096

// ValidateQuestionText rejects empty or oversized question text.
func ValidateQuestionText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("question text cannot be empty")
	}
	if len(trimmed) > maxQuestionLen {
		return fmt.Errorf("question text exceeds %d characters", maxQuestionLen)
	}
	return nil
}

// ValidateURL checks connector endpoint URLs.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL host cannot be empty")
	}
	return nil
}

// SanitizeString removes null bytes and control characters.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit clamps pagination limits.
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
