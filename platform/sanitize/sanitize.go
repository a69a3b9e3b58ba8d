// Package sanitize provides text sanitization utilities: stripping HTML from
// user-provided fields and redacting provider credentials from error text
// before it is logged or persisted.
package sanitize

import (
	"regexp"
	"strings"
)

// htmlTagRegex matches HTML tags
var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

type redaction struct {
	pattern *regexp.Regexp
	repl    string
}

// credentialRedactions match provider identifiers and secrets that must never
// reach the event log: Twilio SIDs, tokens passed in URLs or headers, and URL
// userinfo sections.
var credentialRedactions = []redaction{
	{regexp.MustCompile(`\bAC[0-9a-fA-F]{32}\b`), "[redacted]"},
	{regexp.MustCompile(`\bSK[0-9a-fA-F]{32}\b`), "[redacted]"},
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`), "${1}[redacted]"},
	{regexp.MustCompile(`(?i)(basic\s+)[A-Za-z0-9+/=]+`), "${1}[redacted]"},
	{regexp.MustCompile(`(?i)(api[_-]?key=)[^&\s]+`), "${1}[redacted]"},
	{regexp.MustCompile(`(?i)(token=)[^&\s]+`), "${1}[redacted]"},
	{regexp.MustCompile(`://[^/\s@]+@`), "://[redacted]@"},
}

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
// This is a defense-in-depth measure; frontend should also escape output.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text sanitizes a string for safe text storage by stripping HTML
// and normalizing whitespace. Use for user-provided text fields like
// lead names and free-form answers.
func Text(s string) string {
	return StripHTML(s)
}

// ProviderError redacts credentials and secret-looking material from a
// provider error message so it can be logged and stored on the message row.
// Additional known secrets (API keys from config) can be passed explicitly.
func ProviderError(message string, secrets ...string) string {
	result := message
	for _, secret := range secrets {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		result = strings.ReplaceAll(result, secret, "[redacted]")
	}
	for _, r := range credentialRedactions {
		result = r.pattern.ReplaceAllString(result, r.repl)
	}
	return strings.TrimSpace(result)
}
