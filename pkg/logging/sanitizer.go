// Package logging holds helpers that keep credentials out of log lines:
// database connection strings, media server join tokens, and provider
// API keys all pass near logging call sites.
package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

// maxUtteranceLogLength bounds transcript content in debug logs.
const maxUtteranceLogLength = 120

var (
	// password=xxx, pwd=xxx, pass=xxx in connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// JWTs (three base64url segments), with or without a Bearer prefix.
	// Join tokens and provider access tokens both match.
	jwtPattern = regexp.MustCompile(`(Bearer\s+)?[A-Za-z0-9-_]{8,}\.[A-Za-z0-9-_]{8,}\.[A-Za-z0-9-_]+`)

	// api_key=xxx style credentials
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token)=[A-Za-z0-9-_]{16,}`)

	// user:pass@host in URL-style connection strings
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a connection string
// before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeToken redacts a JWT down to an identifiable stub. Join tokens
// are minted per request; logging the full token would let a log reader
// join the room.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return RedactedText
	}
	return token[:8] + "..." + RedactedText
}

// SanitizeError scrubs credential shapes out of an error message before
// logging. Errors from the media server and the AI providers can echo
// request headers back.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = jwtPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeUtterance truncates transcript content for debug logging.
func SanitizeUtterance(content string) string {
	return TruncateString(content, maxUtteranceLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
