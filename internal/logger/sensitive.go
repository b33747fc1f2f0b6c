package logger

import (
	"regexp"
	"strings"
)

// SensitiveDataPatterns contains regex patterns for sensitive data that should be redacted in logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),

	// API keys, tokens and secrets in key=value form
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,&\s]{3,})`),

	// Query parameters such as ?k=... used by the record restart endpoint
	regexp.MustCompile(`(?i)([?&](k|key|apikey|api_key|token)=)([^&\s]+)`),
}

// urlCredentialsPattern matches credentials in service URLs such as telegram://token@telegram
var urlCredentialsPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+.\-]*://)[^/@\s]+@`)

// SensitiveKeywords are keywords that indicate fields may contain sensitive data
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "auth", "api_key",
	"apikey", "authorization", "cookie", "session", "dsn",
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	input = urlCredentialsPattern.ReplaceAllString(input, "${1}[REDACTED]@")
	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}

	return input
}

// IsSensitiveKey reports whether a field key suggests its value must not be logged
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range SensitiveKeywords {
		if strings.Contains(keyLower, sensitiveKey) {
			return true
		}
	}
	return false
}
