package logging

import (
	"regexp"
	"strings"
)

// MaskValue replaces sensitive values in log output.
const MaskValue = "***REDACTED***"

var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"password":            true,
	"secret":              true,
	"token":               true,
	"access_token":        true,
	"refresh_token":       true,
	"session_token":       true,
	"api_key":             true,
	"dsn":                 true,
}

var sensitiveKeywords = []string{"password", "secret", "token", "credential", "auth"}

var sensitivePatterns = []*regexp.Regexp{
	// JWT
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	// Bearer / Basic credentials
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	// AWS access key ids
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
}

// Redact returns f with its value masked when the key or a string value
// looks like a credential. Errors are flattened to their message.
func Redact(f Field) Field {
	if err, ok := f.Value.(error); ok && err != nil {
		f.Value = err.Error()
	}
	key := strings.ToLower(f.Key)
	if sensitiveKeys[key] {
		return Field{Key: f.Key, Value: MaskValue}
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return Field{Key: f.Key, Value: MaskValue}
		}
	}
	if s, ok := f.Value.(string); ok {
		for _, p := range sensitivePatterns {
			if p.MatchString(s) {
				return Field{Key: f.Key, Value: MaskValue}
			}
		}
	}
	return f
}
