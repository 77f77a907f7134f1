package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
)

// RedactionToken replaces matched sensitive substrings.
const RedactionToken = "[REDACTED]"

// HashValue computes the stable HMAC-SHA256 hex digest used for resource
// and window identifiers.
func HashValue(value, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// MaskPatterns replaces every pattern match in value with the redaction
// token.
func MaskPatterns(value string, patterns []*regexp.Regexp) string {
	masked := value
	for _, pattern := range patterns {
		masked = pattern.ReplaceAllString(masked, RedactionToken)
	}
	return masked
}

// Truncate caps value at maxLen runes; non-positive maxLen is a no-op.
func Truncate(value string, maxLen int) string {
	if maxLen <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}
	return string(runes[:maxLen])
}

// SanitizeURL reduces a URL to its host when keepDomainOnly is set.
func SanitizeURL(value string, keepDomainOnly bool) string {
	if !keepDomainOnly {
		return value
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" {
		return value
	}
	return parsed.Host
}
