package privacy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lumora/collector/internal/domain/model"
)

// Payload keys whose values carry email addresses. Their contents are
// replaced by a count/domain summary, never stored verbatim.
var emailKeys = map[string]bool{
	"recipients": true,
	"recipient":  true,
	"to":         true,
	"cc":         true,
	"bcc":        true,
	"email":      true,
	"emails":     true,
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Recorder is the slice of the metrics manager the guard reports into.
type Recorder interface {
	RecordPrivacyRedacted()
	RecordPrivacyDenied()
	RecordDrop(reason string)
}

// Guard applies the loaded rules to normalized envelopes.
type Guard struct {
	rules   *Rules
	salt    string
	metrics Recorder
}

// NewGuard creates a Guard. metrics may be nil in tests.
func NewGuard(rules *Rules, hashSalt string, metrics Recorder) *Guard {
	return &Guard{rules: rules, salt: hashSalt, metrics: metrics}
}

// Apply scrubs the envelope in place. The second return value is false
// when the event must be dropped entirely (denylisted or not allowlisted).
//
// After Apply returns true, no payload field named in the sensitive-key
// policy contains an un-redacted raw value.
func (g *Guard) Apply(envelope model.EventEnvelope) (model.EventEnvelope, bool) {
	appKey := strings.ToLower(envelope.App)
	if len(g.rules.AllowlistApps) > 0 && !g.rules.AllowlistApps[appKey] {
		if g.metrics != nil {
			g.metrics.RecordDrop("allowlist")
		}
		return model.EventEnvelope{}, false
	}
	if g.rules.DenylistApps[appKey] {
		if g.metrics != nil {
			g.metrics.RecordPrivacyDenied()
		}
		if g.rules.DenylistAction != DenyActionStrip {
			// Only the drop action loses the event; strip keeps it.
			if g.metrics != nil {
				g.metrics.RecordDrop("denylist")
			}
			return model.EventEnvelope{}, false
		}
		envelope.Payload = map[string]any{}
		envelope.Privacy.Redaction = dedupe(append(envelope.Privacy.Redaction, "denylist_stripped"))
		return envelope, true
	}

	redactions := append([]string(nil), envelope.Privacy.Redaction...)

	if envelope.WindowID != "" {
		envelope.WindowID = HashValue(envelope.WindowID, g.salt)
		redactions = append(redactions, "window_id_hashed")
	}
	if envelope.Resource.ID != "" && envelope.Resource.ID != "unknown" {
		envelope.Resource.ID = HashValue(envelope.Resource.ID, g.salt)
		redactions = append(redactions, "resource_id_hashed")
	}

	sanitized := make(map[string]any, len(envelope.Payload))
	for key, value := range envelope.Payload {
		keyNorm := strings.ToLower(key)
		switch {
		case g.rules.DropPayloadKeys[keyNorm]:
			redactions = append(redactions, "drop:"+keyNorm)
		case emailKeys[keyNorm]:
			sanitized[key] = summarizeRecipients(value)
			redactions = append(redactions, "recipients_summarized:"+keyNorm)
		default:
			sanitized[key] = g.sanitizeValue(keyNorm, value, &redactions)
		}
	}

	envelope.Payload = sanitized
	envelope.Privacy.Redaction = dedupe(redactions)
	if g.metrics != nil && len(envelope.Privacy.Redaction) > 0 {
		g.metrics.RecordPrivacyRedacted()
	}
	return envelope, true
}

func (g *Guard) sanitizeValue(keyNorm string, value any, redactions *[]string) any {
	if g.rules.HashKeys[keyNorm] {
		*redactions = append(*redactions, "hash:"+keyNorm)
		return HashValue(fmt.Sprint(value), g.salt)
	}

	s, ok := value.(string)
	if !ok {
		return value
	}

	if keyNorm == "url" && !g.rules.AllowFullURL {
		s = SanitizeURL(s, g.rules.KeepDomainOnly)
		*redactions = append(*redactions, "url_sanitized")
	}
	if g.rules.MaskKeys[keyNorm] {
		s = MaskPatterns(s, g.rules.RedactionPatterns)
		*redactions = append(*redactions, "mask:"+keyNorm)
	}
	if limit, ok := g.rules.LengthLimits[keyNorm]; ok {
		s = Truncate(s, limit)
	}
	return s
}

// summarizeRecipients collapses an email-bearing value into a count plus
// per-domain tally.
func summarizeRecipients(value any) map[string]any {
	emails := collectEmails(value)
	if len(emails) > 0 {
		domainStats := make(map[string]int)
		for _, email := range emails {
			if _, domain, found := strings.Cut(strings.ToLower(email), "@"); found {
				domainStats[strings.TrimSpace(domain)]++
			}
		}
		summary := map[string]any{"count": len(emails)}
		if len(domainStats) > 0 {
			summary["domain_stats"] = domainStats
		}
		return summary
	}
	return map[string]any{"count": recipientCount(value)}
}

func collectEmails(value any) []string {
	switch v := value.(type) {
	case string:
		return emailPattern.FindAllString(v, -1)
	case []any:
		var emails []string
		for _, item := range v {
			emails = append(emails, collectEmails(item)...)
		}
		return emails
	case map[string]any:
		var emails []string
		for _, item := range v {
			emails = append(emails, collectEmails(item)...)
		}
		return emails
	}
	return nil
}

func recipientCount(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if strings.TrimSpace(v) != "" {
			return 1
		}
	case []any:
		return len(v)
	case map[string]any:
		if count, ok := v["count"].(float64); ok {
			return int(count)
		}
	}
	return 0
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	output := values[:0]
	for _, item := range values {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		output = append(output, item)
	}
	return output
}
