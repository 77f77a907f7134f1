// Package privacy scrubs normalized envelopes before they reach the
// store: app allow/deny policy, payload masking, and identifier hashing.
package privacy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Denylist actions.
const (
	DenyActionDrop  = "drop"
	DenyActionStrip = "strip"
)

// Default redaction patterns applied to masked free-text fields when the
// rules file does not supply its own.
var defaultPatternSources = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, // email
	`\+?\d[\d\s().-]{7,}\d`,                          // phone
	`\b\d{12,}\b`,                                    // long digit runs
	`([A-Za-z]:\\|/Users/|/home/)[^\s"']*`,           // filesystem paths
}

// Rules is the static, loaded redaction policy table.
type Rules struct {
	MaskKeys          map[string]bool
	HashKeys          map[string]bool
	DropPayloadKeys   map[string]bool
	LengthLimits      map[string]int
	AllowlistApps     map[string]bool
	DenylistApps      map[string]bool
	DenylistAction    string
	AllowFullURL      bool
	KeepDomainOnly    bool
	RedactionPatterns []*regexp.Regexp
}

// SensitiveKeys returns the payload keys the policy treats as sensitive,
// i.e. everything masked, hashed, or dropped.
func (r *Rules) SensitiveKeys() []string {
	var keys []string
	for k := range r.MaskKeys {
		keys = append(keys, k)
	}
	for k := range r.HashKeys {
		keys = append(keys, k)
	}
	for k := range r.DropPayloadKeys {
		keys = append(keys, k)
	}
	return keys
}

// rulesFile mirrors the YAML rules document.
type rulesFile struct {
	MaskKeys          []string       `koanf:"mask_keys"`
	HashKeys          []string       `koanf:"hash_keys"`
	DropPayloadKeys   []string       `koanf:"drop_payload_keys"`
	LengthLimits      map[string]int `koanf:"length_limits"`
	AllowlistApps     []string       `koanf:"allowlist_apps"`
	DenylistApps      []string       `koanf:"denylist_apps"`
	DenylistAction    string         `koanf:"denylist_action"`
	URLPolicy         urlPolicyFile  `koanf:"url_policy"`
	RedactionPatterns []string       `koanf:"redaction_patterns"`
}

type urlPolicyFile struct {
	AllowFullURL   bool `koanf:"allow_full_url"`
	KeepDomainOnly bool `koanf:"keep_domain_only"`
}

// LoadRules reads the privacy rules YAML file. A missing pattern list
// falls back to the built-in email/phone/long-digit/path patterns.
func LoadRules(path string) (*Rules, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load privacy rules: %w", err)
	}

	var raw rulesFile
	raw.URLPolicy.KeepDomainOnly = true
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("parse privacy rules: %w", err)
	}
	return compileRules(&raw)
}

// DefaultRules returns a policy with no app lists and the built-in
// patterns, masking window titles.
func DefaultRules() *Rules {
	rules, _ := compileRules(&rulesFile{
		MaskKeys:     []string{"window_title", "subject", "file_name"},
		LengthLimits: map[string]int{"window_title": 120, "subject": 80},
		URLPolicy:    urlPolicyFile{KeepDomainOnly: true},
	})
	return rules
}

func compileRules(raw *rulesFile) (*Rules, error) {
	action := strings.ToLower(strings.TrimSpace(raw.DenylistAction))
	switch action {
	case "":
		action = DenyActionDrop
	case DenyActionDrop, DenyActionStrip:
	default:
		return nil, fmt.Errorf("%w: denylist_action %q", ErrInvalidRules, raw.DenylistAction)
	}

	sources := raw.RedactionPatterns
	if len(sources) == 0 {
		sources = defaultPatternSources
	}
	patterns := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidRules, src, err)
		}
		patterns = append(patterns, re)
	}

	limits := make(map[string]int, len(raw.LengthLimits))
	for key, limit := range raw.LengthLimits {
		limits[strings.ToLower(key)] = limit
	}

	return &Rules{
		MaskKeys:          lowerSet(raw.MaskKeys),
		HashKeys:          lowerSet(raw.HashKeys),
		DropPayloadKeys:   lowerSet(raw.DropPayloadKeys),
		LengthLimits:      limits,
		AllowlistApps:     lowerSet(raw.AllowlistApps),
		DenylistApps:      lowerSet(raw.DenylistApps),
		DenylistAction:    action,
		AllowFullURL:      raw.URLPolicy.AllowFullURL,
		KeepDomainOnly:    raw.URLPolicy.KeepDomainOnly,
		RedactionPatterns: patterns,
	}, nil
}

func lowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			set[item] = true
		}
	}
	return set
}
