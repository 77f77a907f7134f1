package privacy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/lumora/collector/internal/domain/model"
)

type recorderSpy struct {
	redacted int
	denied   int
	drops    map[string]int
}

func (r *recorderSpy) RecordPrivacyRedacted() { r.redacted++ }
func (r *recorderSpy) RecordPrivacyDenied()   { r.denied++ }
func (r *recorderSpy) RecordDrop(reason string) {
	if r.drops == nil {
		r.drops = make(map[string]int)
	}
	r.drops[reason]++
}

func TestGuardMasking(t *testing.T) {
	Convey("Given a guard with the default rules", t, func() {
		guard := NewGuard(DefaultRules(), "test-salt", nil)

		Convey("When a window title carries an email and a filesystem path", func() {
			title := "RE: budget from alex.smith@corp.example - C:\\Users\\alex\\Documents\\budget.xlsx"
			out, keep := guard.Apply(model.EventEnvelope{
				App:       "outlook",
				EventType: "outlook.mail_read",
				Payload:   map[string]any{"window_title": title},
			})

			Convey("Then neither raw value survives anywhere in the envelope", func() {
				So(keep, ShouldBeTrue)
				serialized, err := json.Marshal(out)
				So(err, ShouldBeNil)
				So(string(serialized), ShouldNotContainSubstring, "alex.smith@corp.example")
				So(string(serialized), ShouldNotContainSubstring, "C:\\Users\\alex")
				So(out.Payload["window_title"], ShouldContainSubstring, RedactionToken)
				So(out.Privacy.Redaction, ShouldContain, "mask:window_title")
			})
		})

		Convey("When a title exceeds its length limit", func() {
			out, keep := guard.Apply(model.EventEnvelope{
				App:     "excel",
				Payload: map[string]any{"window_title": strings.Repeat("x", 500)},
			})

			So(keep, ShouldBeTrue)
			So(len(out.Payload["window_title"].(string)), ShouldEqual, 120)
		})

		Convey("When resource and window identifiers are present", func() {
			envelope := model.EventEnvelope{
				App:      "excel",
				WindowID: "hwnd-4471",
				Resource: model.ResourceRef{Type: "file", ID: "C:/Users/alex/q3.xlsx"},
				Payload:  map[string]any{},
			}
			out, keep := guard.Apply(envelope)
			again, _ := guard.Apply(envelope)
			other, _ := NewGuard(DefaultRules(), "other-salt", nil).Apply(envelope)

			Convey("Then they are hashed stably per salt", func() {
				So(keep, ShouldBeTrue)
				So(out.Resource.ID, ShouldNotEqual, "C:/Users/alex/q3.xlsx")
				So(len(out.Resource.ID), ShouldEqual, 64)
				So(out.Resource.ID, ShouldEqual, again.Resource.ID)
				So(out.Resource.ID, ShouldNotEqual, other.Resource.ID)
				So(out.WindowID, ShouldNotEqual, "hwnd-4471")
				So(out.Privacy.Redaction, ShouldContain, "resource_id_hashed")
				So(out.Privacy.Redaction, ShouldContain, "window_id_hashed")
			})
		})

		Convey("When a placeholder resource id is present", func() {
			out, _ := guard.Apply(model.EventEnvelope{
				App:      "excel",
				Resource: model.ResourceRef{Type: "unknown", ID: "unknown"},
				Payload:  map[string]any{},
			})

			So(out.Resource.ID, ShouldEqual, "unknown")
		})

		Convey("When a recipients field carries addresses", func() {
			out, keep := guard.Apply(model.EventEnvelope{
				App: "outlook",
				Payload: map[string]any{
					"to": []any{"pat@corp.example", "sam@partner.example", "lee@corp.example"},
				},
			})

			Convey("Then only a count and per-domain tally remain", func() {
				So(keep, ShouldBeTrue)
				summary, ok := out.Payload["to"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(summary["count"], ShouldEqual, 3)
				stats := summary["domain_stats"].(map[string]int)
				So(stats["corp.example"], ShouldEqual, 2)
				So(stats["partner.example"], ShouldEqual, 1)

				serialized, _ := json.Marshal(out)
				So(string(serialized), ShouldNotContainSubstring, "pat@corp.example")
			})
		})

		Convey("When a URL field is present", func() {
			out, _ := guard.Apply(model.EventEnvelope{
				App:     "chrome",
				Payload: map[string]any{"url": "https://docs.internal/runbook?user=alex&token=s3cret"},
			})

			So(out.Payload["url"], ShouldEqual, "docs.internal")
			So(out.Privacy.Redaction, ShouldContain, "url_sanitized")
		})
	})
}

func TestGuardAppPolicy(t *testing.T) {
	Convey("Given app allow and deny lists", t, func() {
		Convey("When the app is denylisted with the drop action", func() {
			rules := DefaultRules()
			rules.DenylistApps = map[string]bool{"keepass": true}
			spy := &recorderSpy{}
			guard := NewGuard(rules, "salt", spy)

			_, keep := guard.Apply(model.EventEnvelope{App: "KeePass", Payload: map[string]any{"window_title": "vault"}})

			So(keep, ShouldBeFalse)
			So(spy.denied, ShouldEqual, 1)
			So(spy.drops["denylist"], ShouldEqual, 1)
		})

		Convey("When the app is denylisted with the strip action", func() {
			rules := DefaultRules()
			rules.DenylistApps = map[string]bool{"keepass": true}
			rules.DenylistAction = DenyActionStrip
			spy := &recorderSpy{}
			guard := NewGuard(rules, "salt", spy)

			out, keep := guard.Apply(model.EventEnvelope{
				App:     "keepass",
				Payload: map[string]any{"window_title": "vault", "entry": "bank"},
			})

			So(keep, ShouldBeTrue)
			So(out.Payload, ShouldBeEmpty)
			So(out.Privacy.Redaction, ShouldContain, "denylist_stripped")
			// A stripped event is kept, so the deny counter moves but no
			// drop is recorded.
			So(spy.denied, ShouldEqual, 1)
			So(spy.drops["denylist"], ShouldEqual, 0)
		})

		Convey("When an allowlist exists and the app is not on it", func() {
			rules := DefaultRules()
			rules.AllowlistApps = map[string]bool{"excel": true}
			spy := &recorderSpy{}
			guard := NewGuard(rules, "salt", spy)

			_, keep := guard.Apply(model.EventEnvelope{App: "solitaire"})
			_, keepAllowed := guard.Apply(model.EventEnvelope{App: "Excel", Payload: map[string]any{}})

			So(keep, ShouldBeFalse)
			So(keepAllowed, ShouldBeTrue)
			So(spy.drops["allowlist"], ShouldEqual, 1)
		})
	})
}

func TestLoadRules(t *testing.T) {
	Convey("Given a rules file on disk", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "rules.yaml")
		doc := `
mask_keys: [window_title]
hash_keys: [account_id]
drop_payload_keys: [body]
length_limits:
  window_title: 40
denylist_apps: [keepass]
denylist_action: strip
url_policy:
  keep_domain_only: true
`
		So(os.WriteFile(path, []byte(doc), 0600), ShouldBeNil)

		Convey("When loading it", func() {
			rules, err := LoadRules(path)

			Convey("Then the compiled policy should match", func() {
				So(err, ShouldBeNil)
				So(rules.MaskKeys["window_title"], ShouldBeTrue)
				So(rules.HashKeys["account_id"], ShouldBeTrue)
				So(rules.DropPayloadKeys["body"], ShouldBeTrue)
				So(rules.LengthLimits["window_title"], ShouldEqual, 40)
				So(rules.DenylistApps["keepass"], ShouldBeTrue)
				So(rules.DenylistAction, ShouldEqual, DenyActionStrip)
				So(rules.KeepDomainOnly, ShouldBeTrue)
				So(len(rules.RedactionPatterns), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When dropped and hashed keys are exercised", func() {
			rules, err := LoadRules(path)
			So(err, ShouldBeNil)
			guard := NewGuard(rules, "salt", nil)

			out, keep := guard.Apply(model.EventEnvelope{
				App: "outlook",
				Payload: map[string]any{
					"body":       "full message text",
					"account_id": "ACCT-9912",
				},
			})

			So(keep, ShouldBeTrue)
			So(out.Payload, ShouldNotContainKey, "body")
			So(out.Payload["account_id"], ShouldNotEqual, "ACCT-9912")
			So(len(out.Payload["account_id"].(string)), ShouldEqual, 64)
			So(out.Privacy.Redaction, ShouldContain, "drop:body")
			So(out.Privacy.Redaction, ShouldContain, "hash:account_id")
		})

		Convey("When the file does not exist", func() {
			_, err := LoadRules(filepath.Join(dir, "missing.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("When the denylist action is unknown", func() {
			bad := filepath.Join(dir, "bad.yaml")
			So(os.WriteFile(bad, []byte("denylist_action: quarantine\n"), 0600), ShouldBeNil)

			_, err := LoadRules(bad)
			So(err, ShouldWrap, ErrInvalidRules)
		})

		Convey("When a redaction pattern fails to compile", func() {
			bad := filepath.Join(dir, "badre.yaml")
			So(os.WriteFile(bad, []byte("redaction_patterns: ['[']\n"), 0600), ShouldBeNil)

			_, err := LoadRules(bad)
			So(err, ShouldWrap, ErrInvalidRules)
		})
	})
}

func TestMaskHelpers(t *testing.T) {
	Convey("Given the masking helpers", t, func() {
		Convey("Truncate caps at rune boundaries", func() {
			So(Truncate("héllo wörld", 5), ShouldEqual, "héllo")
			So(Truncate("short", 10), ShouldEqual, "short")
			So(Truncate("anything", 0), ShouldEqual, "anything")
		})

		Convey("SanitizeURL keeps the host only", func() {
			So(SanitizeURL("https://corp.example/path?q=1", true), ShouldEqual, "corp.example")
			So(SanitizeURL("https://corp.example/path", false), ShouldEqual, "https://corp.example/path")
			So(SanitizeURL("not a url", true), ShouldEqual, "not a url")
		})

		Convey("HashValue is hex-encoded SHA-256 output", func() {
			h := HashValue("value", "salt")
			So(len(h), ShouldEqual, 64)
			So(h, ShouldNotEqual, HashValue("value", "pepper"))
		})
	})
}
