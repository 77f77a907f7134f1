package routine

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/lumora/collector/internal/domain/model"
)

func sessionWithKeys(id string, end time.Time, keyEvents ...string) model.Session {
	return model.Session{
		SessionID: id,
		StartTS:   end.Add(-30 * time.Minute),
		EndTS:     end,
		Duration:  30 * time.Minute,
		Summary:   model.SessionSummary{KeyEvents: keyEvents},
	}
}

func TestMine(t *testing.T) {
	now := time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)

	Convey("Given sessions where one sequence repeats", t, func() {
		m := New(WithNGramBounds(2, 5), WithMinSupport(2))

		Convey("A sequence repeating across 5 sessions has support 5", func() {
			var sessions []model.Session
			for i := 0; i < 5; i++ {
				end := now.Add(-time.Duration(i) * 24 * time.Hour)
				sessions = append(sessions, sessionWithKeys(fmt.Sprintf("sess-%d", i), end, "a", "b", "c"))
			}
			candidates := m.Mine(sessions, now)

			So(candidates, ShouldNotBeEmpty)
			top := candidates[0]
			So(top.Pattern, ShouldResemble, []string{"a", "b", "c"})
			So(top.Support, ShouldEqual, 5)
			So(top.EvidenceSessionIDs, ShouldHaveLength, 5)
		})

		Convey("Patterns below min support are dropped", func() {
			sessions := []model.Session{
				sessionWithKeys("sess-1", now, "a", "b"),
				sessionWithKeys("sess-2", now.Add(-24*time.Hour), "c", "d"),
			}
			So(m.Mine(sessions, now), ShouldBeEmpty)
		})

		Convey("A pattern looping inside one session counts once", func() {
			sessions := []model.Session{
				sessionWithKeys("sess-1", now, "a", "b", "a", "b"),
				sessionWithKeys("sess-2", now.Add(-24*time.Hour), "a", "b"),
			}
			candidates := m.Mine(sessions, now)

			So(candidates, ShouldNotBeEmpty)
			So(candidates[0].Pattern, ShouldResemble, []string{"a", "b"})
			So(candidates[0].Support, ShouldEqual, 2)
		})

		Convey("On equal support the longer pattern ranks first", func() {
			sessions := []model.Session{
				sessionWithKeys("sess-1", now, "a", "b", "c"),
				sessionWithKeys("sess-2", now.Add(-time.Hour), "a", "b", "c"),
			}
			candidates := m.Mine(sessions, now)

			So(candidates[0].Pattern, ShouldResemble, []string{"a", "b", "c"})
		})

		Convey("Recent patterns score a confidence bonus", func() {
			recent := m.Mine([]model.Session{
				sessionWithKeys("sess-1", now.Add(-time.Hour), "a", "b"),
				sessionWithKeys("sess-2", now.Add(-2*time.Hour), "a", "b"),
			}, now)
			stale := m.Mine([]model.Session{
				sessionWithKeys("sess-1", now.Add(-30*24*time.Hour), "a", "b"),
				sessionWithKeys("sess-2", now.Add(-31*24*time.Hour), "a", "b"),
			}, now)

			So(recent[0].Confidence, ShouldBeGreaterThan, stale[0].Confidence)
		})

		Convey("Same-weekday repetition scores a periodicity bonus", func() {
			weekly := m.Mine([]model.Session{
				sessionWithKeys("sess-1", now.Add(-8*24*time.Hour), "a", "b"),
				sessionWithKeys("sess-2", now.Add(-15*24*time.Hour), "a", "b"),
			}, now)
			scattered := m.Mine([]model.Session{
				sessionWithKeys("sess-1", now.Add(-8*24*time.Hour), "a", "b"),
				sessionWithKeys("sess-2", now.Add(-16*24*time.Hour), "a", "b"),
			}, now)

			So(weekly[0].Confidence, ShouldBeGreaterThan, scattered[0].Confidence)
		})

		Convey("The candidate set is capped at max patterns", func() {
			capped := New(WithMinSupport(2), WithMaxPatterns(1))
			sessions := []model.Session{
				sessionWithKeys("sess-1", now, "a", "b", "c"),
				sessionWithKeys("sess-2", now.Add(-time.Hour), "a", "b", "c"),
			}
			So(capped.Mine(sessions, now), ShouldHaveLength, 1)
		})

		Convey("Pattern IDs are stable across runs", func() {
			sessions := []model.Session{
				sessionWithKeys("sess-1", now, "a", "b"),
				sessionWithKeys("sess-2", now.Add(-time.Hour), "a", "b"),
			}
			first := m.Mine(sessions, now)
			second := m.Mine(sessions, now)

			So(first[0].PatternID, ShouldEqual, second[0].PatternID)
		})
	})
}
