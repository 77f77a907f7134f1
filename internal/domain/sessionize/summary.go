package sessionize

import (
	"sort"
	"strings"

	"github.com/lumora/collector/internal/domain/model"
)

// P1 types worth surfacing alongside P0 types in key_events.
var keyP1Types = map[string]bool{
	"outlook.compose_started":       true,
	"outlook.attachment_added_meta": true,
	"excel.refresh_pivot":           true,
}

const focusBlockType = "os.app_focus_block"

// summarize condenses a closed window into the stored summary: an
// apps timeline ordered by focus time, first-occurrence key event types,
// a capped resource list, and per-tier counts.
func (s *Sessionizer) summarize(events []model.SessionEvent) model.SessionSummary {
	appSeconds := make(map[string]int)
	appOrder := make([]string, 0, 4)
	seenApp := make(map[string]bool)

	var keyEvents []string
	seenKey := make(map[string]bool)

	var resources []string
	seenResource := make(map[string]bool)

	counts := model.PriorityCounts{Total: len(events)}

	for _, event := range events {
		eventType := strings.ToLower(event.EventType)

		if event.App != "" && !seenApp[event.App] {
			seenApp[event.App] = true
			appOrder = append(appOrder, event.App)
		}
		if eventType == focusBlockType {
			appSeconds[event.App] += durationSec(event.Payload)
		}

		if (event.Priority == model.P0 || keyP1Types[eventType]) && !seenKey[eventType] {
			seenKey[eventType] = true
			keyEvents = append(keyEvents, eventType)
		}

		if id := event.ResourceID; id != "" && id != "unknown" && !seenResource[id] {
			seenResource[id] = true
			if len(resources) < s.maxResources {
				resources = append(resources, id)
			}
		}

		switch event.Priority {
		case model.P0:
			counts.P0++
		case model.P1:
			counts.P1++
		case model.P2:
			counts.P2++
		}
	}

	timeline := make([]model.AppSpan, 0, len(appOrder))
	for _, app := range appOrder {
		timeline = append(timeline, model.AppSpan{App: app, Sec: appSeconds[app]})
	}
	// Most focus time first; first-seen order breaks ties, which
	// sort.SliceStable preserves.
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Sec > timeline[j].Sec
	})

	return model.SessionSummary{
		AppsTimeline: timeline,
		KeyEvents:    keyEvents,
		Resources:    resources,
		Counts:       counts,
	}
}

func durationSec(payload map[string]any) int {
	switch v := payload["duration_sec"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
