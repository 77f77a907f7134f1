package mockevents

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lumora/collector/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
)

// Simulated workday shape.
const (
	minFocusSeconds    = 20
	focusSecondsRange  = 400
	maxInAppEvents     = 4
	idleChancePercent  = 6
	minIdleSeconds     = 120
	idleSecondsRange   = 900
	titleChangePercent = 35
)

// app describes one simulated application and its in-app event types.
type app struct {
	name   string
	source string
	types  []string
	titles []string
}

var workdayApps = []app{
	{
		name:   "excel",
		source: "office",
		types:  []string{"excel.file_opened", "excel.cell_edited", "excel.refresh_pivot", "os.file_saved"},
		titles: []string{"Q3_forecast.xlsx - Excel", "budget_2026.xlsx - Excel", "pipeline_report.xlsx - Excel"},
	},
	{
		name:   "outlook",
		source: "office",
		types:  []string{"outlook.mail_read", "outlook.compose_started", "outlook.attachment_added_meta", "outlook.mail_sent"},
		titles: []string{"Inbox - alex@corp.example - Outlook", "RE: weekly sync - Message", "FW: invoice 4411 - Message"},
	},
	{
		name:   "chrome",
		source: "browser",
		types:  []string{"browser.tab_focused", "browser.page_loaded"},
		titles: []string{"Confluence - Release plan", "Jira - Sprint board", "docs.internal - runbook"},
	},
	{
		name:   "teams",
		source: "office",
		types:  []string{"teams.message_posted", "teams.call_joined"},
		titles: []string{"General | platform - Teams", "Standup - Teams call"},
	},
	{
		name:   "vscode",
		source: "os",
		types:  []string{"editor.file_opened", "os.file_saved"},
		titles: []string{"collector.go - lumora - Visual Studio Code", "README.md - lumora - Visual Studio Code"},
	},
}

// randomInt returns a random int in [0, n) using crypto/rand.
func randomInt(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// randomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func randomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateEvents simulates a contiguous stretch of desktop activity ending
// now: focus switches between apps, in-app events, occasional idle gaps.
// The timeline is sequential, so generation is single-threaded on purpose.
func generateEvents(ctx context.Context, config *Config) ([]Event, error) {
	logger.Get().Info(ctx, "generating mock activity",
		logger.Int("numEvents", config.NumEvents),
		logger.Int("spanMinutes", config.SpanMinutes))

	events := make([]Event, 0, config.NumEvents)
	cursor := time.Now().UTC().Add(-time.Duration(config.SpanMinutes) * time.Minute)
	end := time.Now().UTC()

	for len(events) < config.NumEvents && cursor.Before(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := workdayApps[randomInt(len(workdayApps))]
		title := current.titles[randomInt(len(current.titles))]
		resource := ResourceRef{Type: "window", ID: current.name + ":" + title}

		events = append(events, newEvent(cursor, "os", current.name, "os.foreground_changed", resource, map[string]any{
			"window_title": title,
		}))
		cursor = cursor.Add(time.Duration(1+randomInt(3)) * time.Second)

		// A burst of in-app activity while this app holds focus.
		burst := 1 + randomInt(maxInAppEvents)
		focusEnd := cursor.Add(time.Duration(minFocusSeconds+randomInt(focusSecondsRange)) * time.Second)
		for i := 0; i < burst && len(events) < config.NumEvents && cursor.Before(focusEnd); i++ {
			eventType := current.types[randomInt(len(current.types))]
			events = append(events, newEvent(cursor, current.source, current.name, eventType, resource, inAppPayload(eventType)))
			cursor = cursor.Add(time.Duration(2+randomInt(int(focusEnd.Sub(cursor).Seconds())+1)) * time.Second)
		}

		if randomInt(100) < titleChangePercent && len(events) < config.NumEvents {
			next := current.titles[randomInt(len(current.titles))]
			events = append(events, newEvent(cursor, "os", current.name, "os.window_title_changed",
				ResourceRef{Type: "window", ID: current.name + ":" + next},
				map[string]any{"window_title": next}))
			cursor = cursor.Add(time.Duration(1+randomInt(5)) * time.Second)
		}

		if randomInt(100) < idleChancePercent && len(events)+1 < config.NumEvents {
			idle := time.Duration(minIdleSeconds+randomInt(idleSecondsRange)) * time.Second
			events = append(events, newEvent(cursor, "os", "system", "os.idle_start",
				ResourceRef{Type: "system", ID: "idle"}, nil))
			cursor = cursor.Add(idle)
			events = append(events, newEvent(cursor, "os", "system", "os.idle_end",
				ResourceRef{Type: "system", ID: "idle"},
				map[string]any{"idle_sec": int(idle.Seconds())}))
			cursor = cursor.Add(time.Duration(1+randomInt(3)) * time.Second)
		}
	}

	logger.Get().Info(ctx, "generated mock activity", logger.Int("count", len(events)))
	return events, nil
}

func newEvent(ts time.Time, source, appName, eventType string, resource ResourceRef, payload map[string]any) Event {
	return Event{
		EventID:   uuid.New().String(),
		TS:        ts.Format(time.RFC3339Nano),
		Source:    source,
		App:       appName,
		EventType: eventType,
		Resource:  resource,
		Payload:   payload,
	}
}

// inAppPayload produces a plausible payload for the given event type,
// including fields the privacy guard is expected to redact.
func inAppPayload(eventType string) map[string]any {
	switch eventType {
	case "excel.cell_edited":
		return map[string]any{"sheet": "Sheet1", "range": "B" + strconv.Itoa(2+randomInt(40))}
	case "excel.refresh_pivot":
		return map[string]any{"pivot": "SalesByRegion", "duration_ms": 200 + randomInt(4000)}
	case "outlook.compose_started":
		return map[string]any{"to": "pat@corp.example", "subject": "draft"}
	case "outlook.attachment_added_meta":
		return map[string]any{"attachment_name": "report_" + strconv.Itoa(randomInt(100)) + ".pdf", "size_kb": 40 + randomInt(2000)}
	case "browser.page_loaded":
		return map[string]any{"url": "https://docs.internal/runbook?user=alex&token=abc" + strconv.Itoa(randomInt(1000))}
	case "os.file_saved":
		return map[string]any{"path": "C:/Users/alex/Documents/draft_" + strconv.Itoa(randomInt(100)) + ".xlsx"}
	default:
		return nil
	}
}
