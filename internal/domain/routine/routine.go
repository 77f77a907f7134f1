// Package routine mines recurring key-event sequences from closed
// sessions.
//
// Each session contributes its key-event sequence once: support counts
// the number of distinct sessions a pattern appears in, not raw
// occurrences, so a pattern looping inside a single long session does not
// inflate its score.
package routine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/lumora/collector/internal/domain/model"
)

// Miner extracts ranked routine candidates from session summaries.
type Miner struct {
	nMin        int
	nMax        int
	minSupport  int
	maxPatterns int
	maxEvidence int
}

// New creates a Miner with the operating defaults.
func New(opts ...Option) *Miner {
	m := &Miner{
		nMin:        2,
		nMax:        5,
		minSupport:  2,
		maxPatterns: 100,
		maxEvidence: 10,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type patternStats struct {
	pattern    []string
	sessionIDs []string
	lastSeen   time.Time
	// weekday -> distinct occurrence dates, for the periodicity bonus
	weekdayDates map[time.Weekday]map[string]bool
}

// Mine generates candidates from the sessions in the lookback window.
// now anchors the recency bonus; the result replaces the previous
// candidate set wholesale.
func (m *Miner) Mine(sessions []model.Session, now time.Time) []model.RoutineCandidate {
	stats := make(map[string]*patternStats)

	for _, session := range sessions {
		for _, pattern := range m.uniqueNGrams(session.Summary.KeyEvents) {
			key := strings.Join(pattern, "|")
			entry, ok := stats[key]
			if !ok {
				entry = &patternStats{
					pattern:      pattern,
					weekdayDates: make(map[time.Weekday]map[string]bool),
				}
				stats[key] = entry
			}
			entry.sessionIDs = append(entry.sessionIDs, session.SessionID)
			if session.EndTS.After(entry.lastSeen) {
				entry.lastSeen = session.EndTS
			}
			day := session.EndTS.Format("2006-01-02")
			if entry.weekdayDates[session.EndTS.Weekday()] == nil {
				entry.weekdayDates[session.EndTS.Weekday()] = make(map[string]bool)
			}
			entry.weekdayDates[session.EndTS.Weekday()][day] = true
		}
	}

	candidates := make([]model.RoutineCandidate, 0, len(stats))
	for key, entry := range stats {
		support := len(entry.sessionIDs)
		if support < m.minSupport {
			continue
		}
		evidence := entry.sessionIDs
		if len(evidence) > m.maxEvidence {
			evidence = evidence[len(evidence)-m.maxEvidence:]
		}
		candidates = append(candidates, model.RoutineCandidate{
			PatternID:          patternID(key),
			Pattern:            entry.pattern,
			Support:            support,
			Confidence:         confidence(support, entry, now),
			LastSeenTS:         entry.lastSeen,
			EvidenceSessionIDs: append([]string(nil), evidence...),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.Pattern) != len(b.Pattern) {
			return len(a.Pattern) > len(b.Pattern)
		}
		return a.LastSeenTS.After(b.LastSeenTS)
	})

	if len(candidates) > m.maxPatterns {
		candidates = candidates[:m.maxPatterns]
	}
	return candidates
}

// uniqueNGrams returns each distinct sliding-window subsequence of length
// nMin..nMax at most once, in first-occurrence order.
func (m *Miner) uniqueNGrams(sequence []string) [][]string {
	var grams [][]string
	seen := make(map[string]bool)
	for n := m.nMin; n <= m.nMax && n <= len(sequence); n++ {
		for i := 0; i+n <= len(sequence); i++ {
			gram := sequence[i : i+n]
			key := strings.Join(gram, "|")
			if seen[key] {
				continue
			}
			seen[key] = true
			grams = append(grams, append([]string(nil), gram...))
		}
	}
	return grams
}

// confidence scales support by a recency bonus and a weekday-repetition
// bonus.
func confidence(support int, entry *patternStats, now time.Time) float64 {
	recency := 0.0
	switch age := now.Sub(entry.lastSeen); {
	case age <= 24*time.Hour:
		recency = 0.3
	case age <= 7*24*time.Hour:
		recency = 0.1
	}

	periodic := 0.0
	for _, dates := range entry.weekdayDates {
		if len(dates) >= 2 {
			periodic = 0.1
			break
		}
	}

	return float64(support) * (1 + recency) * (1 + periodic)
}

func patternID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "rt-" + hex.EncodeToString(sum[:8])
}
