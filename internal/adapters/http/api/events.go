package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ingestBodyLimit caps a single request body; events are small and a
// batch should never approach this.
const ingestBodyLimit = 4 << 20

// EventsHandler accepts raw events, singly or in batches.
type EventsHandler struct {
	deps   Dependencies
	token  string
	strict bool
}

// NewEventsHandler creates the ingest handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvents handles POST /events. The body is one event object or
// a JSON array of them. 200 acknowledges acceptance into the queue, not
// persistence; a full queue answers 429.
func (h *EventsHandler) HandlePostEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if h.token != "" && r.Header.Get("X-Collector-Token") != h.token {
		writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, ingestBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("empty batch"))
		return
	}
	if h.strict {
		for _, event := range events {
			if err := requireFields(event, "source", "app", "event_type"); err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", err)
				return
			}
		}
	}

	accepted := 0
	for _, event := range events {
		if h.deps.Enqueue(r.Context(), event) {
			accepted++
		}
	}
	if accepted == 0 {
		writeError(w, http.StatusTooManyRequests, "backpressure", ErrBackpressure)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{
		Status:   "accepted",
		Accepted: accepted,
		Rejected: len(events) - accepted,
	})
}

// decodeEvents accepts either a single JSON object or an array of them.
func decodeEvents(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBadRequest)
	}

	if trimmed[0] == '[' {
		var events []map[string]any
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return events, nil
	}

	var event map[string]any
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return []map[string]any{event}, nil
}

// requireFields backs strict-mode front validation: in strict mode a
// batch with a malformed event is rejected whole, before anything is
// queued.
func requireFields(event map[string]any, fields ...string) error {
	var missing []string
	for _, field := range fields {
		value, ok := event[field].(string)
		if !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrBadRequest, strings.Join(missing, ", "))
	}
	return nil
}
