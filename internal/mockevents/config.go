package mockevents

import "time"

// Config holds configuration for the mock activity run.
type Config struct {
	BaseURL     string        // Base URL of the collector
	NumEvents   int           // Number of events to generate
	BatchSize   int           // Events per POST (1 = single-object posts)
	Workers     int           // Number of concurrent submit workers
	Timeout     time.Duration // HTTP request timeout
	Token       string        // Optional X-Collector-Token value
	SpanMinutes int           // Minutes of simulated activity ending now
	OutputFile  string        // Output file for generated events
	LogFile     string        // Log file for run output
	Verbose     bool          // Enable verbose logging
}

// Event is the wire shape accepted by POST /events.
type Event struct {
	EventID   string         `json:"event_id"`
	TS        string         `json:"ts"`
	Source    string         `json:"source"`
	App       string         `json:"app"`
	EventType string         `json:"event_type"`
	Resource  ResourceRef    `json:"resource"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ResourceRef identifies the document or window an event refers to.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AckResponse is the ingest acknowledgement.
type AckResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated int
	EventsSubmitted int
	EventsAccepted  int
	EventsShed      int
	EventsFailed    int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
