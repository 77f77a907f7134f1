// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Build a Config once at startup via Load and treat it as immutable.
// - Components receive the typed sub-structs they need, never the loader.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. "127.0.0.1:8745".
	Addr string `koanf:"addr"`

	// DBPath locates the SQLite database file.
	DBPath string `koanf:"db_path"`

	// ValidationMode selects normalizer behavior: "lenient" or "strict".
	ValidationMode string `koanf:"validation_mode"`

	Ingest         IngestConfig         `koanf:"ingest"`
	Queue          QueueConfig          `koanf:"queue"`
	Store          StoreConfig          `koanf:"store"`
	Privacy        PrivacyConfig        `koanf:"privacy"`
	Priority       PriorityConfig       `koanf:"priority"`
	Sessionizer    SessionizerConfig    `koanf:"sessionizer"`
	Routine        RoutineConfig        `koanf:"routine"`
	Handoff        HandoffConfig        `koanf:"handoff"`
	Retention      RetentionConfig      `koanf:"retention"`
	ActivityDetail ActivityDetailConfig `koanf:"activity_detail"`
}

// IngestConfig controls the HTTP ingest surface.
type IngestConfig struct {
	// Token, when non-empty, must match the X-Collector-Token header.
	Token string `koanf:"token"`
}

// QueueConfig bounds the in-process ingest queue.
type QueueConfig struct {
	Size int `koanf:"size"`

	// Policy on overflow: "reject-new" refuses the enqueue, "drop-oldest"
	// evicts the head to make room.
	Policy string `koanf:"policy"`

	// ShutdownDrainSeconds bounds how long shutdown waits for the queue
	// to empty before force-flushing.
	ShutdownDrainSeconds int `koanf:"shutdown_drain_seconds"`
}

// StoreConfig tunes batched ledger writes.
type StoreConfig struct {
	BatchSize      int  `koanf:"batch_size"`
	FlushMS        int  `koanf:"flush_ms"`
	RetryAttempts  int  `koanf:"retry_attempts"`
	RetryBackoffMS int  `koanf:"retry_backoff_ms"`
	BusyTimeoutMS  int  `koanf:"busy_timeout_ms"`
	WALMode        bool `koanf:"wal_mode"`
}

// PrivacyConfig locates the rules file and the identifier hashing salt.
type PrivacyConfig struct {
	RulesPath string `koanf:"rules_path"`
	HashSalt  string `koanf:"hash_salt"`
}

// PriorityConfig tunes classification, debounce, and focus aggregation.
type PriorityConfig struct {
	DebounceMS          int      `koanf:"debounce_ms"`
	FocusEventTypes     []string `koanf:"focus_event_types"`
	FocusBlockEventType string   `koanf:"focus_block_event_type"`
	MaxOpenFocusSeconds int      `koanf:"max_open_focus_seconds"`

	// DropP2QueueRatio and DropP1QueueRatio are the queue-fill thresholds
	// past which P2 (then P1) events are shed. P0 is never shed.
	DropP2QueueRatio float64 `koanf:"drop_p2_queue_ratio"`
	DropP1QueueRatio float64 `koanf:"drop_p1_queue_ratio"`

	// Extra event types merged into the built-in priority tables.
	P0EventTypes []string `koanf:"p0_event_types"`
	P1EventTypes []string `koanf:"p1_event_types"`
	P2EventTypes []string `koanf:"p2_event_types"`
}

// SessionizerConfig tunes session boundary detection.
type SessionizerConfig struct {
	GapMinutes      int `koanf:"gap_minutes"`
	IntervalMinutes int `koanf:"interval_minutes"`
}

// RoutineConfig tunes the pattern miner.
type RoutineConfig struct {
	LookbackDays    float64 `koanf:"lookback_days"`
	NMin            int     `koanf:"n_min"`
	NMax            int     `koanf:"n_max"`
	MinSupport      int     `koanf:"min_support"`
	MaxPatterns     int     `koanf:"max_patterns"`
	MaxEvidence     int     `koanf:"max_evidence"`
	IntervalMinutes int     `koanf:"interval_minutes"`
}

// HandoffConfig bounds the handoff package.
type HandoffConfig struct {
	MaxSizeBytes    int `koanf:"max_size_bytes"`
	RecentSessions  int `koanf:"recent_sessions"`
	RecentRoutines  int `koanf:"recent_routines"`
	MaxResources    int `koanf:"max_resources"`
	MaxEvidence     int `koanf:"max_evidence"`
	IntervalMinutes int `koanf:"interval_minutes"`
}

// RetentionConfig sets per-table age policies in days; zero disables a rule.
type RetentionConfig struct {
	Enabled             bool `koanf:"enabled"`
	IntervalMinutes     int  `koanf:"interval_minutes"`
	RawEventsDays       int  `koanf:"raw_events_days"`
	SessionsDays        int  `koanf:"sessions_days"`
	RoutinesDays        int  `koanf:"routines_days"`
	HandoffDays         int  `koanf:"handoff_days"`
	ActivityDetailsDays int  `koanf:"activity_details_days"`
	BatchSize           int  `koanf:"batch_size"`
	MaxDBMB             int  `koanf:"max_db_mb"`
	VacuumHours         int  `koanf:"vacuum_hours"`
}

// ActivityDetailConfig controls the optional (app, title hash) aggregation.
type ActivityDetailConfig struct {
	Enabled        bool `koanf:"enabled"`
	MinDurationSec int  `koanf:"min_duration_sec"`
	StoreHint      bool `koanf:"store_hint"`
	MaxTitleLen    int  `koanf:"max_title_len"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           "127.0.0.1:8745",
		DBPath:         "collector.db",
		ValidationMode: "lenient",
		Queue: QueueConfig{
			Size:                 1000,
			Policy:               "reject-new",
			ShutdownDrainSeconds: 5,
		},
		Store: StoreConfig{
			BatchSize:      100,
			FlushMS:        1000,
			RetryAttempts:  3,
			RetryBackoffMS: 50,
			BusyTimeoutMS:  5000,
			WALMode:        true,
		},
		Privacy: PrivacyConfig{
			RulesPath: "configs/privacy_rules.yaml",
			HashSalt:  "dev-salt",
		},
		Priority: PriorityConfig{
			DebounceMS:          2000,
			FocusEventTypes:     []string{"os.foreground_changed"},
			FocusBlockEventType: "os.app_focus_block",
			MaxOpenFocusSeconds: 3600,
			DropP2QueueRatio:    0.8,
			DropP1QueueRatio:    0.95,
		},
		Sessionizer: SessionizerConfig{
			GapMinutes:      15,
			IntervalMinutes: 10,
		},
		Routine: RoutineConfig{
			LookbackDays:    7,
			NMin:            2,
			NMax:            5,
			MinSupport:      2,
			MaxPatterns:     100,
			MaxEvidence:     10,
			IntervalMinutes: 60,
		},
		Handoff: HandoffConfig{
			MaxSizeBytes:    50 * 1024,
			RecentSessions:  3,
			RecentRoutines:  10,
			MaxResources:    10,
			MaxEvidence:     5,
			IntervalMinutes: 30,
		},
		Retention: RetentionConfig{
			Enabled:             true,
			IntervalMinutes:     360,
			RawEventsDays:       14,
			SessionsDays:        90,
			RoutinesDays:        90,
			HandoffDays:         7,
			ActivityDetailsDays: 30,
			BatchSize:           500,
			MaxDBMB:             512,
			VacuumHours:         24,
		},
		ActivityDetail: ActivityDetailConfig{
			Enabled:        false,
			MinDurationSec: 5,
			StoreHint:      true,
			MaxTitleLen:    256,
		},
	}
}
