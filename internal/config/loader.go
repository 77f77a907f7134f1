package config

import (
	"context"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if COLLECTOR_CONFIG is set
//  3. env (prefix COLLECTOR_, "__" as nesting separator)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("COLLECTOR_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: COLLECTOR_ADDR, COLLECTOR_QUEUE__SIZE, ...
	// Double underscore maps to nesting so single underscores survive in
	// key names (queue__size -> queue.size).
	envProvider := env.Provider("COLLECTOR_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "COLLECTOR_"))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return ErrMissingAddr
	}
	if c.DBPath == "" {
		return ErrMissingDBPath
	}
	switch strings.ToLower(c.ValidationMode) {
	case "lenient", "strict":
	default:
		return ErrInvalidValidationMode
	}
	switch c.Queue.Policy {
	case "reject-new", "drop-oldest":
	default:
		return ErrInvalidQueuePolicy
	}
	if c.Queue.Size <= 0 {
		return ErrInvalidQueueSize
	}
	if c.Priority.DropP2QueueRatio < 0 || c.Priority.DropP2QueueRatio > 1 ||
		c.Priority.DropP1QueueRatio < c.Priority.DropP2QueueRatio {
		return ErrInvalidDropRatio
	}
	if c.Routine.NMin <= 0 || c.Routine.NMax < c.Routine.NMin {
		return ErrInvalidNGramBounds
	}
	return nil
}
