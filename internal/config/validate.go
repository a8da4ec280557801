package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks cross-field constraints that the strict decoder cannot:
// duration strings must parse, provider kinds must be known, and the
// default timezone must resolve. Watch() refuses to publish a config that
// fails validation, so a bad edit never reaches running services.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "none", "memory", "sqlite":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	if tz := cfg.Resolver.DefaultTimezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("resolver.default_timezone: %w", err)
		}
	}
	seen := map[string]bool{}
	for i, p := range cfg.Resolver.Providers {
		field := fmt.Sprintf("resolver.providers[%d]", i)
		if p.Name == "" {
			return fmt.Errorf("%s: name is required", field)
		}
		if seen[p.Name] {
			return fmt.Errorf("%s: duplicate name %q", field, p.Name)
		}
		seen[p.Name] = true
		switch strings.ToLower(p.Kind) {
		case "openai", "anthropic", "ollama":
		default:
			return fmt.Errorf("%s: unknown kind %q", field, p.Kind)
		}
		if _, err := ParseDurationField(field+".timeout", p.Timeout); err != nil {
			return err
		}
	}

	for _, f := range []struct{ path, raw string }{
		{"dispatch.retry_base", cfg.Dispatch.RetryBase},
		{"dispatch.retry_max_delay", cfg.Dispatch.RetryMaxDelay},
		{"dispatch.sweep_every", cfg.Dispatch.SweepEvery},
		{"dispatch.sweep_horizon", cfg.Dispatch.SweepHorizon},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: required when telegram.enabled")
	}
	return nil
}
