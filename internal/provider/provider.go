// Package provider contains the NLU provider adapters.
//
// Each adapter wraps one external service behind the resolver's uniform
// Parse signature and normalizes the provider's loosely shaped response
// into the canonical intent.Result at the boundary. Adapters are
// constructed once at startup and injected; they hold no global state.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memobot/internal/intent"
	"memobot/pkg/logx"
)

// Adapter mirrors resolver.Adapter; declared here too so this package
// stands alone.
type Adapter interface {
	Name() string
	Parse(ctx context.Context, message, timezone string) (intent.Result, error)
}

// Config describes one provider endpoint.
type Config struct {
	Name    string
	Kind    string // "openai", "anthropic", "ollama"
	BaseURL string
	APIKey  string
	Model   string
}

// New builds an adapter for the configured provider kind.
func New(cfg Config, log logx.Logger) (Adapter, error) {
	switch strings.ToLower(cfg.Kind) {
	case "openai":
		return newOpenAI(cfg, log), nil
	case "anthropic":
		return newAnthropic(cfg, log), nil
	case "ollama":
		return newOllama(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

const systemPrompt = `You classify reminder-bot messages. Respond with a single JSON object and nothing else:
{"intent":"create|list|done|help|billing|erase|timezone|unknown","task":"...","scheduled_at":"RFC3339 UTC instant","recurrence":"none|daily|weekly|monthly","query":"...","timezone":"IANA zone"}
Only emit intent "create" when both a task and a concrete time are present; otherwise use "unknown".`

func userPrompt(message, timezone string, now time.Time) string {
	return fmt.Sprintf("Current time: %s\nUser timezone: %s\nMessage: %s",
		now.UTC().Format(time.RFC3339), timezone, message)
}
