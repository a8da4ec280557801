package config

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Resolver ResolverConfig `json:"resolver"`
	Dispatch DispatchConfig `json:"dispatch"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Driver values: "memory", "sqlite", "none" (or empty to disable).
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./memobot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ResolverConfig controls the intent resolution cascade.
//
// Providers are tried in list order; each gets its own timeout before the
// chain falls through to the built-in heuristic parser.
type ResolverConfig struct {
	// DefaultTimezone is an IANA zone name applied when a user has not set
	// their own (default "UTC").
	DefaultTimezone string           `json:"default_timezone,omitempty"`
	Providers       []ProviderConfig `json:"providers,omitempty"`
}

// ProviderConfig describes one NLU provider in the cascade.
//
// Kind selects the wire protocol: "openai", "anthropic" or "ollama".
// APIKey may also be given via the environment variable named in APIKeyEnv,
// which keeps secrets out of config files checked into version control.
type ProviderConfig struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
	Model     string `json:"model,omitempty"`
	// Timeout is a Go duration string (e.g. "4s"). Zero means the
	// resolver default.
	Timeout string `json:"timeout,omitempty"`
}

// DispatchConfig controls the reminder dispatch engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - retry_max: 3
//   - retry_base: "1m"
//   - retry_max_delay: "15m"
//   - sweep_every: "1m"
//   - sweep_horizon: "5m"
type DispatchConfig struct {
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SweepEvery    string `json:"sweep_every,omitempty"`
	SweepHorizon  string `json:"sweep_horizon,omitempty"`
}

// NotifyConfig bounds outbound notification throughput.
type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}
