package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memobot/internal/intent"
	"memobot/pkg/logx"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	ollamaGeneratePath   = "/api/generate"
)

// ollamaAdapter is the self-hosted tertiary in the cascade: slower and less
// accurate, but has no per-request cost and keeps working offline.
type ollamaAdapter struct {
	name    string
	baseURL string
	model   string
	http    *http.Client
	log     logx.Logger
}

func newOllama(cfg Config, log logx.Logger) *ollamaAdapter {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOllamaBaseURL
	}
	return &ollamaAdapter{
		name:    cfg.Name,
		baseURL: base,
		model:   cfg.Model,
		http:    &http.Client{},
		log:     log,
	}
}

func (a *ollamaAdapter) Name() string { return a.name }

func (a *ollamaAdapter) Parse(ctx context.Context, message, timezone string) (intent.Result, error) {
	body := map[string]any{
		"model":  a.model,
		"prompt": systemPrompt + "\n\n" + userPrompt(message, timezone, time.Now()),
		"format": "json",
		"stream": false,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return intent.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+ollamaGeneratePath, bytes.NewReader(b))
	if err != nil {
		return intent.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return intent.Result{}, fmt.Errorf("%s: %w", a.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return intent.Result{}, fmt.Errorf("%s: read body: %w", a.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return intent.Result{}, fmt.Errorf("%s: http %d: %s", a.name, resp.StatusCode, truncate(string(data), 200))
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return intent.Result{}, fmt.Errorf("%s: decode: %w", a.name, err)
	}
	return decodeResult(out.Response, timezone)
}
