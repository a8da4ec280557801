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
	defaultAnthropicBaseURL   = "https://api.anthropic.com/v1"
	anthropicMessagesPath     = "/messages"
	anthropicVersionHeaderKey = "anthropic-version"
	anthropicVersion          = "2023-06-01"
	anthropicAPIKeyHeaderKey  = "x-api-key"
)

type anthropicAdapter struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     logx.Logger
}

func newAnthropic(cfg Config, log logx.Logger) *anthropicAdapter {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	return &anthropicAdapter{
		name:    cfg.Name,
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{},
		log:     log,
	}
}

func (a *anthropicAdapter) Name() string { return a.name }

func (a *anthropicAdapter) Parse(ctx context.Context, message, timezone string) (intent.Result, error) {
	body := map[string]any{
		"model":      a.model,
		"max_tokens": 512,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt(message, timezone, time.Now())},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return intent.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+anthropicMessagesPath, bytes.NewReader(b))
	if err != nil {
		return intent.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(anthropicVersionHeaderKey, anthropicVersion)
	req.Header.Set(anthropicAPIKeyHeaderKey, a.apiKey)

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
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return intent.Result{}, fmt.Errorf("%s: decode: %w", a.name, err)
	}
	for _, c := range out.Content {
		if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
			return decodeResult(c.Text, timezone)
		}
	}
	return intent.Result{}, fmt.Errorf("%s: no text content", a.name)
}
