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
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	openAIChatPath       = "/chat/completions"
)

// openAIAdapter speaks the OpenAI-compatible chat completions API. It also
// covers any self-hosted gateway exposing the same surface.
type openAIAdapter struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     logx.Logger
}

func newOpenAI(cfg Config, log logx.Logger) *openAIAdapter {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &openAIAdapter{
		name:    cfg.Name,
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{},
		log:     log,
	}
}

func (a *openAIAdapter) Name() string { return a.name }

func (a *openAIAdapter) Parse(ctx context.Context, message, timezone string) (intent.Result, error) {
	body := map[string]any{
		"model":       a.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(message, timezone, time.Now())},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := a.post(ctx, a.baseURL+openAIChatPath, body, &out); err != nil {
		return intent.Result{}, err
	}
	if len(out.Choices) == 0 {
		return intent.Result{}, fmt.Errorf("%s: empty choices", a.name)
	}
	return decodeResult(out.Choices[0].Message.Content, timezone)
}

func (a *openAIAdapter) post(ctx context.Context, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", a.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", a.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d: %s", a.name, resp.StatusCode, truncate(string(data), 200))
	}
	return json.Unmarshal(data, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
