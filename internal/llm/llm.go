// Package llm turns a free-form prompt into a project plan and task list by
// asking a hosted model for a JSON document.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskqueue/internal/apperr"
)

const (
	ProviderOpenAI   = "openai"
	ProviderGoogle   = "google"
	ProviderDeepseek = "deepseek"
)

var defaultBaseURLs = map[string]string{
	ProviderOpenAI:   "https://api.openai.com/v1",
	ProviderDeepseek: "https://api.deepseek.com",
	ProviderGoogle:   "https://generativelanguage.googleapis.com/v1beta",
}

var defaultModels = map[string]string{
	ProviderOpenAI:   "gpt-4o-mini",
	ProviderDeepseek: "deepseek-chat",
	ProviderGoogle:   "gemini-2.0-flash",
}

type Attachment struct {
	Name    string
	Content string
}

type Request struct {
	Prompt      string
	Provider    string
	Model       string
	Attachments []Attachment
}

type PlanTask struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	ToolRecommendations string `json:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty"`
}

type Plan struct {
	ProjectPlan string     `json:"projectPlan"`
	Tasks       []PlanTask `json:"tasks"`
}

// Generator produces a plan for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (Plan, error)
}

type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client talks to the OpenAI and Deepseek chat completion APIs and to Gemini's
// generateContent endpoint over plain HTTP.
type Client struct {
	Providers       map[string]ProviderConfig
	DefaultProvider string
	HTTP            *http.Client
	Logger          *slog.Logger
}

func (c *Client) Generate(ctx context.Context, req Request) (Plan, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Plan{}, apperr.New(apperr.MissingParameter, "prompt is required")
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = c.DefaultProvider
	}
	if provider == "" {
		provider = ProviderOpenAI
	}
	if _, ok := defaultBaseURLs[provider]; !ok {
		return Plan{}, apperr.New(apperr.InvalidProvider, "unknown provider %q (want openai, google or deepseek)", provider).
			With("provider", provider)
	}
	pc := c.Providers[provider]
	if pc.APIKey == "" {
		return Plan{}, apperr.New(apperr.ConfigurationError, "missing API key for provider %s", provider).
			With("provider", provider)
	}
	if pc.BaseURL == "" {
		pc.BaseURL = defaultBaseURLs[provider]
	}
	model := firstNonEmpty(req.Model, pc.Model, defaultModels[provider])

	prompt := buildPrompt(req)
	start := time.Now()
	var text string
	var err error
	if provider == ProviderGoogle {
		text, err = c.gemini(ctx, pc, model, prompt)
	} else {
		text, err = c.chat(ctx, pc, model, prompt)
	}
	if err != nil {
		return Plan{}, apperr.Wrap(apperr.LLMGenerationError, err, "plan generation with %s failed", provider).
			With("provider", provider).With("model", model)
	}
	plan, err := parsePlan(text)
	if err != nil {
		return Plan{}, apperr.Wrap(apperr.LLMGenerationError, err, "plan generation with %s returned an unusable plan", provider).
			With("provider", provider).With("model", model)
	}
	c.logger().InfoContext(ctx, "plan generated", "provider", provider, "model", model,
		"tasks", len(plan.Tasks), "elapsed", time.Since(start))
	return plan, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

const systemPrompt = `You plan software work. Reply with a single JSON object of the form
{"projectPlan": string, "tasks": [{"title": string, "description": string, "toolRecommendations": string, "ruleRecommendations": string}]}.
Order tasks in the sequence they should be done. Titles are short; descriptions say what done looks like.`

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	for _, a := range req.Attachments {
		fmt.Fprintf(&b, "\n\n<attachment name=%q>\n%s\n</attachment>", a.Name, a.Content)
	}
	return b.String()
}

// ReadAttachments loads attachment files from disk.
func ReadAttachments(paths []string) ([]Attachment, error) {
	out := make([]Attachment, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, apperr.Wrap(apperr.FileReadError, err, "failed to read attachment %s", p).With("path", p)
		}
		out = append(out, Attachment{Name: filepath.Base(p), Content: string(data)})
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) chat(ctx context.Context, pc ProviderConfig, model, prompt string) (string, error) {
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	body.ResponseFormat.Type = "json_object"
	url := strings.TrimRight(pc.BaseURL, "/") + "/chat/completions"
	var resp chatResponse
	if err := c.post(ctx, url, map[string]string{"Authorization": "Bearer " + pc.APIKey}, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction geminiContent   `json:"systemInstruction"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *Client) gemini(ctx context.Context, pc ProviderConfig, model, prompt string) (string, error) {
	body := geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	body.GenerationConfig.ResponseMimeType = "application/json"
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(pc.BaseURL, "/"), model)
	var resp geminiResponse
	if err := c.post(ctx, url, map[string]string{"x-goog-api-key": pc.APIKey}, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parsePlan accepts the model's reply, tolerating a fenced code block around the JSON.
func parsePlan(text string) (Plan, error) {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}
	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return Plan{}, fmt.Errorf("failed to decode plan: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return Plan{}, fmt.Errorf("plan has no tasks")
	}
	for i, t := range plan.Tasks {
		if strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Description) == "" {
			return Plan{}, fmt.Errorf("task %d has no title or description", i+1)
		}
	}
	return plan, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
