package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"calassist/internal/models"
)

const systemPrompt = "You are a scheduling assistant using strict JSON output that must " +
	"validate against the provided schema. Use the timezone unless specified."

const userTemplate = "Instruction:\n%s\n\nNow = %s\nTimezone = %s\n" +
	"Return ONLY valid JSON of the form {\"candidates\": [event, ...]}."

// Options configures an OpenAI-compatible provider. Host must point at the
// API root, e.g. https://api.openai.com/v1.
type Options struct {
	Name        string
	Host        string
	APIKey      string
	Model       string
	Temperature float64
	Headers     map[string]string
}

// OpenAI talks to an OpenAI-compatible chat completions endpoint and parses
// the structured suggestion payload out of the reply.
type OpenAI struct {
	client      *resty.Client
	logger      *slog.Logger
	name        string
	model       string
	temperature float64
}

// NewOpenAI creates a provider from the given options.
func NewOpenAI(logger *slog.Logger, opts Options) *OpenAI {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.Host, "/")).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(opts.APIKey).
		SetTimeout(60 * time.Second)
	for key, value := range opts.Headers {
		client.SetHeader(key, value)
	}
	return &OpenAI{
		client:      client,
		logger:      logger,
		name:        opts.Name,
		model:       opts.Model,
		temperature: opts.Temperature,
	}
}

func (p *OpenAI) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type suggestionPayload struct {
	Candidates []models.EventDraft `json:"candidates"`
}

// SuggestEvents requests candidates for the instruction. Every failure mode
// is wrapped in ErrUnavailable; an empty-but-wellformed reply yields nil.
func (p *OpenAI) SuggestEvents(ctx context.Context, instruction, nowISO, timezone string) ([]models.EventDraft, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userTemplate, instruction, nowISO, timezone)},
		},
		Temperature:    p.temperature,
		MaxTokens:      1200,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var reply chatResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&reply).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: chat completion returned %s", ErrUnavailable, resp.Status())
	}
	if len(reply.Choices) == 0 {
		p.logger.Warn("LLM returned no choices.", "provider", p.name)
		return nil, nil
	}

	var payload suggestionPayload
	content := stripFences(reply.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding suggestion payload: %v", ErrUnavailable, err)
	}
	p.logger.Debug("Received candidates from LLM.", "provider", p.name, "count", len(payload.Candidates))
	return payload.Candidates, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even when asked for bare JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
