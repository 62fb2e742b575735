package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/elvecinito/vecinito-server/internal/domain"
)

// Groq talks to the Groq-hosted OpenAI-compatible chat completions API.
type Groq struct {
	baseURL    string
	model      string
	apiKey     func() string
	httpClient *http.Client
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// NewGroq creates a Groq client. The credential is resolved through apiKey on
// every call, so a missing key fails the request, not the process start.
func NewGroq(baseURL, model string, apiKey func() string, timeout time.Duration) *Groq {
	meter := otel.Meter("llm")
	duration, err := meter.Float64Histogram(
		"llm.request.duration",
		metric.WithDescription("Inference API request duration in milliseconds"),
	)
	if err != nil {
		slog.Warn("Failed to create request duration histogram", "error", err)
	}
	return &Groq{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("llm"),
		duration:   duration,
	}
}

// completionResponse is the subset of the OpenAI-compatible response we read.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends the conversation and extracts choices[0].message.content.
func (c *Groq) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	ctx, span := c.tracer.Start(ctx, "groq_api_call")
	defer span.End()

	key := c.apiKey()
	if key == "" {
		return "", fmt.Errorf("%w: GROQ_API_KEY not set", ErrUpstream)
	}

	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/openai/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}

	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(raw))
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrUpstream, err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}
