package llm

import (
	"bufio"
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

// maxStreamLine bounds a single NDJSON line from the stream.
const maxStreamLine = 1 << 20 // 1MB

// Ollama talks to a local Ollama instance via POST /api/chat with streaming
// enabled.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// NewOllama creates an Ollama client. The timeout bounds the whole request,
// including reading the stream.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	meter := otel.Meter("llm")
	duration, err := meter.Float64Histogram(
		"llm.request.duration",
		metric.WithDescription("Inference API request duration in milliseconds"),
	)
	if err != nil {
		slog.Warn("Failed to create request duration histogram", "error", err)
	}
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("llm"),
		duration:   duration,
	}
}

// streamChunk is one line of Ollama's newline-delimited response.
type streamChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Chat sends the conversation and concatenates the streamed reply fragments.
// Lines that fail to parse as JSON are skipped, not treated as errors.
func (c *Ollama) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ollama_api_call")
	defer span.End()

	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(errBody))
	}

	reply, err := readStream(resp.Body)
	c.recordDuration(ctx, start)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}

// readStream concatenates message.content fragments from an NDJSON body.
func readStream(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)

	var reply strings.Builder
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Non-JSON lines carry nothing usable.
			continue
		}
		reply.WriteString(chunk.Message.Content)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: reading stream: %v", ErrUpstream, err)
	}
	return reply.String(), nil
}

func (c *Ollama) recordDuration(ctx context.Context, start time.Time) {
	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
}
