package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/elvecinito/vecinito-server/internal/catalog"
	"github.com/elvecinito/vecinito-server/internal/domain"
	"github.com/elvecinito/vecinito-server/internal/llm"
	"github.com/elvecinito/vecinito-server/internal/session"
)

// productKeywords trigger the catalog path instead of the inference API.
var productKeywords = []string{"kit", "kits", "botiquin", "botiquines", "producto"}

// stageDirections matches *...* annotations some models emit around replies.
var stageDirections = regexp.MustCompile(`\*[^*]+\*`)

// Reply is the coordinator's answer to one user message.
type Reply struct {
	Response string
	Images   []string
}

// Coordinator routes each incoming message either to the product catalog
// (keyword match) or to the inference API (free-form chat with per-user
// transcript).
type Coordinator struct {
	sessions     session.Store
	index        *catalog.Index
	client       llm.Client
	prompts      *PromptLoader
	defaultAgent string
}

// NewCoordinator wires the coordinator's collaborators.
func NewCoordinator(sessions session.Store, index *catalog.Index, client llm.Client, prompts *PromptLoader, defaultAgent string) *Coordinator {
	return &Coordinator{
		sessions:     sessions,
		index:        index,
		client:       client,
		prompts:      prompts,
		defaultAgent: defaultAgent,
	}
}

// AgentOrDefault resolves an empty agent id to the configured default.
func (c *Coordinator) AgentOrDefault(agentID string) string {
	if agentID == "" {
		return c.defaultAgent
	}
	return agentID
}

// HandleMessage processes one raw user message. agentID may be empty, in
// which case the configured default agent answers.
func (c *Coordinator) HandleMessage(ctx context.Context, userID, prompt, agentID string) (Reply, error) {
	agentID = c.AgentOrDefault(agentID)

	if isProductRequest(prompt) {
		return c.handleProductRequest(userID, prompt), nil
	}
	return c.handleChat(ctx, userID, prompt, agentID)
}

func isProductRequest(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, keyword := range productKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// handleProductRequest resolves the target size (explicit in the message,
// else remembered from the session, else all sizes) and returns catalog URLs.
// This path never touches the inference API.
func (c *Coordinator) handleProductRequest(userID, prompt string) Reply {
	size, explicit := catalog.DetectSize(prompt)
	if explicit {
		c.sessions.SetLastSize(userID, size)
	} else if remembered, ok := c.sessions.LastSize(userID); ok {
		size = remembered
	}

	if size == "" {
		return Reply{
			Response: "Claro veci..Aquí tienes todos nuestros kits y botiquines disponibles:",
			Images:   c.index.ListAll(),
		}
	}
	return Reply{
		Response: fmt.Sprintf("Claro veci...Aquí tienes nuestros productos tamaño %s:", size),
		Images:   c.index.ListBySize(size),
	}
}

// handleChat appends the message to the transcript, forwards system prompt +
// transcript upstream, cleans the reply, and records it.
func (c *Coordinator) handleChat(ctx context.Context, userID, prompt, agentID string) (Reply, error) {
	c.sessions.Append(userID, domain.UserMessage(prompt))

	systemPrompt, err := c.prompts.Load(agentID)
	if err != nil {
		slog.Error("Failed to load agent prompt", "agent", agentID, "error", err)
		return Reply{}, err
	}

	messages := append([]domain.Message{domain.SystemMessage(systemPrompt)}, c.sessions.Transcript(userID)...)

	raw, err := c.client.Chat(ctx, messages)
	if err != nil {
		return Reply{}, err
	}

	reply := CleanReply(raw)
	if reply == "" {
		return Reply{}, llm.ErrEmptyResponse
	}

	c.sessions.Append(userID, domain.AssistantMessage(reply))
	return Reply{Response: reply}, nil
}

// CleanReply strips *...* stage-direction annotations and surrounding
// whitespace from a model reply.
func CleanReply(raw string) string {
	return strings.TrimSpace(stageDirections.ReplaceAllString(raw, ""))
}
