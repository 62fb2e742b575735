package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elvecinito/vecinito-server/internal/agent"
	"github.com/elvecinito/vecinito-server/internal/catalog"
	"github.com/elvecinito/vecinito-server/internal/coalesce"
	"github.com/elvecinito/vecinito-server/internal/llm"
)

// apologyReply answers a coalesced batch whose upstream call failed.
const apologyReply = "Uy veci, se me enredó la cabeza un momento. Mientras tanto, mira estos productos:"

type chatRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"userId"`
	Agent  string `json:"agent,omitempty"`
}

type chatResponse struct {
	Response    string   `json:"response"`
	Images      []string `json:"images"`
	Visto       bool     `json:"visto,omitempty"`
	Escribiendo bool     `json:"escribiendo,omitempty"`
}

// Chat answers one user message. With coalescing enabled the request waits
// for the quiet period; a caller displaced by a newer message from the same
// user receives a typing notice instead of a reply.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" || strings.TrimSpace(req.UserID) == "" {
		Error(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	if h.buffer == nil {
		h.chatDirect(w, r, req)
		return
	}

	outcome := h.buffer.Submit(req.UserID, req.Prompt, req.Agent)
	select {
	case <-r.Context().Done():
		// Client gone. The flush still runs and records the transcript; the
		// outcome is simply dropped.
		return
	case out := <-outcome:
		if out.Superseded {
			JSON(w, http.StatusOK, chatResponse{
				Response:    msgStillTyping,
				Images:      []string{},
				Visto:       true,
				Escribiendo: true,
			})
			return
		}
		if out.Err != nil {
			h.writeChatError(w, req.Agent, out.Err)
			return
		}
		JSON(w, http.StatusOK, chatResponse{
			Response: out.Reply.Response,
			Images:   nonNil(out.Reply.Images),
		})
	}
}

func (h *Handler) chatDirect(w http.ResponseWriter, r *http.Request, req chatRequest) {
	reply, err := h.coord.HandleMessage(r.Context(), req.UserID, req.Prompt, req.Agent)
	if err != nil {
		h.writeChatError(w, req.Agent, err)
		return
	}
	JSON(w, http.StatusOK, chatResponse{
		Response: reply.Response,
		Images:   nonNil(reply.Images),
	})
}

func (h *Handler) writeChatError(w http.ResponseWriter, agentID string, err error) {
	Error(w, http.StatusInternalServerError, chatErrorMessage(h.coord, agentID, err))
}

// chatErrorMessage maps a coordinator error to its Spanish client-facing body.
func chatErrorMessage(coord *agent.Coordinator, agentID string, err error) string {
	switch {
	case errors.Is(err, agent.ErrPromptUnavailable):
		return fmt.Sprintf(msgConfigLoad, coord.AgentOrDefault(agentID))
	case errors.Is(err, llm.ErrEmptyResponse):
		return msgEmptyResponse
	default:
		return msgUpstreamFailure
	}
}

// DegradedFlush runs the coordinator for a coalesced batch. Upstream failures
// degrade to an apology plus a few random product suggestions so the waiting
// caller never sees a bare error after sitting out the quiet period.
// Prompt-config failures stay as errors: suggesting products cannot fix a
// missing agent.
func DegradedFlush(coord *agent.Coordinator, picker *catalog.Picker) coalesce.FlushFunc {
	return func(ctx context.Context, userID, combined, agentID string) (agent.Reply, error) {
		reply, err := coord.HandleMessage(ctx, userID, combined, agentID)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, agent.ErrPromptUnavailable) {
			return agent.Reply{}, err
		}
		slog.Warn("Coalesced flush degraded to catalog suggestion", "user_id", userID, "error", err)
		return agent.Reply{
			Response: apologyReply,
			Images:   picker.Pick(userID, defaultRandomCount),
		}, nil
	}
}
