// Package agent implements the chat coordinator for the Vecinito assistant.
package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPromptUnavailable is returned when an agent's system-prompt file cannot
// be read. Fatal for the request, never retried.
var ErrPromptUnavailable = errors.New("agent configuration unavailable")

// PromptLoader reads per-agent system prompts. The prompt for agent "x" lives
// in "<dir>/x-ModelFile.txt" and is read on every request so edits take
// effect without a restart.
type PromptLoader struct {
	dir string
}

// NewPromptLoader creates a loader rooted at dir.
func NewPromptLoader(dir string) *PromptLoader {
	return &PromptLoader{dir: dir}
}

// Load returns the system prompt for the named agent.
func (l *PromptLoader) Load(agent string) (string, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, agent+"-ModelFile.txt"))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPromptUnavailable, agent, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("%w: %s: file is empty", ErrPromptUnavailable, agent)
	}
	return prompt, nil
}
