package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elvecinito/vecinito-server/internal/catalog"
	"github.com/elvecinito/vecinito-server/internal/domain"
	"github.com/elvecinito/vecinito-server/internal/session"
)

// fakeLLM returns a scripted reply and records the messages it was sent.
type fakeLLM struct {
	reply string
	err   error
	calls [][]domain.Message
}

func (f *fakeLLM) Chat(_ context.Context, messages []domain.Message) (string, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestCoordinator(t *testing.T, client *fakeLLM) (*Coordinator, *session.MemoryStore) {
	t.Helper()

	root := t.TempDir()
	for size, names := range map[string][]string{
		"pequeño": {"p1.jpg", "p2.jpg"},
		"mediano": {"m1.jpg"},
		"grande":  {"g1.jpg"},
	} {
		dir := filepath.Join(root, size)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
	}

	agentDir := t.TempDir()
	promptFile := filepath.Join(agentDir, "el-vecinito-ModelFile.txt")
	if err := os.WriteFile(promptFile, []byte("Eres El Vecinito, el tendero del barrio."), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	store := session.NewMemoryStore()
	coord := NewCoordinator(store, catalog.NewIndex(root), client, NewPromptLoader(agentDir), "el-vecinito")
	return coord, store
}

func TestProductRequestAllSizes(t *testing.T) {
	client := &fakeLLM{}
	coord, _ := newTestCoordinator(t, client)

	reply, err := coord.HandleMessage(context.Background(), "u1", "quiero ver sus kits", "")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(reply.Images) != 4 {
		t.Errorf("expected images from all sizes, got %d", len(reply.Images))
	}
	if len(client.calls) != 0 {
		t.Error("product path must not call the inference API")
	}
}

func TestProductRequestExplicitSizePersisted(t *testing.T) {
	client := &fakeLLM{}
	coord, store := newTestCoordinator(t, client)

	reply, err := coord.HandleMessage(context.Background(), "u1", "un botiquin mediano", "")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	for _, img := range reply.Images {
		if !strings.Contains(img, "/mediano/") {
			t.Errorf("image outside mediano folder: %q", img)
		}
	}
	if size, ok := store.LastSize("u1"); !ok || size != "mediano" {
		t.Errorf("expected remembered size mediano, got %q (ok=%v)", size, ok)
	}
}

func TestProductRequestRemembersSize(t *testing.T) {
	client := &fakeLLM{}
	coord, store := newTestCoordinator(t, client)
	store.SetLastSize("u1", "mediano")

	reply, err := coord.HandleMessage(context.Background(), "u1", "muéstrame los kits", "")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	for _, img := range reply.Images {
		if !strings.Contains(img, "/mediano/") {
			t.Errorf("expected remembered mediano images, got %q", img)
		}
	}

	// An explicit mention overwrites the remembered size.
	if _, err := coord.HandleMessage(context.Background(), "u1", "mejor el kit grande", ""); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if size, _ := store.LastSize("u1"); size != "grande" {
		t.Errorf("expected size overwritten to grande, got %q", size)
	}
}

func TestChatAppendsTranscriptAndCleansReply(t *testing.T) {
	client := &fakeLLM{reply: "*se acomoda la gorra* ¡Buenas, veci! *sonríe*  "}
	coord, store := newTestCoordinator(t, client)

	reply, err := coord.HandleMessage(context.Background(), "u1", "hola, cómo va todo", "")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Response != "¡Buenas, veci!" {
		t.Errorf("unexpected cleaned reply: %q", reply.Response)
	}

	transcript := store.Transcript("u1")
	if len(transcript) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(transcript))
	}
	if transcript[0].Role != domain.RoleUser || transcript[0].Content != "hola, cómo va todo" {
		t.Errorf("unexpected user entry: %+v", transcript[0])
	}
	if transcript[1].Role != domain.RoleAssistant || transcript[1].Content != "¡Buenas, veci!" {
		t.Errorf("unexpected assistant entry: %+v", transcript[1])
	}
}

func TestChatSendsSystemPromptFirst(t *testing.T) {
	client := &fakeLLM{reply: "hola"}
	coord, _ := newTestCoordinator(t, client)

	if _, err := coord.HandleMessage(context.Background(), "u1", "buenas tardes", ""); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 upstream call, got %d", len(client.calls))
	}
	sent := client.calls[0]
	if sent[0].Role != domain.RoleSystem || !strings.Contains(sent[0].Content, "El Vecinito") {
		t.Errorf("expected system prompt first, got %+v", sent[0])
	}
	if sent[len(sent)-1].Content != "buenas tardes" {
		t.Errorf("expected user message last, got %+v", sent[len(sent)-1])
	}
}

func TestChatUnknownAgent(t *testing.T) {
	client := &fakeLLM{reply: "hola"}
	coord, _ := newTestCoordinator(t, client)

	_, err := coord.HandleMessage(context.Background(), "u1", "buenas", "no-such-agent")
	if !errors.Is(err, ErrPromptUnavailable) {
		t.Fatalf("expected ErrPromptUnavailable, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Error("must not call upstream without a system prompt")
	}
}

func TestChatUpstreamErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	client := &fakeLLM{err: wantErr}
	coord, store := newTestCoordinator(t, client)

	_, err := coord.HandleMessage(context.Background(), "u1", "buenas", "")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	// The user message is recorded even when the upstream call fails, so the
	// model sees it on the next attempt.
	if len(store.Transcript("u1")) != 1 {
		t.Errorf("expected user message kept in transcript, got %d entries", len(store.Transcript("u1")))
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct{ in, want string }{
		{"*tose* hola *guiña*", "hola"},
		{"  sin adornos  ", "sin adornos"},
		{"*todo era escena*", ""},
		{"a*b", "a*b"},
	}
	for _, tt := range tests {
		if got := CleanReply(tt.in); got != tt.want {
			t.Errorf("CleanReply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
