package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elvecinito/vecinito-server/internal/llm"
)

func postChat(t *testing.T, env *testEnv, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestChatDirectReturnsModelReply(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "¡Buenas, veci! ¿En qué te ayudo?"}, 0)

	w := postChat(t, env, `{"prompt": "hola", "userId": "u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body chatResponse
	decodeBody(t, w, &body)
	if body.Response != "¡Buenas, veci! ¿En qué te ayudo?" {
		t.Errorf("unexpected response: %q", body.Response)
	}
	if body.Images == nil || len(body.Images) != 0 {
		t.Errorf("chat reply should carry an empty image list, got %v", body.Images)
	}
	if got := len(env.sessions.Transcript("u1")); got != 2 {
		t.Errorf("expected user+assistant in transcript, got %d messages", got)
	}
}

func TestChatProductKeywordSkipsModel(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{}, 0)

	w := postChat(t, env, `{"prompt": "tienes kits grandes?", "userId": "u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body chatResponse
	decodeBody(t, w, &body)
	if len(body.Images) != 1 || !strings.Contains(body.Images[0], "/grande/") {
		t.Errorf("expected the grande catalog, got %v", body.Images)
	}
	if env.llm.callCount() != 0 {
		t.Error("product requests must not reach the model")
	}
}

func TestChatMissingFields(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{}, 0)

	for _, body := range []string{
		`{"prompt": "hola"}`,
		`{"userId": "u1"}`,
		`{"prompt": "  ", "userId": "u1"}`,
		`not json`,
	} {
		w := postChat(t, env, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
			continue
		}
		var resp struct {
			Error string `json:"error"`
		}
		decodeBody(t, w, &resp)
		if resp.Error != "Faltan datos: prompt y userId son requeridos" {
			t.Errorf("body %q: unexpected error %q", body, resp.Error)
		}
	}

	if env.sessions.Len() != 0 {
		t.Error("rejected requests must not create sessions")
	}
	if env.llm.callCount() != 0 {
		t.Error("rejected requests must not reach the model")
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{err: llm.ErrUpstream}, 0)

	w := postChat(t, env, `{"prompt": "hola", "userId": "u1"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Error al comunicarse con el modelo") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestChatEmptyModelReply(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "*se rasca la cabeza*"}, 0)

	w := postChat(t, env, `{"prompt": "hola", "userId": "u1"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No se pudo construir respuesta del modelo") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestChatUnknownAgentReportsConfigError(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "hola"}, 0)

	w := postChat(t, env, `{"prompt": "hola", "userId": "u1", "agent": "el-fantasma"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No se pudo cargar configuración de el-fantasma") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
	if env.llm.callCount() != 0 {
		t.Error("missing agent config must not reach the model")
	}
}

func TestChatCoalescedSupersededCaller(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "respuesta final"}, 80*time.Millisecond)

	type result struct {
		code int
		body chatResponse
	}
	results := make(chan result, 1)
	go func() {
		w := postChat(t, env, `{"prompt": "hola", "userId": "u1"}`)
		var body chatResponse
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		results <- result{w.Code, body}
	}()

	time.Sleep(20 * time.Millisecond)
	second := postChat(t, env, `{"prompt": "tienes algo bueno?", "userId": "u1"}`)

	first := <-results
	if first.code != http.StatusOK {
		t.Fatalf("superseded caller status = %d", first.code)
	}
	if !first.body.Visto || !first.body.Escribiendo {
		t.Errorf("superseded caller should get visto/escribiendo flags, got %+v", first.body)
	}

	if second.Code != http.StatusOK {
		t.Fatalf("final caller status = %d", second.Code)
	}
	var final chatResponse
	decodeBody(t, second, &final)
	if final.Response != "respuesta final" {
		t.Errorf("final caller should get the model reply, got %q", final.Response)
	}
	if env.llm.callCount() != 1 {
		t.Errorf("expected 1 model call for the merged batch, got %d", env.llm.callCount())
	}
}

func TestChatCoalescedFailureDegradesToCatalog(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{err: errors.New("connection refused")}, 30*time.Millisecond)

	w := postChat(t, env, `{"prompt": "hola", "userId": "u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("degraded reply status = %d, want 200", w.Code)
	}

	var body chatResponse
	decodeBody(t, w, &body)
	if body.Response == "" {
		t.Error("degraded reply must carry an apology text")
	}
	if len(body.Images) == 0 {
		t.Error("degraded reply must suggest catalog images")
	}
}
