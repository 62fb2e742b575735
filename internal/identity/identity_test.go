package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesCookie(t *testing.T) {
	var captured string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/imagenes", nil))

	if captured == "" {
		t.Fatal("expected a user ID in the request context")
	}

	cookies := w.Result().Cookies()
	found := false
	for _, c := range cookies {
		if c.Name == AnonCookieName && c.Value == captured {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s cookie matching context ID, got %v", AnonCookieName, cookies)
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	var first, second string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		second = UserIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	first = w.Result().Cookies()[0].Value

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: first})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if second != first {
		t.Errorf("expected identity %q reused, got %q", first, second)
	}
}

func TestMiddlewareRejectsGarbageCookie(t *testing.T) {
	var captured string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "not-a-uuid"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if captured == "not-a-uuid" {
		t.Error("garbage cookie value must be replaced with a fresh identity")
	}
	if captured == "" {
		t.Error("expected a fresh identity to be issued")
	}
}
