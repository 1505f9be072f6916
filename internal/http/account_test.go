package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

func (e *testEnv) postJSON(path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, cookies...)
}

// signUp registers an account and returns its session cookie.
func (e *testEnv) signUp(t *testing.T, email, username string) *http.Cookie {
	t.Helper()
	w := e.postJSON("/api/auth/signup",
		`{"email":"`+email+`","username":"`+username+`","password":"segredo123"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d (body %s)", w.Code, w.Body.String())
	}
	c := cookieNamed(w, SessionCookie)
	if c == nil || c.Value == "" {
		t.Fatal("signup did not set a session cookie")
	}
	return c
}

func TestAccount_SignUpMeSignOut(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON("/api/auth/signup", `{"email":" Pescador@Example.com ","username":"pescador42","password":"segredo123"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "segredo123") || strings.Contains(w.Body.String(), "$2a$") {
		t.Error("response leaks the password or its hash")
	}
	session := cookieNamed(w, SessionCookie)
	if session == nil || !session.HttpOnly || session.SameSite != http.SameSiteLaxMode {
		t.Fatalf("session cookie = %+v", session)
	}

	w = env.get("/api/auth/me", session)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200", w.Code)
	}
	var me struct {
		User models.User `json:"user"`
	}
	decodeBody(t, w, &me)
	if me.User.Email != "pescador@example.com" || me.User.Username != "pescador42" {
		t.Errorf("user = %+v", me.User)
	}

	w = env.do(httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil), session)
	if w.Code != http.StatusNoContent {
		t.Fatalf("signout status = %d, want 204", w.Code)
	}
	if c := cookieNamed(w, SessionCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("signout cookie = %+v, want deletion", c)
	}

	assertError(t, env.get("/api/auth/me", session), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestAccount_SignIn(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "pescador@example.com", "pescador42")

	assertError(t, env.postJSON("/api/auth/signin", `{"email":"pescador@example.com","password":"errada123"}`),
		http.StatusUnauthorized, "UNAUTHORIZED")
	assertError(t, env.postJSON("/api/auth/signin", `{"email":"ninguem@example.com","password":"segredo123"}`),
		http.StatusUnauthorized, "UNAUTHORIZED")

	w := env.postJSON("/api/auth/signin", `{"email":"PESCADOR@example.com","password":"segredo123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if cookieNamed(w, SessionCookie) == nil {
		t.Error("signin did not set a session cookie")
	}
}

func TestAccount_SignUpRejected(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "pescador@example.com", "pescador42")

	tests := []struct {
		name     string
		body     string
		status   int
		wantCode string
	}{
		{"duplicate email", `{"email":"Pescador@example.com","username":"outro","password":"segredo123"}`, http.StatusConflict, "ACCOUNT_EXISTS"},
		{"invalid email", `{"email":"not-an-email","username":"outro","password":"segredo123"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"short password", `{"email":"outro@example.com","username":"outro","password":"curta"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed json", `{"email":`, http.StatusBadRequest, "INVALID_INPUT"},
		{"empty body", ``, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, env.postJSON("/api/auth/signup", tt.body), tt.status, tt.wantCode)
		})
	}
}

func TestAccount_UnknownSessionIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	stale := &http.Cookie{Name: SessionCookie, Value: "bm90LWEtcmVhbC10b2tlbg"}
	assertError(t, env.get("/api/auth/me", stale), http.StatusUnauthorized, "UNAUTHORIZED")
	if w := env.get("/api/moon", stale); w.Code != http.StatusOK {
		t.Errorf("public route with stale session: status %d", w.Code)
	}
}
