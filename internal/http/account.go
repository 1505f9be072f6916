package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/lunar-fishing-service/internal/auth"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
	"github.com/kjstillabower/lunar-fishing-service/internal/validation"
)

const maxJSONBody = 64 << 10

type signUpRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: request body is empty", validation.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON body", validation.ErrInvalidInput)
	}
	return nil
}

// PostSignUp handles POST /api/auth/signup. The new account is signed in.
func (h *Handler) PostSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	u, err := h.auth.SignUp(r.Context(), validation.SignUpForm{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.LoggerFrom(r.Context()).Info("account created", zap.String("user_id", u.ID))

	sess, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": u, "expiresAt": sess.ExpiresAt})
}

// PostSignIn handles POST /api/auth/signin.
func (h *Handler) PostSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": sess.User, "expiresAt": sess.ExpiresAt})
}

// PostSignOut handles POST /api/auth/signout. It always clears the cookie.
func (h *Handler) PostSignOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if err := h.auth.SignOut(r.Context(), c.Value); err != nil {
			observability.LoggerFrom(r.Context()).Warn("sign out failed", zap.Error(err))
		}
	}
	h.setSessionCookie(w, "", time.Unix(0, 0))
	w.WriteHeader(http.StatusNoContent)
}

// GetMe handles GET /api/auth/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		writeServiceError(w, r, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}

// setSessionCookie writes the session cookie; an empty token deletes it.
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
