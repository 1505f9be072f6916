// Package auth handles accounts and sign-in sessions.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
	"github.com/kjstillabower/lunar-fishing-service/internal/store"
	"github.com/kjstillabower/lunar-fishing-service/internal/validation"
)

// DefaultSessionTTL is used when NewService gets a non-positive TTL.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not signed in")
	ErrAccountExists      = errors.New("email or username already registered")
)

// Repository is the persistence the auth service needs.
type Repository interface {
	store.UserRepository
	store.SessionRepository
}

// Service signs users up, in and out. Session tokens are random and only
// their SHA-256 digest is stored.
type Service struct {
	repo       Repository
	sessionTTL time.Duration
	cost       int
	now        func() time.Time
}

// NewService returns a Service. bcryptCost 0 uses bcrypt.DefaultCost.
func NewService(repo Repository, sessionTTL time.Duration, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{repo: repo, sessionTTL: sessionTTL, cost: bcryptCost, now: time.Now}
}

// SignUp validates the form and creates the account and its public profile.
func (s *Service) SignUp(ctx context.Context, form validation.SignUpForm) (u models.User, err error) {
	defer func() { observability.RecordAuthEvent("signup", err) }()

	if err := validation.ValidateSignUpForm(&form); err != nil {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	u = models.User{
		ID:           uuid.NewString(),
		Email:        form.Email,
		Username:     form.Username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.User{}, ErrAccountExists
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Session is an issued sign-in: the token to hand to the client and its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

// SignIn checks the credentials and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (sess Session, err error) {
	defer func() { observability.RecordAuthEvent("signin", err) }()

	u, err := s.repo.UserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	rec := models.Session{
		ID:        hashToken(token),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{Token: token, ExpiresAt: rec.ExpiresAt, User: u}, nil
}

// SignOut ends the session for token. Unknown tokens are not an error.
func (s *Service) SignOut(ctx context.Context, token string) (err error) {
	defer func() { observability.RecordAuthEvent("signout", err) }()
	if token == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, hashToken(token))
}

// CurrentUser resolves token to its user, or ErrUnauthenticated when the
// token is empty, unknown or expired.
func (s *Service) CurrentUser(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrUnauthenticated
	}
	sess, err := s.repo.SessionByID(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, ErrUnauthenticated
		}
		return models.User{}, fmt.Errorf("load session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		return models.User{}, ErrUnauthenticated
	}
	u, err := s.repo.UserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, ErrUnauthenticated
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// PurgeExpired deletes sessions past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
