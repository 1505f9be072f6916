// Package store persists users, sessions and catches. Postgres (pgx) is the
// production backend; SQLite (modernc) serves local runs and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

var (
	// ErrNotFound is returned when a lookup or an owner-scoped delete matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique column (email, username) is taken.
	ErrConflict = errors.New("already exists")
)

// NewCatch is a catch row to insert. Optional columns are nil when absent.
type NewCatch struct {
	UserID   string
	Species  string
	WeightKg *float64
	LengthCm *float64
	Bait     *string
	Notes    *string
	PhotoURL *string
	IsPublic bool
}

// CatchRepository stores catch records. Delete only removes a row owned by
// userID and returns ErrNotFound otherwise.
type CatchRepository interface {
	ListByOwner(ctx context.Context, userID string) ([]models.CatchRecord, error)
	ListPublic(ctx context.Context) ([]models.PublicCatch, error)
	InsertCatch(ctx context.Context, c NewCatch) (models.CatchRecord, error)
	DeleteCatch(ctx context.Context, userID string, id int64) error
}

// UserRepository stores accounts and their public profile.
type UserRepository interface {
	CreateUser(ctx context.Context, u models.User) error
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
}

// SessionRepository stores sign-in sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, s models.Session) error
	SessionByID(ctx context.Context, id string) (models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	CatchRepository
	UserRepository
	SessionRepository
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)
