package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store with pgx.
type Postgres struct {
	db   DBTX
	pool *pgxpool.Pool // nil when built from a bare DBTX
}

// NewPostgres wraps an existing connection or transaction.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres migrates the schema and opens a connection pool.
func OpenPostgres(ctx context.Context, databaseURL string, maxConns int32) (*Postgres, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: pool, pool: pool}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

const catchColumns = `c.id, c.user_id, c.especie_peixe, c.peso_kg, c.tamanho_cm,
	c.isca_utilizada, c.observacoes, c.image_url, c.is_public, c.created_at`

func catchDest(c *models.CatchRecord) []any {
	return []any{
		&c.ID, &c.UserID, &c.Species, &c.WeightKg, &c.LengthCm,
		&c.Bait, &c.Notes, &c.PhotoURL, &c.IsPublic, &c.CreatedAt,
	}
}

func (p *Postgres) ListByOwner(ctx context.Context, userID string) ([]models.CatchRecord, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+catchColumns+` FROM capturas c
		 WHERE c.user_id = $1
		 ORDER BY c.created_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query catches: %w", err)
	}
	defer rows.Close()

	out := []models.CatchRecord{}
	for rows.Next() {
		var c models.CatchRecord
		if err := rows.Scan(catchDest(&c)...); err != nil {
			return nil, fmt.Errorf("scan catch: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catches: %w", err)
	}
	return out, nil
}

func (p *Postgres) ListPublic(ctx context.Context) ([]models.PublicCatch, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+catchColumns+`, u.username FROM capturas c
		 JOIN perfis u ON u.id = c.user_id
		 WHERE c.is_public
		 ORDER BY c.created_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query public catches: %w", err)
	}
	defer rows.Close()

	out := []models.PublicCatch{}
	for rows.Next() {
		var pc models.PublicCatch
		if err := rows.Scan(append(catchDest(&pc.CatchRecord), &pc.Username)...); err != nil {
			return nil, fmt.Errorf("scan public catch: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public catches: %w", err)
	}
	return out, nil
}

func (p *Postgres) InsertCatch(ctx context.Context, nc NewCatch) (models.CatchRecord, error) {
	c := models.CatchRecord{
		UserID:   nc.UserID,
		Species:  nc.Species,
		WeightKg: nc.WeightKg,
		LengthCm: nc.LengthCm,
		Bait:     nc.Bait,
		Notes:    nc.Notes,
		PhotoURL: nc.PhotoURL,
		IsPublic: nc.IsPublic,
	}
	err := p.db.QueryRow(ctx,
		`INSERT INTO capturas (user_id, especie_peixe, peso_kg, tamanho_cm,
		 isca_utilizada, observacoes, image_url, is_public)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		nc.UserID, nc.Species, nc.WeightKg, nc.LengthCm,
		nc.Bait, nc.Notes, nc.PhotoURL, nc.IsPublic,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return models.CatchRecord{}, fmt.Errorf("insert catch: %w", err)
	}
	return c, nil
}

func (p *Postgres) DeleteCatch(ctx context.Context, userID string, id int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM capturas WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete catch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, u models.User) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO perfis (id, email, username, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, username, password_hash, created_at`

func (p *Postgres) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return p.scanUser(p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM perfis WHERE email = $1`, email))
}

func (p *Postgres) UserByID(ctx context.Context, id string) (models.User, error) {
	return p.scanUser(p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM perfis WHERE id = $1`, id))
}

func (p *Postgres) scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (p *Postgres) CreateSession(ctx context.Context, s models.Session) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *Postgres) SessionByID(ctx context.Context, id string) (models.Session, error) {
	var s models.Session
	err := p.db.QueryRow(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// isUniqueViolation reports a PostgreSQL unique constraint violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
