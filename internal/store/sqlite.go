package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

// SQLite implements Store on a single database file. Timestamps are stored
// as unix milliseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dbPath and ensures the schema.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db path: %w", err)
	}

	// busy_timeout waits on locks, WAL lets readers run during a write,
	// foreign_keys enables the ON DELETE CASCADE clauses.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		filepath.Clean(dbPath))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS perfis (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES perfis(id) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);

		CREATE TABLE IF NOT EXISTS capturas (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id        TEXT NOT NULL REFERENCES perfis(id) ON DELETE CASCADE,
			especie_peixe  TEXT NOT NULL,
			peso_kg        REAL,
			tamanho_cm     REAL,
			isca_utilizada TEXT,
			observacoes    TEXT,
			image_url      TEXT,
			is_public      INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_capturas_user_created ON capturas (user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_capturas_public_created ON capturas (is_public, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCatch(row rowScanner, extra ...any) (models.CatchRecord, error) {
	var (
		c       models.CatchRecord
		created int64
	)
	dest := append([]any{
		&c.ID, &c.UserID, &c.Species, &c.WeightKg, &c.LengthCm,
		&c.Bait, &c.Notes, &c.PhotoURL, &c.IsPublic, &created,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.CatchRecord{}, err
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

func (s *SQLite) ListByOwner(ctx context.Context, userID string) ([]models.CatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+catchColumns+` FROM capturas c
		 WHERE c.user_id = ?
		 ORDER BY c.created_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query catches: %w", err)
	}
	defer rows.Close()

	out := []models.CatchRecord{}
	for rows.Next() {
		c, err := scanSQLiteCatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catch: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catches: %w", err)
	}
	return out, nil
}

func (s *SQLite) ListPublic(ctx context.Context) ([]models.PublicCatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+catchColumns+`, u.username FROM capturas c
		 JOIN perfis u ON u.id = c.user_id
		 WHERE c.is_public = 1
		 ORDER BY c.created_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query public catches: %w", err)
	}
	defer rows.Close()

	out := []models.PublicCatch{}
	for rows.Next() {
		var username string
		c, err := scanSQLiteCatch(rows, &username)
		if err != nil {
			return nil, fmt.Errorf("scan public catch: %w", err)
		}
		out = append(out, models.PublicCatch{CatchRecord: c, Username: username})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public catches: %w", err)
	}
	return out, nil
}

func (s *SQLite) InsertCatch(ctx context.Context, nc NewCatch) (models.CatchRecord, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO capturas (user_id, especie_peixe, peso_kg, tamanho_cm,
		 isca_utilizada, observacoes, image_url, is_public, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nc.UserID, nc.Species, nc.WeightKg, nc.LengthCm,
		nc.Bait, nc.Notes, nc.PhotoURL, nc.IsPublic, toMillis(now))
	if err != nil {
		return models.CatchRecord{}, fmt.Errorf("insert catch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.CatchRecord{}, fmt.Errorf("insert catch id: %w", err)
	}
	return models.CatchRecord{
		ID:        id,
		UserID:    nc.UserID,
		Species:   nc.Species,
		WeightKg:  nc.WeightKg,
		LengthCm:  nc.LengthCm,
		Bait:      nc.Bait,
		Notes:     nc.Notes,
		PhotoURL:  nc.PhotoURL,
		IsPublic:  nc.IsPublic,
		CreatedAt: fromMillis(toMillis(now)),
	}, nil
}

func (s *SQLite) DeleteCatch(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM capturas WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete catch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete catch rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO perfis (id, email, username, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, toMillis(u.CreatedAt))
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM perfis WHERE email = ?`, email))
}

func (s *SQLite) UserByID(ctx context.Context, id string) (models.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM perfis WHERE id = ?`, id))
}

func scanSQLiteUser(row *sql.Row) (models.User, error) {
	var (
		u       models.User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (s *SQLite) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, toMillis(sess.ExpiresAt), toMillis(sess.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLite) SessionByID(ctx context.Context, id string) (models.Session, error) {
	var (
		sess             models.Session
		expires, created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &expires, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.ExpiresAt = fromMillis(expires)
	sess.CreatedAt = fromMillis(created)
	return sess, nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func isSQLiteConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
