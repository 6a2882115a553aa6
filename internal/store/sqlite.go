package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS postcards (
	id                TEXT PRIMARY KEY,
	reference         TEXT NOT NULL,
	text              TEXT NOT NULL,
	tags              TEXT NOT NULL DEFAULT '[]',
	commentary        TEXT,
	personal_thoughts TEXT,
	questions         TEXT,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);
`

const selectColumns = `id, reference, text, tags, commentary, personal_thoughts, questions, created_at, updated_at`

// SQLite implements Repository on a local SQLite file.
type SQLite struct {
	conn *sql.DB
}

var _ Repository = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database file and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	if _, err := conn.Exec(sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) List(ctx context.Context) ([]models.Postcard, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM postcards ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return collect(rows)
}

func (s *SQLite) Get(ctx context.Context, id string) (*models.Postcard, error) {
	p, err := scanPostcard(s.conn.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM postcards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLite) Insert(ctx context.Context, p *models.Postcard) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO postcards (id, reference, text, tags, commentary, personal_thoughts, questions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Reference, p.Text, tags,
		toNullString(p.Commentary), toNullString(p.PersonalThoughts), toNullString(p.Questions),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, p *models.Postcard) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	err = s.conn.QueryRowContext(ctx, `
		UPDATE postcards SET
			reference         = ?,
			text              = ?,
			tags              = ?,
			commentary        = ?,
			personal_thoughts = ?,
			questions         = ?,
			updated_at        = ?
		WHERE id = ?
		RETURNING created_at
	`, p.Reference, p.Text, tags,
		toNullString(p.Commentary), toNullString(p.PersonalThoughts), toNullString(p.Questions),
		p.UpdatedAt, p.ID).Scan(sqliteTime{&p.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: update %s: %w", p.ID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM postcards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return affectedOne(res, id)
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func affectedOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected for %s: %w", id, err)
	}
	switch n {
	case 0:
		return apperr.ErrNotFound
	case 1:
		return nil
	default:
		return fmt.Errorf("store: unexpected rows affected for %s: %d", id, n)
	}
}

// sqliteTime scans a DATETIME column. The driver only converts to time.Time
// when it knows the declared column type, which RETURNING does not carry.
type sqliteTime struct {
	t *time.Time
}

func (st sqliteTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*st.t = v
		return nil
	case int64:
		*st.t = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return st.parse(string(v))
	case string:
		return st.parse(v)
	}
	return fmt.Errorf("store: cannot scan %T into time", src)
}

func (st sqliteTime) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*st.t = t
			return nil
		}
	}
	return fmt.Errorf("store: unrecognized timestamp %q", s)
}
