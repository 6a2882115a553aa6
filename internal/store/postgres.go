package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/store/migrations"
)

// Postgres implements Repository on PostgreSQL through the pgx stdlib driver.
type Postgres struct {
	conn *sql.DB
}

var _ Repository = (*Postgres)(nil)

// Migrate applies the embedded goose migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// OpenPostgres connects to dsn and runs pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return NewPostgres(conn), nil
}

// NewPostgres wraps an already migrated connection.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{conn: conn}
}

func (s *Postgres) List(ctx context.Context) ([]models.Postcard, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM postcards ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return collect(rows)
}

func (s *Postgres) Get(ctx context.Context, id string) (*models.Postcard, error) {
	p, err := scanPostcard(s.conn.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM postcards WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return p, nil
}

func (s *Postgres) Insert(ctx context.Context, p *models.Postcard) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO postcards (id, reference, text, tags, commentary, personal_thoughts, questions, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
	`, p.ID, p.Reference, p.Text, tags,
		toNullString(p.Commentary), toNullString(p.PersonalThoughts), toNullString(p.Questions),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", p.ID, err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, p *models.Postcard) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	err = s.conn.QueryRowContext(ctx, `
		UPDATE postcards SET
			reference         = $2,
			text              = $3,
			tags              = $4::jsonb,
			commentary        = $5,
			personal_thoughts = $6,
			questions         = $7,
			updated_at        = $8
		WHERE id = $1
		RETURNING created_at
	`, p.ID, p.Reference, p.Text, tags,
		toNullString(p.Commentary), toNullString(p.PersonalThoughts), toNullString(p.Questions),
		p.UpdatedAt).Scan(&p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: update %s: %w", p.ID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM postcards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return affectedOne(res, id)
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.conn.Close()
}
