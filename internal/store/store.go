// Package store persists postcards in a relational database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/starford/postcards/internal/models"
)

// Repository is the persistence boundary of the postcard service.
// Each write touches exactly one row and is atomic on its own.
type Repository interface {
	// List returns every postcard ordered by updated_at descending.
	List(ctx context.Context) ([]models.Postcard, error)
	// Get returns one postcard or apperr.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Postcard, error)
	// Insert stores a new postcard as given.
	Insert(ctx context.Context, p *models.Postcard) error
	// Update replaces the content fields and updated_at of p.ID and fills
	// p.CreatedAt from the stored row. Returns apperr.ErrNotFound for unknown ids.
	Update(ctx context.Context, p *models.Postcard) error
	// Delete removes the postcard or returns apperr.ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Ping checks the connection.
	Ping(ctx context.Context) error
	Close() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostcard(s rowScanner) (*models.Postcard, error) {
	var (
		p          models.Postcard
		tags       []byte
		commentary sql.NullString
		thoughts   sql.NullString
		questions  sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Reference, &p.Text, &tags, &commentary, &thoughts, &questions, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("store: decode tags of %s: %w", p.ID, err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.Commentary = nullableString(commentary)
	p.PersonalThoughts = nullableString(thoughts)
	p.Questions = nullableString(questions)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("store: encode tags: %w", err)
	}
	return string(b), nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func collect(rows *sql.Rows) ([]models.Postcard, error) {
	defer rows.Close()
	out := []models.Postcard{}
	for rows.Next() {
		p, err := scanPostcard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
