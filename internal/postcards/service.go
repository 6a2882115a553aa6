// Package postcards implements the postcard lifecycle on top of a store.Repository.
package postcards

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/store"
)

// Change kinds passed to a Notifier.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Notifier receives a callback after every successful write.
type Notifier interface {
	PublishPostcardEvent(kind, id string)
}

// MultiNotifier fans one event out to several notifiers in order.
type MultiNotifier []Notifier

// PublishPostcardEvent implements Notifier.
func (m MultiNotifier) PublishPostcardEvent(kind, id string) {
	for _, n := range m {
		if n != nil {
			n.PublishPostcardEvent(kind, id)
		}
	}
}

// Input carries the caller-controlled fields of a postcard. It is used for both
// create and update; on update every field replaces the stored value.
type Input struct {
	Reference        string
	Text             string
	Tags             []string
	Commentary       *string
	PersonalThoughts *string
	Questions        *string
}

// Validate trims Reference and Text in place and checks they are not empty.
func (in *Input) Validate() error {
	in.Reference = strings.TrimSpace(in.Reference)
	in.Text = strings.TrimSpace(in.Text)
	err := validation.ValidateStruct(in,
		validation.Field(&in.Reference, validation.Required),
		validation.Field(&in.Text, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// Service coordinates validation, identity, timestamps, and persistence.
type Service struct {
	repo     store.Repository
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier registers a change listener.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a new postcard service.
func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every postcard, most recently updated first.
func (s *Service) List(ctx context.Context) ([]models.Postcard, error) {
	return s.repo.List(ctx)
}

// Get returns one postcard by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Postcard, error) {
	return s.repo.Get(ctx, id)
}

// Create validates in and stores a new postcard with createdAt == updatedAt.
func (s *Service) Create(ctx context.Context, in Input) (*models.Postcard, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.timestamp()
	p := &models.Postcard{
		ID:        s.newID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(p, in)
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}
	s.notify(KindCreated, p.ID)
	return p, nil
}

// Update replaces all content fields of id and refreshes updatedAt.
// Omitted optional notes become nil.
func (s *Service) Update(ctx context.Context, id string, in Input) (*models.Postcard, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := &models.Postcard{
		ID:        id,
		UpdatedAt: s.timestamp(),
	}
	apply(p, in)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	// A clock that stepped backwards must not leave updatedAt before createdAt.
	if p.UpdatedAt.Before(p.CreatedAt) {
		p.UpdatedAt = p.CreatedAt
		if err := s.repo.Update(ctx, p); err != nil {
			return nil, err
		}
	}
	s.notify(KindUpdated, p.ID)
	return p, nil
}

// Delete removes id permanently. Unknown ids yield apperr.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notify(KindDeleted, id)
	return nil
}

// Ping reports whether the underlying store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// timestamp is UTC with microsecond precision so values survive a
// PostgreSQL round trip unchanged.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) notify(kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishPostcardEvent(kind, id)
	}
}

func apply(p *models.Postcard, in Input) {
	p.Reference = in.Reference
	p.Text = in.Text
	p.Tags = in.Tags
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.Commentary = in.Commentary
	p.PersonalThoughts = in.PersonalThoughts
	p.Questions = in.Questions
}
