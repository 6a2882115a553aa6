package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/postcards"
)

// Source is the read side of the postcard store.
type Source interface {
	List(ctx context.Context) ([]models.Postcard, error)
	Get(ctx context.Context, id string) (*models.Postcard, error)
}

// SyncStats summarizes one Sync pass.
type SyncStats struct {
	Written   int
	Unchanged int
	Removed   int
}

// Mirror keeps one Markdown file per postcard in an FS.
//
// mu serializes every load-and-write, so a file written for an update can
// never land after the delete of the same postcard removed it.
type Mirror struct {
	mu     sync.Mutex
	fs     *FS
	src    Source
	logger *slog.Logger
}

// NewMirror creates a mirror writing into fs.
func NewMirror(fs *FS, src Source, logger *slog.Logger) *Mirror {
	return &Mirror{fs: fs, src: src, logger: logger}
}

// Sync brings the directory up to date with the store:
//   - new or changed postcards are written
//   - files of postcards that no longer exist are removed
func (m *Mirror) Sync(ctx context.Context) (SyncStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats SyncStats

	items, err := m.src.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("vault: sync list: %w", err)
	}
	files, err := m.fs.List()
	if err != nil {
		return stats, err
	}
	onDisk := make(map[string]string, len(files))
	for _, f := range files {
		onDisk[f.Name] = f.Checksum
	}

	live := make(map[string]struct{}, len(items))
	for _, p := range items {
		name := FileName(p.ID)
		live[name] = struct{}{}

		data, err := Encode(p)
		if err != nil {
			return stats, err
		}
		if onDisk[name] == digest(data) {
			stats.Unchanged++
			continue
		}
		if err := m.fs.Write(name, data); err != nil {
			return stats, err
		}
		stats.Written++
	}

	for name := range onDisk {
		if _, ok := live[name]; ok {
			continue
		}
		if err := m.fs.Delete(name); err != nil {
			m.logger.Warn("vault: remove stale failed", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
	}
	return stats, nil
}

// PublishPostcardEvent mirrors a single change. Failures are logged; the
// store stays the system of record and the next Sync repairs the file.
func (m *Mirror) PublishPostcardEvent(kind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := FileName(id)
	if kind == postcards.KindDeleted {
		if err := m.fs.Delete(name); err != nil {
			m.logger.Warn("vault: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		return
	}

	p, err := m.src.Get(context.Background(), id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			m.logger.Warn("vault: load failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		return
	}
	data, err := Encode(*p)
	if err != nil {
		m.logger.Warn("vault: encode failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	if err := m.fs.Write(name, data); err != nil {
		m.logger.Warn("vault: write failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	m.logger.Debug("vault: mirrored", slog.String("id", id), slog.String("op", kind))
}
