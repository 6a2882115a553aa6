package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/postcards"
)

// Writer is the write side of the postcard service used by imports.
type Writer interface {
	Get(ctx context.Context, id string) (*models.Postcard, error)
	Create(ctx context.Context, in postcards.Input) (*models.Postcard, error)
	Update(ctx context.Context, id string, in postcards.Input) (*models.Postcard, error)
}

// Import outcomes.
const (
	ImportCreated = "created"
	ImportUpdated = "updated"
)

// Importer turns documents into postcards.
type Importer struct {
	svc    Writer
	logger *slog.Logger
}

// NewImporter creates an importer writing through svc.
func NewImporter(svc Writer, logger *slog.Logger) *Importer {
	return &Importer{svc: svc, logger: logger}
}

// ImportDocument updates the postcard named by the document id when it exists
// and creates a new postcard otherwise.
func (im *Importer) ImportDocument(ctx context.Context, data []byte) (*models.Postcard, string, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	if doc.ID != "" {
		_, err := im.svc.Get(ctx, doc.ID)
		switch {
		case err == nil:
			p, err := im.svc.Update(ctx, doc.ID, doc.Input)
			if err != nil {
				return nil, "", err
			}
			return p, ImportUpdated, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, "", err
		}
	}
	p, err := im.svc.Create(ctx, doc.Input)
	if err != nil {
		return nil, "", err
	}
	return p, ImportCreated, nil
}

// ImportStats summarizes an ImportDir pass.
type ImportStats struct {
	Created int
	Updated int
	Failed  int
}

// ImportDir imports every document in fs. A bad file is logged and counted,
// it does not stop the pass. When consume is set, imported files are removed.
func (im *Importer) ImportDir(ctx context.Context, fs *FS, consume bool) (ImportStats, error) {
	var stats ImportStats
	files, err := fs.List()
	if err != nil {
		return stats, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := im.importFile(ctx, fs, f.Name, consume, &stats); err != nil {
			stats.Failed++
			im.logger.Warn("vault: import failed", slog.String("file", f.Name), slog.String("error", err.Error()))
		}
	}
	return stats, nil
}

func (im *Importer) importFile(ctx context.Context, fs *FS, name string, consume bool, stats *ImportStats) error {
	data, err := fs.Read(name)
	if err != nil {
		return err
	}
	p, outcome, err := im.ImportDocument(ctx, data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	switch outcome {
	case ImportCreated:
		stats.Created++
	case ImportUpdated:
		stats.Updated++
	}
	im.logger.Debug("vault: imported", slog.String("file", name), slog.String("id", p.ID), slog.String("op", outcome))
	if consume {
		return fs.Delete(name)
	}
	return nil
}
