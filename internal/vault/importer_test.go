package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/postcards"
	"github.com/starford/postcards/internal/testutil"
)

func TestImportDocumentCreatesThenUpdates(t *testing.T) {
	svc := newTestService(t)
	im := NewImporter(svc, discardLogger())
	ctx := context.Background()

	p, outcome, err := im.ImportDocument(ctx, []byte("---\nreference: Micah 6:8\ntags: [justice]\n---\n\nDo justice.\n"))
	require.NoError(t, err)
	assert.Equal(t, ImportCreated, outcome)
	assert.Equal(t, []string{"justice"}, p.Tags)

	edit := *p
	edit.Text = "Do justice, love kindness."
	edited, err := Encode(edit)
	require.NoError(t, err)

	upd, outcome, err := im.ImportDocument(ctx, edited)
	require.NoError(t, err)
	assert.Equal(t, ImportUpdated, outcome)
	assert.Equal(t, p.ID, upd.ID)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Do justice, love kindness.", list[0].Text)
}

func TestImportDocumentUnknownIDCreates(t *testing.T) {
	svc := newTestService(t, postcards.WithIDGenerator(func() string { return "fresh" }))
	im := NewImporter(svc, discardLogger())

	p, outcome, err := im.ImportDocument(context.Background(), []byte("---\nid: gone\nreference: a\n---\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, ImportCreated, outcome)
	assert.Equal(t, "fresh", p.ID)
}

func TestImportDocumentValidation(t *testing.T) {
	im := NewImporter(newTestService(t), discardLogger())
	_, _, err := im.ImportDocument(context.Background(), []byte("---\nreference: a\n---\n\n"))
	assert.True(t, errors.Is(err, apperr.ErrValidation), "err = %v", err)
}

func TestImportDirConsumes(t *testing.T) {
	fs := tempFS(t)
	svc := newTestService(t)
	im := NewImporter(svc, discardLogger())
	ctx := context.Background()

	require.NoError(t, fs.Write("good.md", []byte("---\nreference: a\n---\nb\n")))
	require.NoError(t, fs.Write("bad.md", []byte("no frontmatter")))

	stats, err := im.ImportDir(ctx, fs, true)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Created: 1, Failed: 1}, stats)

	files, err := fs.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "bad.md", files[0].Name, "failed files stay for inspection")
}

func TestImportUnchangedExportKeepsRecord(t *testing.T) {
	svc := newTestService(t)
	im := NewImporter(svc, discardLogger())
	ctx := context.Background()

	orig, err := svc.Create(ctx, postcards.Input{
		Reference:  "Psalm 23:1",
		Text:       "The Lord is my shepherd\n## Questions\nI shall not want",
		Commentary: testutil.StrPtr("  indented line\n\n"),
	})
	require.NoError(t, err)

	data, err := Encode(*orig)
	require.NoError(t, err)
	_, outcome, err := im.ImportDocument(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, ImportUpdated, outcome)

	got, err := svc.Get(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, orig.Text, got.Text)
	require.NotNil(t, got.Commentary)
	assert.Equal(t, "  indented line\n\n", *got.Commentary)
	assert.Nil(t, got.Questions)
	assert.Equal(t, orig.Tags, got.Tags)
}
