// Package vault mirrors postcards as Markdown files with YAML frontmatter and
// imports such files back into the store.
package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the file extension of postcard documents.
const Ext = ".md"

// FileMeta describes one document in a directory.
type FileMeta struct {
	Name     string
	Checksum string
}

// FS reads and writes postcard documents in a single flat directory.
type FS struct {
	root string // absolute
}

// NewFS creates the directory if needed and returns an FS rooted at it.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("vault: mkdir root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute directory path.
func (f *FS) Root() string {
	return f.root
}

// safePath accepts plain file names only.
func (f *FS) safePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("vault: invalid file name %q", name)
	}
	return filepath.Join(f.root, name), nil
}

// List returns every document in the root directory with its checksum.
func (f *FS) List() ([]FileMeta, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	var out []FileMeta
	for _, e := range entries {
		if !isDocument(e) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("vault: list: %w", err)
		}
		out = append(out, FileMeta{Name: e.Name(), Checksum: digest(data)})
	}
	return out, nil
}

// Read returns the raw bytes of a document.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".postcard-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a document. Missing files are not an error.
func (f *FS) Delete(name string) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: delete %s: %w", name, err)
	}
	return nil
}

// FileName returns the document name for a postcard id.
func FileName(id string) string {
	return id + Ext
}

func isDocument(e fs.DirEntry) bool {
	return !e.IsDir() && strings.HasSuffix(e.Name(), Ext) && !strings.HasPrefix(e.Name(), ".")
}

// digest is the hex SHA-256 of data; the exporter compares it to skip unchanged files.
func digest(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
