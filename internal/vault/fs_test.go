package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteReadDelete(t *testing.T) {
	fs := tempFS(t)
	content := []byte("---\nreference: x\n---\n")
	if err := fs.Write("a.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read("a.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q", got)
	}
	if err := fs.Delete("a.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Read("a.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
	if err := fs.Delete("a.md"); err != nil {
		t.Errorf("deleting a missing file: %v", err)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	fs := tempFS(t)
	for i := 0; i < 3; i++ {
		if err := fs.Write("a.md", []byte(strings.Repeat("x", i))); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(fs.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestListSkipsNonDocuments(t *testing.T) {
	fs := tempFS(t)
	_ = fs.Write("one.md", []byte("1"))
	_ = fs.Write("two.md", []byte("2"))
	_ = os.WriteFile(filepath.Join(fs.Root(), "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(fs.Root(), ".hidden.md"), []byte("x"), 0o644)
	_ = os.Mkdir(filepath.Join(fs.Root(), "sub.md"), 0o755)

	files, err := fs.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %+v, want 2", files)
	}
	if files[0].Checksum == files[1].Checksum || files[0].Checksum != digest([]byte("1")) {
		t.Errorf("checksums = %+v", files)
	}
}

func TestRejectsPathNames(t *testing.T) {
	fs := tempFS(t)
	for _, name := range []string{"", "../escape.md", "sub/a.md", ".."} {
		if err := fs.Write(name, []byte("x")); err == nil {
			t.Errorf("Write(%q) should fail", name)
		}
	}
}
