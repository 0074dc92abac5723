package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adityasoni99/code-iq/internal/domain"
)

func TestFSWriterCreatesNestedDirs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "output", "tiny-repo")

	if err := (FSWriter{}).Write(dir, "index.md", []byte("# Tutorial")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "index.md"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != "# Tutorial" {
		t.Errorf("content = %q", content)
	}
}

func TestFSWriterOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := FSWriter{}

	if err := w.Write(dir, "01_parser.md", []byte("old")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.Write(dir, "01_parser.md", []byte("new")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "01_parser.md"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != "new" {
		t.Errorf("content = %q", content)
	}
}

func TestFSWriterReportsWriteError(t *testing.T) {
	root := t.TempDir()
	// A file where a directory is expected makes MkdirAll fail.
	blocker := filepath.Join(root, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	err := FSWriter{}.Write(filepath.Join(blocker, "nested"), "index.md", []byte("x"))
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeWrite {
		t.Fatalf("want write error, got %v", err)
	}
}
