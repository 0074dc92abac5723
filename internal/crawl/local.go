package crawl

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/adityasoni99/code-iq/internal/domain"
)

// Local walks a directory and returns the kept files, sorted by relative
// path. Binary, oversized, and hidden files are skipped.
func Local(directory string, opts Options) ([]domain.SourceFile, error) {
	root, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("resolve directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound(fmt.Sprintf("directory %s does not exist", directory))
		}
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, domain.ErrValidation(fmt.Sprintf("%s is not a directory", directory))
	}

	var files []domain.SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if !keepFile(rel, fi.Size(), opts) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(content) {
			return nil
		}
		files = append(files, domain.SourceFile{
			Path:    filepath.ToSlash(rel),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", directory, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
