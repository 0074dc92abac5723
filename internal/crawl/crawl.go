// Package crawl acquires source code for the pipeline: a local directory
// walk or a GitHub clone, both returning an ordered path -> content file
// list with the same filtering rules.
package crawl

import (
	"path/filepath"
	"strings"
)

// Options controls which files a crawl keeps.
type Options struct {
	// MaxFileSize skips files larger than this many bytes. Zero means
	// the default of 100000.
	MaxFileSize int64

	// IncludePatterns, when non-empty, keeps only files whose relative
	// path or base name matches one of the globs.
	IncludePatterns []string

	// ExcludePatterns drops files whose relative path or base name
	// matches one of the globs.
	ExcludePatterns []string
}

const defaultMaxFileSize = 100_000

func (o Options) maxFileSize() int64 {
	if o.MaxFileSize > 0 {
		return o.MaxFileSize
	}
	return defaultMaxFileSize
}

var skipDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	".venv": true, "venv": true, "__pycache__": true,
	".pytest_cache": true, ".mypy_cache": true,
	".idea": true, ".vscode": true,
	"node_modules": true, "dist": true, "build": true, "out": true,
	"coverage": true, ".next": true, ".nuxt": true,
	".parcel-cache": true, ".turbo": true,
	"target": true, ".gradle": true, ".cache": true,
}

var skipExts = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico",
	".pdf", ".zip", ".gz", ".tar", ".7z", ".rar",
	".mp4", ".mov", ".mp3", ".wav",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".ds_store",
}

func shouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return skipDirs[name]
}

func isHiddenPath(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func hasSkipExt(relPath string) bool {
	lower := strings.ToLower(relPath)
	for _, ext := range skipExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// excluded reports whether relPath fails the include/exclude globs.
// Patterns are matched against both the slash-form relative path and the
// base name.
func excluded(relPath string, include, exclude []string) bool {
	if len(exclude) > 0 && matchesAny(relPath, exclude) {
		return true
	}
	if len(include) > 0 && !matchesAny(relPath, include) {
		return true
	}
	return false
}

func matchesAny(relPath string, patterns []string) bool {
	slashPath := filepath.ToSlash(relPath)
	base := filepath.Base(relPath)
	for _, p := range patterns {
		if ok, err := filepath.Match(p, slashPath); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(p, base); err == nil && ok {
			return true
		}
	}
	return false
}

func keepFile(relPath string, size int64, opts Options) bool {
	if size > opts.maxFileSize() {
		return false
	}
	if isHiddenPath(relPath) {
		return false
	}
	if hasSkipExt(relPath) {
		return false
	}
	return !excluded(relPath, opts.IncludePatterns, opts.ExcludePatterns)
}
