package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/adityasoni99/code-iq/internal/domain"
)

// GitHub clones a repository into memory (shallow, default branch) and
// returns the kept files sorted by path. token is optional; when set it
// is used as a basic-auth credential for private repositories.
func GitHub(ctx context.Context, repoURL, token string, opts Options) ([]domain.SourceFile, error) {
	cloneOpts := &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
	}
	if token != "" {
		// GitHub accepts any non-empty username with a token password.
		cloneOpts.Auth = &githttp.BasicAuth{Username: "git", Password: token}
	}

	fs := memfs.New()
	if _, err := git.CloneContext(ctx, memory.NewStorage(), fs, cloneOpts); err != nil {
		switch {
		case errors.Is(err, transport.ErrRepositoryNotFound):
			return nil, domain.ErrNotFound(fmt.Sprintf("repository %s not found", repoURL))
		case errors.Is(err, transport.ErrAuthenticationRequired),
			errors.Is(err, transport.ErrAuthorizationFailed):
			return nil, domain.NewAPIError(domain.ErrorTypeAccessDenied,
				fmt.Sprintf("access to %s denied", repoURL))
		default:
			return nil, fmt.Errorf("clone %s: %w", repoURL, err)
		}
	}

	var files []domain.SourceFile
	if err := walkBilly(fs, "", &files, opts); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// RepoName extracts the repository name from a GitHub URL, without the
// .git suffix.
func RepoName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(repoURL), "/"), ".git")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

func walkBilly(fs billy.Filesystem, dir string, files *[]domain.SourceFile, opts Options) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	for _, entry := range entries {
		rel := path.Join(dir, entry.Name())
		if entry.IsDir() {
			if shouldSkipDir(entry.Name()) {
				continue
			}
			if err := walkBilly(fs, rel, files, opts); err != nil {
				return err
			}
			continue
		}
		if !keepFile(rel, entry.Size(), opts) {
			continue
		}
		f, err := fs.Open(rel)
		if err != nil {
			continue
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil || !utf8.Valid(content) {
			continue
		}
		*files = append(*files, domain.SourceFile{Path: rel, Content: string(content)})
	}
	return nil
}
