package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/adityasoni99/code-iq/internal/crawl"
	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/flow"
)

// FetchRepo crawls the source (GitHub URL or local directory) and seeds
// the state with the file list and a derived project name.
type FetchRepo struct {
	// Local and GitHub default to the crawl package; tests override them.
	Local  func(directory string, opts crawl.Options) ([]domain.SourceFile, error)
	GitHub func(ctx context.Context, repoURL, token string, opts crawl.Options) ([]domain.SourceFile, error)

	logger *slog.Logger
}

// NewFetchRepo creates the fetch stage backed by the crawl package.
func NewFetchRepo(logger *slog.Logger) *FetchRepo {
	return &FetchRepo{
		Local:  crawl.Local,
		GitHub: crawl.GitHub,
		logger: logger,
	}
}

func (s *FetchRepo) Name() string { return "fetch-repo" }

func (s *FetchRepo) Requires() []flow.Field { return []flow.Field{flow.FieldSource} }

func (s *FetchRepo) Provides() []flow.Field {
	return []flow.Field{flow.FieldFiles, flow.FieldProjectName}
}

type fetchPrep struct {
	repoURL     string
	localDir    string
	projectName string
	token       string
	opts        crawl.Options
}

type fetchResult struct {
	files       []domain.SourceFile
	projectName string
}

func (s *FetchRepo) Prepare(_ context.Context, st *flow.State) (any, error) {
	return fetchPrep{
		repoURL:     strings.TrimSpace(st.RepoURL),
		localDir:    strings.TrimSpace(st.LocalDir),
		projectName: deriveProjectName(st.RepoURL, st.LocalDir, st.ProjectName),
		token:       st.GitHubToken,
		opts: crawl.Options{
			MaxFileSize:     st.MaxFileSize,
			IncludePatterns: st.IncludePatterns,
			ExcludePatterns: st.ExcludePatterns,
		},
	}, nil
}

func (s *FetchRepo) Execute(ctx context.Context, prep any) (any, error) {
	p := prep.(fetchPrep)

	var (
		files []domain.SourceFile
		err   error
	)
	switch {
	case p.repoURL != "":
		s.logger.Info("crawling repository", slog.String("repo_url", p.repoURL))
		files, err = s.GitHub(ctx, p.repoURL, p.token, p.opts)
	case p.localDir != "":
		s.logger.Info("crawling local directory", slog.String("dir", p.localDir))
		files, err = s.Local(p.localDir, p.opts)
	default:
		return nil, domain.ErrValidation("either repo_url or local_dir must be set")
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files fetched from source")
	}
	return fetchResult{files: files, projectName: p.projectName}, nil
}

func (s *FetchRepo) Finalize(_ context.Context, st *flow.State, _, result any) error {
	r := result.(fetchResult)
	st.Files = r.files
	st.AllFiles = r.files
	st.ProjectName = r.projectName
	s.logger.Info("fetched repository",
		slog.Int("files", len(r.files)),
		slog.String("project_name", r.projectName),
	)
	return nil
}

// deriveProjectName prefers the explicit name, then the repository name
// from the URL, then the directory base name.
func deriveProjectName(repoURL, localDir, existing string) string {
	if name := strings.TrimSpace(existing); name != "" {
		return name
	}
	if url := strings.TrimSpace(repoURL); url != "" {
		if name := crawl.RepoName(url); name != "" {
			return name
		}
	}
	if dir := strings.TrimSpace(localDir); dir != "" {
		abs, err := filepath.Abs(dir)
		if err == nil {
			if name := filepath.Base(abs); name != "" && name != string(filepath.Separator) {
				return name
			}
		}
	}
	return "project"
}

var _ flow.Step = (*FetchRepo)(nil)
