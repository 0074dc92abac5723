package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/llm"
)

const (
	defaultSummaryChunkSize = 1000
	defaultSummaryMaxFiles  = 400
)

// SummarizeFiles narrows a large crawl down to a representative subset
// before the expensive abstraction pass: chunked path summaries, then one
// merge prompt that selects the final paths.
type SummarizeFiles struct {
	gen    llm.Generator
	logger *slog.Logger

	// ChunkSize is the number of paths per summary prompt (clamped to
	// 50..5000). MaxFiles is the selection target (clamped to 50..2000).
	ChunkSize int
	MaxFiles  int
}

// NewSummarizeFiles creates the summarize stage.
func NewSummarizeFiles(gen llm.Generator, logger *slog.Logger) *SummarizeFiles {
	return &SummarizeFiles{
		gen:       gen,
		logger:    logger,
		ChunkSize: defaultSummaryChunkSize,
		MaxFiles:  defaultSummaryMaxFiles,
	}
}

func (s *SummarizeFiles) Name() string { return "summarize-files" }

func (s *SummarizeFiles) Requires() []flow.Field {
	return []flow.Field{flow.FieldFiles, flow.FieldProjectName}
}

func (s *SummarizeFiles) Provides() []flow.Field {
	// FieldFiles is re-provided: finalize replaces the crawl's file list
	// with the selected subset.
	return []flow.Field{flow.FieldFileSummary, flow.FieldFiles}
}

type summarizePrep struct {
	files       []domain.SourceFile
	projectName string
}

type summarizeResult struct {
	paths   []string
	summary string
}

func (s *SummarizeFiles) Prepare(_ context.Context, st *flow.State) (any, error) {
	return summarizePrep{files: st.Files, projectName: st.ProjectName}, nil
}

func (s *SummarizeFiles) Execute(ctx context.Context, prep any) (any, error) {
	p := prep.(summarizePrep)
	if len(p.files) == 0 {
		return summarizeResult{}, nil
	}

	chunkSize := clamp(s.ChunkSize, 50, 5000)
	maxFiles := clamp(s.MaxFiles, 50, 2000)

	paths := make([]string, len(p.files))
	for i, f := range p.files {
		paths[i] = f.Path
	}

	var chunkSummaries []string
	var candidates []string
	for start := 0; start < len(paths); start += chunkSize {
		end := min(start+chunkSize, len(paths))
		chunk := paths[start:end]

		response, err := s.gen.Generate(ctx, chunkPrompt(p.projectName, chunk))
		if err != nil {
			return nil, fmt.Errorf("summarize chunk: %w", err)
		}

		summary, selected := parseChunkResponse(response)
		if len(selected) == 0 {
			selected = chunk[:min(30, len(chunk))]
		}
		if summary != "" {
			chunkSummaries = append(chunkSummaries, summary)
		}
		candidates = append(candidates, selected...)
	}

	candidates = dedupeKeepOrder(candidates)
	mergedSummary := bulletJoin(chunkSummaries)

	response, err := s.gen.Generate(ctx, mergePrompt(p.projectName, mergedSummary, candidates, maxFiles))
	if err != nil {
		return nil, fmt.Errorf("merge file selection: %w", err)
	}
	final := parseSelectedPaths(response)
	if len(final) == 0 {
		final = candidates
	}
	if len(final) > maxFiles {
		final = final[:maxFiles]
	}

	// Keep the README up front when the crawl had one.
	if containsString(paths, "README.md") && !containsString(final, "README.md") {
		final = append([]string{"README.md"}, final...)
	}

	return summarizeResult{paths: final, summary: mergedSummary}, nil
}

func (s *SummarizeFiles) Finalize(_ context.Context, st *flow.State, prep, result any) error {
	p := prep.(summarizePrep)
	r := result.(summarizeResult)
	if len(r.paths) == 0 {
		return nil
	}

	keep := make(map[string]bool, len(r.paths))
	for _, path := range r.paths {
		keep[path] = true
	}
	filtered := make([]domain.SourceFile, 0, len(r.paths))
	for _, f := range p.files {
		if keep[f.Path] {
			filtered = append(filtered, f)
		}
	}

	st.Files = filtered
	st.FileSummary = r.summary
	s.logger.Info("selected representative files",
		slog.Int("selected", len(filtered)),
		slog.Int("from", len(p.files)),
	)
	return nil
}

func chunkPrompt(projectName string, chunk []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n\n", projectName)
	b.WriteString("Given this file path list, summarize the area in 3-5 bullets and select 20-40 " +
		"representative file paths from this chunk. Output YAML with keys:\n" +
		"summary: <string>\n" +
		"files: [path1, path2, ...]\n" +
		"No prose outside YAML.\n\nFiles:\n")
	for _, p := range chunk {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return b.String()
}

func mergePrompt(projectName, summaries string, candidates []string, maxFiles int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n\n", projectName)
	fmt.Fprintf(&b, "You are given chunk summaries and a candidate file list. Select the most representative "+
		"files (target %d) that best explain the codebase. Output a YAML list of file paths only. "+
		"No prose, no code fences.\n\n", maxFiles)
	fmt.Fprintf(&b, "Summaries:\n%s\n\nCandidate files:\n", summaries)
	for _, p := range candidates {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return b.String()
}

func parseChunkResponse(response string) (summary string, files []string) {
	data, ok := parseDict(extractFencedBlock(response))
	if !ok {
		data, ok = parseDict(extractListBlock(response))
	}
	if !ok {
		return "", nil
	}
	summary = firstString(data, "summary")
	if rawFiles, ok := data["files"].([]any); ok {
		for _, f := range rawFiles {
			if path := strings.TrimSpace(toString(f)); path != "" {
				files = append(files, path)
			}
		}
	}
	return summary, files
}

func parseSelectedPaths(response string) []string {
	list, ok := parseList(extractFencedBlock(response))
	if !ok {
		list, ok = parseList(extractListBlock(response))
	}
	if !ok {
		return nil
	}
	var paths []string
	for _, item := range list {
		if path := strings.TrimSpace(toString(item)); path != "" {
			paths = append(paths, path)
		}
	}
	return dedupeKeepOrder(paths)
}

func bulletJoin(items []string) string {
	var b strings.Builder
	for _, item := range items {
		if item == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return strings.TrimRight(b.String(), "\n")
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ flow.Step = (*SummarizeFiles)(nil)
