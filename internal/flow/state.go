package flow

import (
	"github.com/adityasoni99/code-iq/internal/domain"
)

// Field identifies one slot of the shared State. Stages declare which
// fields they read and write so the chain can be checked before any run.
type Field string

const (
	// FieldSource covers the request inputs: repository URL or local
	// directory, the crawl filters, and the abstraction limit.
	FieldSource Field = "source"

	// FieldLanguage is the tutorial language input.
	FieldLanguage Field = "language"

	// FieldOutputDir is the base output directory input.
	FieldOutputDir Field = "output_dir"

	// FieldProjectName is derived from the source by FetchRepo when not
	// supplied.
	FieldProjectName Field = "project_name"

	// FieldFiles is the crawled (and later filtered) file list.
	FieldFiles Field = "files"

	// FieldFileSummary is the merged per-chunk file summary.
	FieldFileSummary Field = "file_summary"

	// FieldAbstractions is the identified abstraction list.
	FieldAbstractions Field = "abstractions"

	// FieldRelationships is the project summary and abstraction graph.
	FieldRelationships Field = "relationships"

	// FieldChapterOrder is the ordered list of abstraction indices.
	FieldChapterOrder Field = "chapter_order"

	// FieldChapters is the generated chapter content, indexed like
	// chapter_order.
	FieldChapters Field = "chapters"

	// FieldFinalOutputDir is the directory the tutorial was written to.
	FieldFinalOutputDir Field = "final_output_dir"
)

// InputFields is the set of fields populated from request inputs before a
// run starts.
func InputFields() []Field {
	return []Field{FieldSource, FieldLanguage, FieldOutputDir}
}

// State is the shared store for one pipeline run. It is created from
// request inputs, mutated in place by each stage's finalize phase, and
// discarded after the run; terminal fields are copied into the job result.
// A State is never touched by more than one goroutine.
type State struct {
	// Inputs.
	RepoURL         string
	LocalDir        string
	ProjectName     string
	GitHubToken     string
	OutputDir       string
	Language        string
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
	MaxAbstractions int

	// Intermediate and output fields, written by stages.
	Files         []domain.SourceFile
	AllFiles      []domain.SourceFile
	FileSummary   string
	Abstractions  []domain.Abstraction
	Relationships domain.RelationshipSet
	ChapterOrder  []int
	Chapters      []string

	FinalOutputDir string
}

// NewState returns a State with the original defaults applied.
func NewState() *State {
	return &State{
		OutputDir:       "output",
		Language:        "english",
		MaxFileSize:     100_000,
		MaxAbstractions: 10,
	}
}

// Result copies the terminal fields into a TutorialResult. Chapters are
// paired with their abstraction names in chapter order; entries whose
// indices fell out of range are skipped.
func (s *State) Result() domain.TutorialResult {
	chapters := make([]domain.Chapter, 0, len(s.ChapterOrder))
	for i, idx := range s.ChapterOrder {
		if idx < 0 || idx >= len(s.Abstractions) || i >= len(s.Chapters) {
			continue
		}
		chapters = append(chapters, domain.Chapter{
			Name:    s.Abstractions[idx].Name,
			Content: s.Chapters[i],
		})
	}
	return domain.TutorialResult{
		OutputDir: s.FinalOutputDir,
		Summary:   s.Relationships.Summary,
		Chapters:  chapters,
	}
}
