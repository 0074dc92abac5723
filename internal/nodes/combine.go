package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/render"
)

const attributionFooter = "Generated by [Code IQ](https://github.com/adityasoni99/Code-IQ)"

// maxMermaidLabel keeps relationship edge labels readable in the diagram.
const maxMermaidLabel = 30

// CombineTutorial assembles the index page and chapter files and writes
// them below the output directory. It is the only stage with filesystem
// side effects, and the only one that does no LLM work.
type CombineTutorial struct {
	writer render.Writer
	logger *slog.Logger
}

func NewCombineTutorial(writer render.Writer, logger *slog.Logger) *CombineTutorial {
	return &CombineTutorial{writer: writer, logger: logger}
}

func (s *CombineTutorial) Name() string { return "combine-tutorial" }

func (s *CombineTutorial) Requires() []flow.Field {
	return []flow.Field{
		flow.FieldChapters, flow.FieldChapterOrder, flow.FieldAbstractions,
		flow.FieldRelationships, flow.FieldProjectName, flow.FieldOutputDir,
		flow.FieldSource,
	}
}

func (s *CombineTutorial) Provides() []flow.Field {
	return []flow.Field{flow.FieldFinalOutputDir}
}

type tutorialFile struct {
	name    string
	content string
}

type combinePrep struct {
	outputDir string
	files     []tutorialFile
}

func (s *CombineTutorial) Prepare(_ context.Context, st *flow.State) (any, error) {
	outputDir := filepath.Join(st.OutputDir, st.ProjectName)

	var index strings.Builder
	fmt.Fprintf(&index, "# Tutorial: %s\n\n", st.ProjectName)
	index.WriteString(strings.TrimSpace(st.Relationships.Summary) + "\n\n")
	if st.RepoURL != "" {
		fmt.Fprintf(&index, "**Source Repository:** [%s](%s)\n\n", st.RepoURL, st.RepoURL)
	}
	index.WriteString("```mermaid\n")
	index.WriteString(mermaidDiagram(st))
	index.WriteString("```\n\n## Chapters\n\n")

	files := make([]tutorialFile, 0, len(st.ChapterOrder)+1)
	for i, absIdx := range st.ChapterOrder {
		if absIdx < 0 || absIdx >= len(st.Abstractions) || i >= len(st.Chapters) {
			s.logger.Warn("skipping chapter with invalid index", slog.Int("position", i))
			continue
		}
		name := st.Abstractions[absIdx].Name
		filename := chapterFileName(i+1, name)
		fmt.Fprintf(&index, "%d. [%s](%s)\n", i+1, name, filename)

		content := st.Chapters[i]
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += "\n---\n\n" + attributionFooter
		files = append(files, tutorialFile{name: filename, content: content})
	}

	index.WriteString("\n\n---\n\n" + attributionFooter)
	files = append(files, tutorialFile{name: "index.md", content: index.String()})

	return combinePrep{outputDir: outputDir, files: files}, nil
}

func (s *CombineTutorial) Execute(_ context.Context, prep any) (any, error) {
	p := prep.(combinePrep)
	for _, f := range p.files {
		if err := s.writer.Write(p.outputDir, f.name, []byte(f.content)); err != nil {
			return nil, err
		}
	}
	s.logger.Info("tutorial written", slog.String("dir", p.outputDir), slog.Int("files", len(p.files)))
	return p.outputDir, nil
}

func (s *CombineTutorial) Finalize(_ context.Context, st *flow.State, _, result any) error {
	st.FinalOutputDir = result.(string)
	return nil
}

// mermaidDiagram renders the abstraction graph as a flowchart. Nodes are
// keyed A<index> so edge references stay stable regardless of names.
func mermaidDiagram(st *flow.State) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for i, a := range st.Abstractions {
		fmt.Fprintf(&b, "    A%d[%q]\n", i, sanitizeMermaid(a.Name))
	}
	for _, rel := range st.Relationships.Details {
		if rel.From < 0 || rel.From >= len(st.Abstractions) ||
			rel.To < 0 || rel.To >= len(st.Abstractions) {
			continue
		}
		label := sanitizeMermaid(rel.Label)
		if runes := []rune(label); len(runes) > maxMermaidLabel {
			label = string(runes[:maxMermaidLabel-3]) + "..."
		}
		if label != "" {
			fmt.Fprintf(&b, "    A%d -- %q --> A%d\n", rel.From, label, rel.To)
		} else {
			fmt.Fprintf(&b, "    A%d --> A%d\n", rel.From, rel.To)
		}
	}
	return b.String()
}

func sanitizeMermaid(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

var _ flow.Step = (*CombineTutorial)(nil)
