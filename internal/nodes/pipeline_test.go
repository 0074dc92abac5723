package nodes

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/adityasoni99/code-iq/internal/crawl"
	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/flow"
)

// memWriter collects rendered files keyed by dir/name.
type memWriter struct {
	files map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{files: make(map[string]string)}
}

func (w *memWriter) Write(dir, name string, content []byte) error {
	w.files[filepath.Join(dir, name)] = string(content)
	return nil
}

func TestSummarizeFilesSelectsSubset(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		// Chunk summary.
		"```yaml\n" +
			"summary: Calculator with a parser and an evaluator.\n" +
			"files:\n" +
			"  - main.go\n" +
			"  - parser/parser.go\n" +
			"  - engine/engine.go\n" +
			"```",
		// Merge selection drops main.go.
		"```yaml\n- parser/parser.go\n- engine/engine.go\n```",
	}}
	st := stateWithFiles()
	st.Files = append([]domain.SourceFile{{Path: "README.md", Content: "# Tiny"}}, st.Files...)

	step := NewSummarizeFiles(gen, discardLogger())
	if err := runStep(t, step, st); err != nil {
		t.Fatalf("run: %v", err)
	}

	if gen.calls != 2 {
		t.Fatalf("got %d generator calls, want 2", gen.calls)
	}
	// README.md is retained even though the merge prompt dropped it.
	if len(st.Files) != 3 || st.Files[0].Path != "README.md" {
		paths := make([]string, len(st.Files))
		for i, f := range st.Files {
			paths[i] = f.Path
		}
		t.Fatalf("selected files = %v", paths)
	}
	if !strings.Contains(st.FileSummary, "Calculator") {
		t.Errorf("summary = %q", st.FileSummary)
	}
}

func TestSummarizeFilesFallsBackOnProse(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"These files look interesting.",
		"Pick whichever you like.",
	}}
	st := stateWithFiles()

	step := NewSummarizeFiles(gen, discardLogger())
	if err := runStep(t, step, st); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Unparseable responses keep the full candidate list.
	if len(st.Files) != 3 {
		t.Errorf("got %d files, want all 3", len(st.Files))
	}
}

func TestCombineTutorialWritesIndexAndChapters(t *testing.T) {
	writer := newMemWriter()
	st := stateWithFiles()
	st.RepoURL = "https://github.com/acme/tiny-repo"
	st.OutputDir = "out"
	st.Abstractions = []domain.Abstraction{{Name: "Parser"}, {Name: "Engine"}}
	st.ChapterOrder = []int{1, 0}
	st.Chapters = []string{"# Chapter 1: Engine\n\nEngine body.", "# Chapter 2: Parser\n\nParser body."}
	st.Relationships = domain.RelationshipSet{
		Summary: "A tiny calculator.",
		Details: []domain.Relationship{{From: 0, To: 1, Label: "Feeds"}},
	}

	step := NewCombineTutorial(writer, discardLogger())
	if err := runStep(t, step, st); err != nil {
		t.Fatalf("run: %v", err)
	}

	wantDir := filepath.Join("out", "tiny-repo")
	if st.FinalOutputDir != wantDir {
		t.Fatalf("final output dir = %q, want %q", st.FinalOutputDir, wantDir)
	}

	index, ok := writer.files[filepath.Join(wantDir, "index.md")]
	if !ok {
		t.Fatalf("index.md not written, have %v", keysOf(writer.files))
	}
	for _, want := range []string{
		"# Tutorial: tiny-repo",
		"A tiny calculator.",
		"https://github.com/acme/tiny-repo",
		"```mermaid",
		"flowchart TD",
		"1. [Engine](01_engine.md)",
		"2. [Parser](02_parser.md)",
		"Generated by [Code IQ]",
	} {
		if !strings.Contains(index, want) {
			t.Errorf("index.md missing %q", want)
		}
	}

	chapter, ok := writer.files[filepath.Join(wantDir, "01_engine.md")]
	if !ok {
		t.Fatalf("01_engine.md not written, have %v", keysOf(writer.files))
	}
	if !strings.Contains(chapter, "Engine body.") || !strings.Contains(chapter, "Generated by [Code IQ]") {
		t.Errorf("chapter content incomplete: %q", chapter)
	}
	if _, ok := writer.files[filepath.Join(wantDir, "02_parser.md")]; !ok {
		t.Errorf("02_parser.md not written")
	}
}

func TestMermaidDiagramTruncatesLabelsOnRuneBoundaries(t *testing.T) {
	st := flow.NewState()
	st.Abstractions = []domain.Abstraction{{Name: "Parser"}, {Name: "Engine"}}
	st.Relationships = domain.RelationshipSet{
		Details: []domain.Relationship{{From: 0, To: 1, Label: strings.Repeat("構", maxMermaidLabel+5)}},
	}

	diagram := mermaidDiagram(st)
	if !utf8.ValidString(diagram) {
		t.Fatalf("diagram contains invalid UTF-8: %q", diagram)
	}
	want := strings.Repeat("構", maxMermaidLabel-3) + "..."
	if !strings.Contains(diagram, want) {
		t.Errorf("diagram = %q, want truncated label %q", diagram, want)
	}
}

func TestStageFieldContracts(t *testing.T) {
	logger := discardLogger()
	gen := &scriptedGenerator{}

	// Each stage declares every field its prompts read, so a flow wired
	// without one of them is rejected before any run starts.
	tests := []struct {
		name    string
		initial []flow.Field
		stage   flow.Stage
		missing flow.Field
	}{
		{
			name:    "order chapters needs project name",
			initial: []flow.Field{flow.FieldAbstractions, flow.FieldRelationships, flow.FieldLanguage},
			stage:   NewOrderChapters(gen, logger),
			missing: flow.FieldProjectName,
		},
		{
			name: "combine needs source for the repository link",
			initial: []flow.Field{
				flow.FieldChapters, flow.FieldChapterOrder, flow.FieldAbstractions,
				flow.FieldRelationships, flow.FieldProjectName, flow.FieldOutputDir,
			},
			stage:   NewCombineTutorial(newMemWriter(), logger),
			missing: flow.FieldSource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.New(tt.initial, tt.stage)
			if err == nil {
				t.Fatalf("flow accepted a wiring without %q", tt.missing)
			}
			if !strings.Contains(err.Error(), string(tt.missing)) {
				t.Errorf("error = %v, want mention of %q", err, tt.missing)
			}
		})
	}
}

func TestSummarizeFilesDeclaresFileRewrite(t *testing.T) {
	step := NewSummarizeFiles(&scriptedGenerator{}, discardLogger())
	for _, f := range step.Provides() {
		if f == flow.FieldFiles {
			return
		}
	}
	t.Errorf("provides = %v, missing %q", step.Provides(), flow.FieldFiles)
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestPipelineEndToEnd(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		// Summarize: chunk, then merge.
		"```yaml\nsummary: Calculator.\nfiles:\n  - main.go\n  - parser/parser.go\n  - engine/engine.go\n```",
		"```yaml\n- main.go\n- parser/parser.go\n- engine/engine.go\n```",
		// Identify abstractions.
		"```yaml\n" +
			"- name: Parser\n  description: Splits input.\n  file_indices:\n    - 1\n" +
			"- name: Engine\n  description: Evaluates.\n  file_indices:\n    - 2\n" +
			"```",
		// Analyze relationships.
		"```yaml\nsummary: A tiny calculator.\nrelationships:\n  - from_abstraction: 0\n    to_abstraction: 1\n    label: \"Feeds\"\n```",
		// Order chapters.
		"```yaml\n- 0\n- 1\n```",
		// Write chapters.
		"# Chapter 1: Parser\n\nParser chapter.",
		"# Chapter 2: Engine\n\nEngine chapter.",
	}}
	writer := newMemWriter()
	logger := discardLogger()

	// Same stage order as NewPipeline, with the crawler injected so the
	// test never touches disk or the network.
	fetch := NewFetchRepo(logger)
	fetch.Local = func(string, crawl.Options) ([]domain.SourceFile, error) {
		return testFiles(), nil
	}
	pipeline, err := flow.New(flow.InputFields(),
		fetch,
		NewSummarizeFiles(gen, logger),
		NewIdentifyAbstractions(gen, nil, 0, logger),
		NewAnalyzeRelationships(gen, logger),
		NewOrderChapters(gen, logger),
		NewWriteChapters(gen, logger),
		NewCombineTutorial(writer, logger),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	st := flow.NewState()
	st.LocalDir = "/src/tiny-repo"
	st.Language = "english"
	st.OutputDir = "out"

	if err := pipeline.Run(context.Background(), st); err != nil {
		t.Fatalf("run: %v", err)
	}

	if gen.calls != 7 {
		t.Errorf("got %d generator calls, want 7", gen.calls)
	}
	wantDir := filepath.Join("out", "tiny-repo")
	if st.FinalOutputDir != wantDir {
		t.Errorf("final output dir = %q", st.FinalOutputDir)
	}
	if len(writer.files) != 3 {
		t.Errorf("got %d rendered files: %v", len(writer.files), keysOf(writer.files))
	}
	if chapter := writer.files[filepath.Join(wantDir, "01_parser.md")]; !strings.Contains(chapter, "Parser chapter.") {
		t.Errorf("chapter 1 content = %q", chapter)
	}
}
