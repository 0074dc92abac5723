package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/llm"
)

// WriteChapters generates one tutorial chapter per abstraction, in
// chapter order. It is the pipeline's batch stage: items must run
// strictly in order because each chapter's prompt includes the chapters
// written before it.
type WriteChapters struct {
	gen    llm.Generator
	logger *slog.Logger

	// written accumulates chapter content across items of one run. A
	// flow (and its stages) is built per run, so this never crosses
	// runs.
	written []string
}

// NewWriteChapters creates the chapter-writing stage.
func NewWriteChapters(gen llm.Generator, logger *slog.Logger) *WriteChapters {
	return &WriteChapters{gen: gen, logger: logger}
}

func (s *WriteChapters) Name() string { return "write-chapters" }

func (s *WriteChapters) Requires() []flow.Field {
	return []flow.Field{flow.FieldChapterOrder, flow.FieldAbstractions, flow.FieldFiles, flow.FieldProjectName, flow.FieldLanguage}
}

func (s *WriteChapters) Provides() []flow.Field {
	return []flow.Field{flow.FieldChapters}
}

// chapterLink names a chapter for cross-references.
type chapterLink struct {
	Num      int
	Name     string
	Filename string
}

type chapterItem struct {
	number       int
	name         string
	description  string
	fileContent  map[string]string
	fullListing  string
	prev         *chapterLink
	next         *chapterLink
	language     string
	projectName  string
}

func (s *WriteChapters) PrepareBatch(_ context.Context, st *flow.State) ([]any, error) {
	s.written = nil
	language := normalizeLanguage(st.Language)

	// Complete chapter listing with filenames for cross-linking.
	links := make(map[int]*chapterLink, len(st.ChapterOrder))
	var listing []string
	for i, absIdx := range st.ChapterOrder {
		if absIdx < 0 || absIdx >= len(st.Abstractions) {
			continue
		}
		name := st.Abstractions[absIdx].Name
		link := &chapterLink{
			Num:      i + 1,
			Name:     name,
			Filename: chapterFileName(i+1, name),
		}
		links[absIdx] = link
		listing = append(listing, fmt.Sprintf("%d. [%s](%s)", link.Num, link.Name, link.Filename))
	}
	fullListing := strings.Join(listing, "\n")

	items := make([]any, 0, len(st.ChapterOrder))
	for i, absIdx := range st.ChapterOrder {
		if absIdx < 0 || absIdx >= len(st.Abstractions) {
			s.logger.Warn("skipping invalid abstraction index", slog.Int("index", absIdx))
			continue
		}
		abstraction := st.Abstractions[absIdx]

		item := chapterItem{
			number:      i + 1,
			name:        abstraction.Name,
			description: abstraction.Description,
			fileContent: contentForIndices(st.Files, abstraction.FileIndices),
			fullListing: fullListing,
			language:    language,
			projectName: st.ProjectName,
		}
		if i > 0 {
			item.prev = links[st.ChapterOrder[i-1]]
		}
		if i < len(st.ChapterOrder)-1 {
			item.next = links[st.ChapterOrder[i+1]]
		}
		items = append(items, item)
	}
	s.logger.Info("prepared chapters for writing", slog.Int("count", len(items)))
	return items, nil
}

func (s *WriteChapters) ExecuteItem(ctx context.Context, rawItem any) (any, error) {
	item := rawItem.(chapterItem)
	s.logger.Info("writing chapter", slog.Int("number", item.number), slog.String("name", item.name))

	previous := strings.Join(s.written, "\n---\n")
	content, err := s.gen.Generate(ctx, chapterPrompt(item, previous))
	if err != nil {
		return nil, err
	}

	content = normalizeHeading(content, item.number, item.name)
	s.written = append(s.written, content)
	return content, nil
}

func (s *WriteChapters) FinalizeBatch(_ context.Context, st *flow.State, _, results []any) error {
	chapters := make([]string, len(results))
	for i, r := range results {
		chapters[i] = r.(string)
	}
	st.Chapters = chapters
	s.written = nil
	s.logger.Info("written all chapters", slog.Int("count", len(chapters)))
	return nil
}

// normalizeHeading forces the chapter to start with "# Chapter N: Name".
func normalizeHeading(content string, num int, name string) string {
	heading := fmt.Sprintf("# Chapter %d: %s", num, name)
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, fmt.Sprintf("# Chapter %d", num)) {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "#") {
		lines[0] = heading
		return strings.Join(lines, "\n")
	}
	return heading + "\n\n" + trimmed
}

func chapterPrompt(item chapterItem, previous string) string {
	var languageInstruction, langNote string
	if item.language != "english" {
		capitalized := capitalize(item.language)
		languageInstruction = fmt.Sprintf("IMPORTANT: Write this ENTIRE tutorial chapter in **%s**. "+
			"Translate ALL generated content including explanations, examples, and technical terms into %s. "+
			"DO NOT use English anywhere except in code syntax or required proper nouns.\n\n", capitalized, capitalized)
		langNote = fmt.Sprintf(" (in %s)", capitalized)
	}

	var fileCtx strings.Builder
	keys := make([]string, 0, len(item.fileContent))
	for key := range item.fileContent {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		path := key
		if i := strings.Index(key, "# "); i >= 0 {
			path = key[i+2:]
		}
		fmt.Fprintf(&fileCtx, "--- File: %s ---\n%s\n\n", path, item.fileContent[key])
	}

	if previous == "" {
		previous = "This is the first chapter."
	}
	snippets := fileCtx.String()
	if snippets == "" {
		snippets = "No specific code snippets provided for this abstraction."
	}

	var b strings.Builder
	b.WriteString(languageInstruction)
	fmt.Fprintf(&b, "Write a very beginner-friendly tutorial chapter (in Markdown format) for the project `%s` about the concept: %q. This is Chapter %d.\n\n",
		item.projectName, item.name, item.number)
	fmt.Fprintf(&b, "Concept Details:\n- Name: %s\n- Description:\n%s\n\n", item.name, item.description)
	fmt.Fprintf(&b, "Complete Tutorial Structure:\n%s\n\n", item.fullListing)
	fmt.Fprintf(&b, "Context from previous chapters:\n%s\n\n", previous)
	fmt.Fprintf(&b, "Relevant Code Snippets (Code itself remains unchanged):\n%s\n\n", snippets)
	fmt.Fprintf(&b, "Instructions for the chapter:\n"+
		"- Start with a clear heading (e.g., `# Chapter %d: %s`). Use the provided concept name.\n", item.number, item.name)
	if item.prev != nil {
		fmt.Fprintf(&b, "- Begin with a brief transition from the previous chapter%s, referencing it with a proper Markdown link: [%s](%s).\n",
			langNote, item.prev.Name, item.prev.Filename)
	}
	fmt.Fprintf(&b, "- Begin with a high-level motivation explaining what problem this abstraction solves%s. Start with a central use case as a concrete example.\n", langNote)
	fmt.Fprintf(&b, "- If the abstraction is complex, break it down into key concepts and explain them one-by-one in a very beginner-friendly way%s.\n", langNote)
	b.WriteString("- Each code block should be BELOW 10 lines! Break longer blocks into smaller pieces and walk through them one-by-one. " +
		"Each code block should have a beginner-friendly explanation right after it.\n" +
		"- Describe the internal implementation step-by-step, with a simple mermaid sequenceDiagram (at most 5 participants).\n" +
		"- When referring to other core abstractions covered in other chapters, ALWAYS use proper Markdown links like [Chapter Title](filename.md), using the Complete Tutorial Structure above.\n" +
		"- Heavily use analogies and examples throughout to help beginners understand.\n")
	if item.next != nil {
		fmt.Fprintf(&b, "- End with a brief conclusion and a transition to the next chapter using a proper Markdown link: [%s](%s).\n",
			item.next.Name, item.next.Filename)
	} else {
		b.WriteString("- End with a brief conclusion that summarizes what was learned.\n")
	}
	b.WriteString("- Output *only* the Markdown content for this chapter.\n\n" +
		"Now, directly provide a super beginner-friendly Markdown output (DON'T need ```markdown``` tags):\n")
	return b.String()
}

var _ flow.BatchStep = (*WriteChapters)(nil)
