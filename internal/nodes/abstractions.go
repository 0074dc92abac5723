package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/llm"
	"github.com/adityasoni99/code-iq/internal/tokens"
)

// IdentifyAbstractions asks the model for the core abstractions of the
// codebase as a YAML list of {name, description, file_indices}.
type IdentifyAbstractions struct {
	gen     llm.Generator
	counter tokens.Counter
	budget  int
	logger  *slog.Logger
}

// NewIdentifyAbstractions creates the abstraction stage. budget caps the
// prompt file context in tokens; zero disables the cap.
func NewIdentifyAbstractions(gen llm.Generator, counter tokens.Counter, budget int, logger *slog.Logger) *IdentifyAbstractions {
	return &IdentifyAbstractions{gen: gen, counter: counter, budget: budget, logger: logger}
}

func (s *IdentifyAbstractions) Name() string { return "identify-abstractions" }

func (s *IdentifyAbstractions) Requires() []flow.Field {
	return []flow.Field{flow.FieldFiles, flow.FieldProjectName, flow.FieldLanguage, flow.FieldSource}
}

func (s *IdentifyAbstractions) Provides() []flow.Field {
	return []flow.Field{flow.FieldAbstractions}
}

type identifyPrep struct {
	nFiles      int
	projectName string
	language    string
	fileContext string
	fileListing string
	maxCount    int
}

func (s *IdentifyAbstractions) Prepare(_ context.Context, st *flow.State) (any, error) {
	fileCtx, listing := fileContext(st.Files, s.counter, s.budget)
	return identifyPrep{
		nFiles:      len(st.Files),
		projectName: st.ProjectName,
		language:    normalizeLanguage(st.Language),
		fileContext: fileCtx,
		fileListing: listing,
		maxCount:    st.MaxAbstractions,
	}, nil
}

func (s *IdentifyAbstractions) Execute(ctx context.Context, prep any) (any, error) {
	p := prep.(identifyPrep)
	s.logger.Info("identifying abstractions", slog.String("project", p.projectName))

	response, err := s.gen.Generate(ctx, identifyPrompt(p))
	if err != nil {
		return nil, err
	}

	list, ok := parseList(extractFencedBlock(response))
	if !ok {
		list, ok = parseList(extractListBlock(response))
	}
	if !ok {
		// One reformat round trip before giving up: ask the model to
		// restate its own output as a strict YAML list.
		reformatted, err := s.gen.Generate(ctx, reformatPrompt(response))
		if err != nil {
			return nil, err
		}
		list, ok = parseList(extractFencedBlock(reformatted))
		if !ok {
			list, ok = parseList(extractListBlock(reformatted))
		}
		if !ok {
			return nil, domain.ErrMalformedOutput("model did not return a YAML list of abstractions")
		}
	}

	abstractions := make([]domain.Abstraction, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := firstString(m, "name", "Name")
		desc := firstString(m, "description", "Description")

		rawIndices, ok := m["file_indices"].([]any)
		if !ok {
			rawIndices, _ = m["files"].([]any)
		}
		var indices []int
		seen := make(map[int]bool)
		for _, ref := range rawIndices {
			if idx, ok := parseIndexRef(ref); ok && idx >= 0 && idx < p.nFiles && !seen[idx] {
				seen[idx] = true
				indices = append(indices, idx)
			}
		}
		sort.Ints(indices)

		abstractions = append(abstractions, domain.Abstraction{
			Name:        name,
			Description: desc,
			FileIndices: indices,
		})
	}
	if len(abstractions) == 0 {
		return nil, domain.ErrMalformedOutput("model returned no usable abstractions")
	}
	return abstractions, nil
}

func (s *IdentifyAbstractions) Finalize(_ context.Context, st *flow.State, _, result any) error {
	abstractions := result.([]domain.Abstraction)
	st.Abstractions = abstractions
	names := make([]string, len(abstractions))
	for i, a := range abstractions {
		names[i] = a.Name
	}
	s.logger.Info("identified abstractions", slog.Int("count", len(abstractions)), slog.Any("names", names))
	return nil
}

func identifyPrompt(p identifyPrep) string {
	languageInstruction, langHint := languageNotes(p.language)

	var b strings.Builder
	fmt.Fprintf(&b, "For the project `%s`:\n\nCodebase Context:\n%s\n\n", p.projectName, p.fileContext)
	b.WriteString(languageInstruction)
	fmt.Fprintf(&b, "Analyze the codebase context.\n"+
		"Identify the top 5-%d core most important abstractions to help those new to the codebase.\n\n", p.maxCount)
	fmt.Fprintf(&b, "For each abstraction, provide:\n"+
		"1. A concise `name`%s.\n"+
		"2. A beginner-friendly `description` explaining what it is with a simple analogy, in around 100 words%s.\n"+
		"3. A list of relevant `file_indices` (integers) using the format `idx # path/comment`.\n\n", langHint, langHint)
	fmt.Fprintf(&b, "List of file indices and paths present in the context:\n%s\n\n", p.fileListing)
	fmt.Fprintf(&b, "Format the output as a YAML list of dictionaries:\n\n"+
		"```yaml\n"+
		"- name: |\n"+
		"    Query Processing%s\n"+
		"  description: |\n"+
		"    Explains what the abstraction does.\n"+
		"    It's like a central dispatcher routing requests.%s\n"+
		"  file_indices:\n"+
		"    - 0 # path/to/file1.py\n"+
		"    - 3 # path/to/related.py\n"+
		"# ... up to %d abstractions\n"+
		"```", langHint, langHint, p.maxCount)
	return b.String()
}

func reformatPrompt(response string) string {
	return "Reformat the following content into a YAML list only. " +
		"Each item must have keys: name, description, file_indices (list of ints). " +
		"No prose, no code fences.\n\nContent:\n" + response
}

func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return "english"
	}
	return language
}

// languageNotes returns the prompt preamble and field hint for
// non-English output; both are empty for English.
func languageNotes(language string) (instruction, hint string) {
	if language == "english" {
		return "", ""
	}
	capitalized := capitalize(language)
	instruction = fmt.Sprintf("IMPORTANT: Generate the `name` and `description` for each abstraction in **%s** language. Do NOT use English for these fields.\n\n", capitalized)
	hint = fmt.Sprintf(" (value in %s)", capitalized)
	return instruction, hint
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var _ flow.Step = (*IdentifyAbstractions)(nil)
