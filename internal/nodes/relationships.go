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
)

// AnalyzeRelationships asks the model for a project summary plus the
// directed edges between abstractions, referenced by index.
type AnalyzeRelationships struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewAnalyzeRelationships creates the relationship stage.
func NewAnalyzeRelationships(gen llm.Generator, logger *slog.Logger) *AnalyzeRelationships {
	return &AnalyzeRelationships{gen: gen, logger: logger}
}

func (s *AnalyzeRelationships) Name() string { return "analyze-relationships" }

func (s *AnalyzeRelationships) Requires() []flow.Field {
	return []flow.Field{flow.FieldAbstractions, flow.FieldFiles, flow.FieldProjectName, flow.FieldLanguage}
}

func (s *AnalyzeRelationships) Provides() []flow.Field {
	return []flow.Field{flow.FieldRelationships}
}

type relationshipsPrep struct {
	projectName     string
	language        string
	abstractionList string
	context         string
	numAbstractions int
}

func (s *AnalyzeRelationships) Prepare(_ context.Context, st *flow.State) (any, error) {
	var contextLines, listing []string
	contextLines = append(contextLines, "Identified Abstractions:")
	fileIndexSet := make(map[int]bool)
	for i, a := range st.Abstractions {
		indices := make([]string, len(a.FileIndices))
		for j, idx := range a.FileIndices {
			indices[j] = fmt.Sprintf("%d", idx)
			fileIndexSet[idx] = true
		}
		contextLines = append(contextLines, fmt.Sprintf(
			"- Index %d: %s (Relevant file indices: [%s])\n  Description: %s",
			i, a.Name, strings.Join(indices, ", "), a.Description))
		listing = append(listing, fmt.Sprintf("%d # %s", i, a.Name))
	}

	allIndices := make([]int, 0, len(fileIndexSet))
	for idx := range fileIndexSet {
		allIndices = append(allIndices, idx)
	}
	sort.Ints(allIndices)

	contextLines = append(contextLines, "\nRelevant File Snippets (Referenced by Index and Path):")
	snippets := contentForIndices(st.Files, allIndices)
	keys := make([]string, 0, len(snippets))
	for key := range snippets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		contextLines = append(contextLines, fmt.Sprintf("--- File %s ---\n%s", key, snippets[key]))
	}

	return relationshipsPrep{
		projectName:     st.ProjectName,
		language:        normalizeLanguage(st.Language),
		abstractionList: strings.Join(listing, "\n"),
		context:         strings.Join(contextLines, "\n"),
		numAbstractions: len(st.Abstractions),
	}, nil
}

func (s *AnalyzeRelationships) Execute(ctx context.Context, prep any) (any, error) {
	p := prep.(relationshipsPrep)
	s.logger.Info("analyzing relationships", slog.String("project", p.projectName))

	response, err := s.gen.Generate(ctx, relationshipsPrompt(p))
	if err != nil {
		return nil, err
	}

	data, ok := parseDict(extractFencedBlock(response))
	if !ok {
		return nil, domain.ErrMalformedOutput("model did not return a YAML mapping for relationships")
	}

	summary := firstString(data, "summary", "Summary")
	rawDetails, ok := data["details"].([]any)
	if !ok {
		rawDetails, ok = data["relationships"].([]any)
	}
	if !ok {
		s.logger.Warn("model returned no relationship list")
		rawDetails = nil
	}

	var details []domain.Relationship
	for _, item := range rawDetails {
		m, ok := item.(map[string]any)
		if !ok {
			s.logger.Warn("skipping invalid relationship item", slog.Any("item", item))
			continue
		}
		from, fromOK := parseIndexRef(firstValue(m, "from_abstraction", "from"))
		to, toOK := parseIndexRef(firstValue(m, "to_abstraction", "to"))
		if !fromOK || !toOK || from < 0 || from >= p.numAbstractions || to < 0 || to >= p.numAbstractions {
			s.logger.Warn("skipping out-of-range relationship", slog.Any("item", item))
			continue
		}
		details = append(details, domain.Relationship{
			From:  from,
			To:    to,
			Label: firstString(m, "label", "Label"),
		})
	}

	return domain.RelationshipSet{Summary: summary, Details: details}, nil
}

func (s *AnalyzeRelationships) Finalize(_ context.Context, st *flow.State, _, result any) error {
	st.Relationships = result.(domain.RelationshipSet)
	s.logger.Info("extracted relationships", slog.Int("count", len(st.Relationships.Details)))
	return nil
}

func relationshipsPrompt(p relationshipsPrep) string {
	var instruction, hint, listNote string
	if p.language != "english" {
		capitalized := capitalize(p.language)
		instruction = fmt.Sprintf("IMPORTANT: Generate the `summary` and relationship `label` fields in **%s** language. Do NOT use English for these fields.\n\n", capitalized)
		hint = fmt.Sprintf(" (in %s)", capitalized)
		listNote = fmt.Sprintf(" (Names might be in %s)", capitalized)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following abstractions and relevant code snippets from the project `%s`:\n\n", p.projectName)
	fmt.Fprintf(&b, "List of Abstraction Indices and Names%s:\n%s\n\n", listNote, p.abstractionList)
	fmt.Fprintf(&b, "Context (Abstractions, Descriptions, Code):\n%s\n\n", p.context)
	b.WriteString(instruction)
	fmt.Fprintf(&b, "Please provide:\n"+
		"1. A high-level `summary` of the project's main purpose and functionality in a few beginner-friendly sentences%s. Use markdown formatting with **bold** and *italic* text to highlight important concepts.\n"+
		"2. A list (`relationships`) describing the key interactions between these abstractions. For each relationship, specify:\n"+
		"   - `from_abstraction`: Index of the source abstraction (e.g., `0 # AbstractionName1`)\n"+
		"   - `to_abstraction`: Index of the target abstraction (e.g., `1 # AbstractionName2`)\n"+
		"   - `label`: A brief label for the interaction **in just a few words**%s (e.g., \"Manages\", \"Inherits\", \"Uses\").\n"+
		"   Simplify the relationships and exclude the non-important ones.\n\n", hint, hint)
	b.WriteString("IMPORTANT: Make sure EVERY abstraction is involved in at least ONE relationship (either as source or target).\n\n")
	fmt.Fprintf(&b, "Format the output as YAML:\n\n"+
		"```yaml\n"+
		"summary: |\n"+
		"  A brief, simple explanation of the project%s.\n"+
		"relationships:\n"+
		"  - from_abstraction: 0 # AbstractionName1\n"+
		"    to_abstraction: 1 # AbstractionName2\n"+
		"    label: \"Manages\"\n"+
		"```\n\nNow, provide the YAML output:\n", hint)
	return b.String()
}

func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

var _ flow.Step = (*AnalyzeRelationships)(nil)
