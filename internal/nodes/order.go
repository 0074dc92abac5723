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

// OrderChapters asks the model for the best pedagogical order of the
// abstractions. The answer must be a permutation of all indices.
type OrderChapters struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewOrderChapters creates the ordering stage.
func NewOrderChapters(gen llm.Generator, logger *slog.Logger) *OrderChapters {
	return &OrderChapters{gen: gen, logger: logger}
}

func (s *OrderChapters) Name() string { return "order-chapters" }

func (s *OrderChapters) Requires() []flow.Field {
	return []flow.Field{flow.FieldAbstractions, flow.FieldRelationships, flow.FieldProjectName, flow.FieldLanguage}
}

func (s *OrderChapters) Provides() []flow.Field {
	return []flow.Field{flow.FieldChapterOrder}
}

type orderPrep struct {
	projectName     string
	listing         string
	context         string
	listLangNote    string
	numAbstractions int
}

func (s *OrderChapters) Prepare(_ context.Context, st *flow.State) (any, error) {
	language := normalizeLanguage(st.Language)

	listing := make([]string, len(st.Abstractions))
	for i, a := range st.Abstractions {
		listing[i] = fmt.Sprintf("- %d # %s", i, a.Name)
	}

	var summaryNote, listLangNote string
	if language != "english" {
		capitalized := capitalize(language)
		summaryNote = fmt.Sprintf(" (Note: Project Summary might be in %s)", capitalized)
		listLangNote = fmt.Sprintf(" (Names might be in %s)", capitalized)
	}

	var ctxBuf strings.Builder
	fmt.Fprintf(&ctxBuf, "Project Summary%s:\n%s\n\n", summaryNote, st.Relationships.Summary)
	ctxBuf.WriteString("Relationships (Indices refer to abstractions above):\n")
	for _, rel := range st.Relationships.Details {
		fromName, toName := "", ""
		if rel.From < len(st.Abstractions) {
			fromName = st.Abstractions[rel.From].Name
		}
		if rel.To < len(st.Abstractions) {
			toName = st.Abstractions[rel.To].Name
		}
		fmt.Fprintf(&ctxBuf, "- From %d (%s) to %d (%s): %s\n", rel.From, fromName, rel.To, toName, rel.Label)
	}

	return orderPrep{
		projectName:     st.ProjectName,
		listing:         strings.Join(listing, "\n"),
		context:         ctxBuf.String(),
		listLangNote:    listLangNote,
		numAbstractions: len(st.Abstractions),
	}, nil
}

func (s *OrderChapters) Execute(ctx context.Context, prep any) (any, error) {
	p := prep.(orderPrep)

	response, err := s.gen.Generate(ctx, orderPrompt(p))
	if err != nil {
		return nil, err
	}

	list, ok := parseList(extractFencedBlock(response))
	if !ok {
		list, ok = parseList(extractListBlock(response))
	}
	if !ok {
		return nil, domain.ErrMalformedOutput("model did not return a YAML list for chapter order")
	}

	var order []int
	seen := make(map[int]bool)
	for _, item := range list {
		idx, ok := parseIndexRef(item)
		if !ok || idx < 0 || idx >= p.numAbstractions || seen[idx] {
			s.logger.Warn("skipping invalid chapter order item", slog.Any("item", item))
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}

	if len(order) != p.numAbstractions {
		return nil, domain.ErrMalformedOutput(fmt.Sprintf(
			"chapter order must contain each abstraction index exactly once; got %v of %d", order, p.numAbstractions))
	}
	return order, nil
}

func (s *OrderChapters) Finalize(_ context.Context, st *flow.State, _, result any) error {
	st.ChapterOrder = result.([]int)
	s.logger.Info("determined chapter order", slog.Any("order", st.ChapterOrder))
	return nil
}

func orderPrompt(p orderPrep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the following project abstractions and their relationships for the project `%s`:\n\n", p.projectName)
	fmt.Fprintf(&b, "Abstractions (Index # Name)%s:\n%s\n\n", p.listLangNote, p.listing)
	fmt.Fprintf(&b, "Context about relationships and project summary:\n%s\n\n", p.context)
	fmt.Fprintf(&b, "If you are going to make a tutorial for `%s`, what is the best order to explain these abstractions, from first to last?\n", p.projectName)
	b.WriteString("Ideally, first explain those that are the most important or foundational, perhaps user-facing concepts or entry points. " +
		"Then move to more detailed, lower-level implementation details or supporting concepts.\n\n" +
		"Output the ordered list of abstraction indices, including the name in a comment for clarity. Use the format `idx # AbstractionName`.\n\n" +
		"```yaml\n" +
		"- 2 # FoundationalConcept\n" +
		"- 0 # CoreClassA\n" +
		"- 1 # CoreClassB (uses CoreClassA)\n" +
		"```\n\nNow, provide the YAML output:\n")
	return b.String()
}

var _ flow.Step = (*OrderChapters)(nil)
