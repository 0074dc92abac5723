package nodes

import (
	"log/slog"

	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/llm"
	"github.com/adityasoni99/code-iq/internal/render"
	"github.com/adityasoni99/code-iq/internal/tokens"
)

// defaultContextBudget caps the token count of file content embedded in
// the abstraction-identification prompt.
const defaultContextBudget = 60_000

// PipelineDeps carries the collaborators shared across stages.
type PipelineDeps struct {
	Generator llm.Generator
	Counter   tokens.Counter
	Writer    render.Writer
	Logger    *slog.Logger

	// ContextBudget overrides defaultContextBudget when positive.
	ContextBudget int
}

// NewPipeline wires the full tutorial flow in its fixed stage order. The
// returned error reports a broken field chain, which can only come from
// a programming mistake in the stage definitions.
func NewPipeline(deps PipelineDeps) (*flow.Flow, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counter := deps.Counter
	if counter == nil {
		counter = &tokens.Estimator{}
	}
	var writer render.Writer = deps.Writer
	if writer == nil {
		writer = render.FSWriter{}
	}
	budget := deps.ContextBudget
	if budget <= 0 {
		budget = defaultContextBudget
	}

	return flow.New(flow.InputFields(),
		NewFetchRepo(logger),
		NewSummarizeFiles(deps.Generator, logger),
		NewIdentifyAbstractions(deps.Generator, counter, budget, logger),
		NewAnalyzeRelationships(deps.Generator, logger),
		NewOrderChapters(deps.Generator, logger),
		NewWriteChapters(deps.Generator, logger),
		NewCombineTutorial(writer, logger),
	)
}
