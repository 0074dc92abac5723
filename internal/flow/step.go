package flow

import "context"

// Stage is the common surface of the two stage variants. Identity is the
// stage's position in the flow; Name is for logs and errors only.
type Stage interface {
	Name() string

	// Requires lists the fields the stage reads. The flow rejects a
	// chain where a stage requires a field nothing earlier provides.
	Requires() []Field

	// Provides lists the fields the stage writes in its finalize phase.
	Provides() []Field
}

// Step is a plain stage with three phases executed in sequence:
// Prepare reads inputs from the state, Execute performs the computation
// (possibly calling an external collaborator) without touching the state,
// and Finalize writes the outputs back.
type Step interface {
	Stage

	Prepare(ctx context.Context, st *State) (any, error)
	Execute(ctx context.Context, prep any) (any, error)
	Finalize(ctx context.Context, st *State, prep, result any) error
}

// BatchStep maps its execute phase over an ordered item sequence produced
// by PrepareBatch. Items run strictly in order and never overlap: an item
// may depend on the side effects of earlier items (the chapter writer
// feeds each chapter the ones written before it). FinalizeBatch runs once
// with one result per item, indexed identically to the input items.
type BatchStep interface {
	Stage

	PrepareBatch(ctx context.Context, st *State) ([]any, error)
	ExecuteItem(ctx context.Context, item any) (any, error)
	FinalizeBatch(ctx context.Context, st *State, items, results []any) error
}
