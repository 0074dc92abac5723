// Package flow provides the pipeline engine: a linear composition of
// stages over a typed shared state, with read/write contracts checked at
// construction time and a single batch stage variant.
package flow

import (
	"context"
	"fmt"
)

// Flow is an ordered composition of stages. There is no branching or
// looping: stages run in declared order, and a failure in any phase
// aborts the remainder of the run.
type Flow struct {
	initial []Field
	stages  []Stage
}

// New builds a Flow and validates the field chain: walking the stages in
// order, every required field must be an input field or provided by an
// earlier stage. A violation is a programming error in the flow
// definition and is reported before any run starts.
func New(initial []Field, stages ...Stage) (*Flow, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("flow: no stages")
	}

	available := make(map[Field]bool, len(initial))
	for _, f := range initial {
		available[f] = true
	}
	for i, stage := range stages {
		switch stage.(type) {
		case Step, BatchStep:
		default:
			return nil, fmt.Errorf("flow: stage %d (%s) implements neither Step nor BatchStep", i, stage.Name())
		}
		for _, req := range stage.Requires() {
			if !available[req] {
				return nil, fmt.Errorf("flow: stage %d (%s) requires field %q which no earlier stage provides", i, stage.Name(), req)
			}
		}
		for _, prov := range stage.Provides() {
			available[prov] = true
		}
	}

	return &Flow{initial: initial, stages: stages}, nil
}

// Run executes the stages in order against st. On the first error the
// remaining stages are skipped and the error is returned; the caller must
// treat the state as discarded and must not expose partial writes as
// results.
func (f *Flow) Run(ctx context.Context, st *State) error {
	present := make(map[Field]bool, len(f.initial))
	for _, field := range f.initial {
		present[field] = true
	}

	for i, stage := range f.stages {
		for _, req := range stage.Requires() {
			if !present[req] {
				return fmt.Errorf("flow: stage %d (%s): required field %q missing from state", i, stage.Name(), req)
			}
		}

		var err error
		switch s := stage.(type) {
		case Step:
			err = f.runStep(ctx, s, st)
		case BatchStep:
			err = f.runBatch(ctx, s, st)
		}
		if err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		for _, prov := range stage.Provides() {
			present[prov] = true
		}
	}
	return nil
}

func (f *Flow) runStep(ctx context.Context, s Step, st *State) error {
	prep, err := s.Prepare(ctx, st)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	result, err := s.Execute(ctx, prep)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if err := s.Finalize(ctx, st, prep, result); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

// runBatch executes one item at a time, in index order. Results
// accumulate in the same order; if item k fails, the batch fails as a
// whole and FinalizeBatch never runs.
func (f *Flow) runBatch(ctx context.Context, s BatchStep, st *State) error {
	items, err := s.PrepareBatch(ctx, st)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	results := make([]any, 0, len(items))
	for i, item := range items {
		result, err := s.ExecuteItem(ctx, item)
		if err != nil {
			return fmt.Errorf("execute item %d: %w", i, err)
		}
		results = append(results, result)
	}
	if err := s.FinalizeBatch(ctx, st, items, results); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}
