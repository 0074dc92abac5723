package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/webhook"
)

// FlowFactory builds a fresh pipeline per run. Flows carry per-run stage
// state (the chapter writer accumulates content), so they must never be
// shared across jobs.
type FlowFactory func() (*flow.Flow, error)

// Notifier delivers a terminal-state notice to a callback URL. Satisfied
// by *webhook.Dispatcher.
type Notifier interface {
	Deliver(ctx context.Context, url string, notice webhook.Notice)
}

// Runner executes jobs on their own goroutines, bounded by a semaphore,
// and writes terminal states back to the store.
type Runner struct {
	store    *Store
	newFlow  FlowFactory
	notifier Notifier
	logger   *slog.Logger
	sem      chan struct{}
}

// NewRunner creates a runner with at most maxConcurrent jobs executing at
// once. maxConcurrent values below 1 are treated as 1.
func NewRunner(store *Store, newFlow FlowFactory, notifier Notifier, maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		store:    store,
		newFlow:  newFlow,
		notifier: notifier,
		logger:   logger,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Start launches the job's execution and returns immediately. The job
// must exist in the store with status queued.
func (r *Runner) Start(ctx context.Context, id string) {
	go r.run(ctx, id)
}

func (r *Runner) run(ctx context.Context, id string) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	rec, ok := r.store.Get(id)
	if !ok {
		r.logger.Error("job vanished before execution", slog.String("job_id", id))
		return
	}
	if err := r.store.Transition(id, StatusRunning, nil, ""); err != nil {
		r.logger.Error("job could not start", slog.String("job_id", id), slog.String("error", err.Error()))
		return
	}
	r.logger.Info("job started", slog.String("job_id", id))

	st := stateFromInputs(rec.Inputs)
	err := r.execute(ctx, st)

	if err != nil {
		if terr := r.store.Transition(id, StatusFailed, nil, err.Error()); terr != nil {
			r.logger.Error("failed transition rejected", slog.String("job_id", id), slog.String("error", terr.Error()))
		}
		r.logger.Error("job failed", slog.String("job_id", id), slog.String("error", err.Error()))
	} else {
		result := st.Result()
		if terr := r.store.Transition(id, StatusCompleted, &result, ""); terr != nil {
			r.logger.Error("completed transition rejected", slog.String("job_id", id), slog.String("error", terr.Error()))
		}
		r.logger.Info("job completed", slog.String("job_id", id), slog.String("output_dir", result.OutputDir))
	}

	r.notify(ctx, id)
}

// execute runs the pipeline, converting a panic in any stage into an
// ordinary error so the job always reaches a terminal state.
func (r *Runner) execute(ctx context.Context, st *flow.State) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panicked: %v", rec)
		}
	}()

	f, err := r.newFlow()
	if err != nil {
		return err
	}
	return f.Run(ctx, st)
}

func (r *Runner) notify(ctx context.Context, id string) {
	rec, ok := r.store.Get(id)
	if !ok || rec.CallbackURL == "" || r.notifier == nil {
		return
	}
	r.notifier.Deliver(ctx, rec.CallbackURL, webhook.Notice{
		JobID:       rec.ID,
		Status:      string(rec.Status),
		Result:      rec.Result,
		Error:       rec.Error,
		CompletedAt: rec.UpdatedAt,
	})
}

// stateFromInputs copies the job's input snapshot into a fresh pipeline
// state, leaving unset fields at their defaults.
func stateFromInputs(in Inputs) *flow.State {
	st := flow.NewState()
	st.RepoURL = in.RepoURL
	st.LocalDir = in.LocalDir
	st.ProjectName = in.ProjectName
	st.GitHubToken = in.GitHubToken
	st.Language = in.Language
	st.IncludePatterns = in.IncludePatterns
	st.ExcludePatterns = in.ExcludePatterns
	if in.OutputDir != "" {
		st.OutputDir = in.OutputDir
	}
	if in.Language == "" {
		st.Language = "english"
	}
	if in.MaxFileSize > 0 {
		st.MaxFileSize = in.MaxFileSize
	}
	if in.MaxAbstractions > 0 {
		st.MaxAbstractions = in.MaxAbstractions
	}
	return st
}
