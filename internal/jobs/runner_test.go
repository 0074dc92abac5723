package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/webhook"
)

// stubStep drives the state to a fixed outcome.
type stubStep struct {
	execErr error
	panics  bool
}

func (s *stubStep) Name() string           { return "stub" }
func (s *stubStep) Requires() []flow.Field { return []flow.Field{flow.FieldSource} }
func (s *stubStep) Provides() []flow.Field { return []flow.Field{flow.FieldFinalOutputDir} }

func (s *stubStep) Prepare(_ context.Context, _ *flow.State) (any, error) { return nil, nil }

func (s *stubStep) Execute(_ context.Context, _ any) (any, error) {
	if s.panics {
		panic("stage exploded")
	}
	return nil, s.execErr
}

func (s *stubStep) Finalize(_ context.Context, st *flow.State, _, _ any) error {
	st.FinalOutputDir = "output/stub"
	return nil
}

type capturingNotifier struct {
	notices chan webhook.Notice
	urls    chan string
}

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{
		notices: make(chan webhook.Notice, 4),
		urls:    make(chan string, 4),
	}
}

func (n *capturingNotifier) Deliver(_ context.Context, url string, notice webhook.Notice) {
	n.urls <- url
	n.notices <- notice
}

func factoryFor(step flow.Step) FlowFactory {
	return func() (*flow.Flow, error) {
		return flow.New([]flow.Field{flow.FieldSource}, step)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitTerminal(t *testing.T, store *Store, id string) Record {
	t.Helper()
	var rec Record
	require.Eventually(t, func() bool {
		var ok bool
		rec, ok = store.Get(id)
		return ok && rec.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return rec
}

func TestRunnerCompletesJob(t *testing.T) {
	store := NewStore()
	notifier := newCapturingNotifier()
	runner := NewRunner(store, factoryFor(&stubStep{}), notifier, 2, testLogger())

	id := store.Create(Inputs{LocalDir: "/tmp/src"}, "https://example.com/hook")
	runner.Start(context.Background(), id)

	rec := waitTerminal(t, store, id)
	require.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)
	require.Equal(t, "output/stub", rec.Result.OutputDir)

	select {
	case notice := <-notifier.notices:
		require.Equal(t, id, notice.JobID)
		require.Equal(t, string(StatusCompleted), notice.Status)
		require.NotNil(t, notice.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook notice never delivered")
	}
	require.Equal(t, "https://example.com/hook", <-notifier.urls)
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := NewStore()
	notifier := newCapturingNotifier()
	boom := errors.New("generator unavailable")
	runner := NewRunner(store, factoryFor(&stubStep{execErr: boom}), notifier, 2, testLogger())

	id := store.Create(Inputs{LocalDir: "/tmp/src"}, "https://example.com/hook")
	runner.Start(context.Background(), id)

	rec := waitTerminal(t, store, id)
	require.Equal(t, StatusFailed, rec.Status)
	require.Contains(t, rec.Error, "generator unavailable")
	require.Nil(t, rec.Result)

	notice := <-notifier.notices
	require.Equal(t, string(StatusFailed), notice.Status)
	require.Contains(t, notice.Error, "generator unavailable")
}

func TestRunnerRecoversPanic(t *testing.T) {
	store := NewStore()
	runner := NewRunner(store, factoryFor(&stubStep{panics: true}), nil, 1, testLogger())

	id := store.Create(Inputs{LocalDir: "/tmp/src"}, "")
	runner.Start(context.Background(), id)

	rec := waitTerminal(t, store, id)
	require.Equal(t, StatusFailed, rec.Status)
	require.Contains(t, rec.Error, "pipeline panicked")
}

func TestRunnerSkipsNotifyWithoutCallback(t *testing.T) {
	store := NewStore()
	notifier := newCapturingNotifier()
	runner := NewRunner(store, factoryFor(&stubStep{}), notifier, 1, testLogger())

	id := store.Create(Inputs{LocalDir: "/tmp/src"}, "")
	runner.Start(context.Background(), id)

	waitTerminal(t, store, id)
	select {
	case <-notifier.notices:
		t.Fatal("notice delivered for a job without a callback URL")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunnerFactoryErrorFailsJob(t *testing.T) {
	store := NewStore()
	factory := func() (*flow.Flow, error) { return nil, errors.New("bad wiring") }
	runner := NewRunner(store, factory, nil, 1, testLogger())

	id := store.Create(Inputs{LocalDir: "/tmp/src"}, "")
	runner.Start(context.Background(), id)

	rec := waitTerminal(t, store, id)
	require.Equal(t, StatusFailed, rec.Status)
	require.Contains(t, rec.Error, "bad wiring")
}

func TestStateFromInputsDefaults(t *testing.T) {
	st := stateFromInputs(Inputs{RepoURL: "https://github.com/acme/repo"})
	require.Equal(t, "english", st.Language)
	require.Equal(t, "output", st.OutputDir)
	require.Equal(t, int64(100_000), st.MaxFileSize)
	require.Equal(t, 10, st.MaxAbstractions)

	st = stateFromInputs(Inputs{
		LocalDir:        "/src",
		Language:        "spanish",
		OutputDir:       "docs",
		MaxFileSize:     500,
		MaxAbstractions: 3,
	})
	require.Equal(t, "spanish", st.Language)
	require.Equal(t, "docs", st.OutputDir)
	require.Equal(t, int64(500), st.MaxFileSize)
	require.Equal(t, 3, st.MaxAbstractions)
}
