package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adityasoni99/code-iq/internal/domain"
)

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()
	id := store.Create(Inputs{RepoURL: "https://github.com/acme/repo"}, "")

	rec, ok := store.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusQueued, rec.Status)
	require.Equal(t, "https://github.com/acme/repo", rec.Inputs.RepoURL)
	require.False(t, rec.CreatedAt.IsZero())

	require.NoError(t, store.Transition(id, StatusRunning, nil, ""))

	result := &domain.TutorialResult{OutputDir: "output/repo", Summary: "done"}
	require.NoError(t, store.Transition(id, StatusCompleted, result, ""))

	rec, ok = store.Get(id)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, rec.Status)
	require.Equal(t, "output/repo", rec.Result.OutputDir)
	require.Empty(t, rec.Error)
}

func TestStoreFailureCapturesError(t *testing.T) {
	store := NewStore()
	id := store.Create(Inputs{LocalDir: "/tmp/src"}, "")

	require.NoError(t, store.Transition(id, StatusRunning, nil, ""))
	require.NoError(t, store.Transition(id, StatusFailed, nil, "provider blew up"))

	rec, _ := store.Get(id)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, "provider blew up", rec.Error)
	require.Nil(t, rec.Result)
}

func TestStoreRejectsInvalidTransitions(t *testing.T) {
	store := NewStore()
	id := store.Create(Inputs{}, "")

	// queued may not jump straight to a terminal state
	require.ErrorIs(t, store.Transition(id, StatusCompleted, nil, ""), ErrInvalidTransition)
	require.ErrorIs(t, store.Transition(id, StatusFailed, nil, ""), ErrInvalidTransition)

	require.NoError(t, store.Transition(id, StatusRunning, nil, ""))
	require.ErrorIs(t, store.Transition(id, StatusQueued, nil, ""), ErrInvalidTransition)

	require.NoError(t, store.Transition(id, StatusCompleted, nil, ""))
	// terminal states never transition again
	require.ErrorIs(t, store.Transition(id, StatusFailed, nil, ""), ErrInvalidTransition)
	require.ErrorIs(t, store.Transition(id, StatusRunning, nil, ""), ErrInvalidTransition)
}

func TestStoreTransitionUnknownJob(t *testing.T) {
	store := NewStore()
	require.ErrorIs(t, store.Transition("missing", StatusRunning, nil, ""), ErrNotFound)
}

func TestStoreGetUnknownJob(t *testing.T) {
	store := NewStore()
	_, ok := store.Get("missing")
	require.False(t, ok)
}

func TestStoreSweepEvictsByAgeOnly(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	oldRunning := store.Create(Inputs{}, "")
	require.NoError(t, store.Transition(oldRunning, StatusRunning, nil, ""))

	store.now = func() time.Time { return base.Add(30 * time.Minute) }
	fresh := store.Create(Inputs{}, "")

	removed := store.Sweep(base.Add(time.Hour), 45*time.Minute)
	require.Equal(t, 1, removed)

	_, ok := store.Get(oldRunning)
	require.False(t, ok, "expired job should be gone regardless of status")
	_, ok = store.Get(fresh)
	require.True(t, ok, "job inside the retention window must survive")
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusQueued.Terminal())
	require.False(t, StatusRunning.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
}
