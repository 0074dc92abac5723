package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(attempt int) error {
		calls++
		require.Equal(t, calls, attempt)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("always")
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(int) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(int) error {
		calls++
		return Permanent(fatal)
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoHonorsServerDelay(t *testing.T) {
	start := time.Now()
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Hour}, func(int) error {
		calls++
		if calls == 1 {
			return After(errors.New("rate limited"), 5*time.Millisecond)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	// The hour-long base delay must have been replaced by the server's.
	require.Less(t, time.Since(start), time.Second)
}

func TestDoRespectsContextDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour}, func(int) error {
		calls++
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDoCapsDelayAtMax(t *testing.T) {
	start := time.Now()
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Millisecond}, func(int) error {
		return errors.New("transient")
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestPermanentNil(t *testing.T) {
	require.NoError(t, Permanent(nil))
	require.NoError(t, After(nil, time.Second))
}
