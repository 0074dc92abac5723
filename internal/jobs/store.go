// Package jobs tracks asynchronous tutorial builds: an in-memory store
// with a monotonic status lifecycle and age-based retention, plus the
// runner that executes the pipeline off the request path.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adityasoni99/code-iq/internal/domain"
)

// Status is a job lifecycle state. Transitions are monotonic: queued to
// running, running to completed or failed. Terminal states never change.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Inputs is the snapshot of build parameters a job was created with. The
// runner builds a fresh pipeline state from it; it is never mutated after
// creation.
type Inputs struct {
	RepoURL         string   `json:"repo_url,omitempty"`
	LocalDir        string   `json:"local_dir,omitempty"`
	ProjectName     string   `json:"project_name,omitempty"`
	GitHubToken     string   `json:"-"`
	OutputDir       string   `json:"output_dir,omitempty"`
	Language        string   `json:"language,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	MaxFileSize     int64    `json:"max_file_size,omitempty"`
	MaxAbstractions int      `json:"max_abstractions,omitempty"`
}

// Record is one tracked job. Result is set only on completed, Error only
// on failed.
type Record struct {
	ID          string                 `json:"job_id"`
	Status      Status                 `json:"status"`
	Inputs      Inputs                 `json:"inputs"`
	CallbackURL string                 `json:"-"`
	Result      *domain.TutorialResult `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Store holds job records in memory. All methods are safe for concurrent
// use; locking never leaks to callers.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Create inserts a queued record and returns its id.
func (s *Store) Create(inputs Inputs, callbackURL string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := s.now().UTC()
	s.records[id] = &Record{
		ID:          id,
		Status:      StatusQueued,
		Inputs:      inputs,
		CallbackURL: callbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return id
}

// Transition moves a job to next, recording the result on completed and
// the error message on failed. Only queued to running and running to a
// terminal state are legal.
func (s *Store) Transition(id string, next Status, result *domain.TutorialResult, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !validTransition(rec.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, next)
	}

	rec.Status = next
	rec.UpdatedAt = s.now().UTC()
	switch next {
	case StatusCompleted:
		rec.Result = result
	case StatusFailed:
		rec.Error = errMsg
	}
	return nil
}

func validTransition(current, next Status) bool {
	switch current {
	case StatusQueued:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Get returns a copy of the record. It never mutates timestamps.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Sweep evicts every record created before now minus retention,
// regardless of status, and returns how many were removed.
func (s *Store) Sweep(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-retention)
	removed := 0
	for id, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *Store) StartSweeper(ctx context.Context, interval, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now, retention); removed > 0 {
				logger.Info("swept expired jobs", slog.Int("removed", removed))
			}
		}
	}
}
