// Package projects persists editable tutorial projects in SQLite. A
// project is a saved build result (summary plus chapters) together with
// the source inputs it was generated from, so it can be regenerated.
package projects

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/jobs"
)

// Project is the caller-visible record. Source inputs are deliberately
// absent: they may carry credentials (a GitHub token) and are only
// exposed through GetInternal.
type Project struct {
	ID        string           `json:"project_id"`
	Summary   string           `json:"summary"`
	Chapters  []domain.Chapter `json:"chapters"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store is a SQLite-backed project store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and initializes the
// schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			chapters TEXT NOT NULL,
			source_inputs TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Create inserts a new project and returns its id.
func (s *Store) Create(ctx context.Context, summary string, chapters []domain.Chapter, source jobs.Inputs) (string, error) {
	chaptersJSON, err := json.Marshal(chapters)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chapters: %w", err)
	}
	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return "", fmt.Errorf("failed to marshal source inputs: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	query := `INSERT INTO projects (id, summary, chapters, source_inputs, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		id, summary, string(chaptersJSON), string(sourceJSON), now, now); err != nil {
		return "", fmt.Errorf("failed to create project: %w", err)
	}
	return id, nil
}

// Get returns the project without its source inputs.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	query := `SELECT id, summary, chapters, created_at, updated_at
	          FROM projects WHERE id = ?`

	var p Project
	var chaptersJSON string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Summary, &chaptersJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound(fmt.Sprintf("project %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if err := json.Unmarshal([]byte(chaptersJSON), &p.Chapters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chapters: %w", err)
	}
	return &p, nil
}

// GetInternal returns the project together with its source inputs. Only
// the regeneration path may use it.
func (s *Store) GetInternal(ctx context.Context, id string) (*Project, jobs.Inputs, error) {
	query := `SELECT id, summary, chapters, source_inputs, created_at, updated_at
	          FROM projects WHERE id = ?`

	var p Project
	var chaptersJSON, sourceJSON string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Summary, &chaptersJSON, &sourceJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, jobs.Inputs{}, domain.ErrNotFound(fmt.Sprintf("project %s not found", id))
	}
	if err != nil {
		return nil, jobs.Inputs{}, fmt.Errorf("failed to get project: %w", err)
	}

	if err := json.Unmarshal([]byte(chaptersJSON), &p.Chapters); err != nil {
		return nil, jobs.Inputs{}, fmt.Errorf("failed to unmarshal chapters: %w", err)
	}
	var source jobs.Inputs
	if err := json.Unmarshal([]byte(sourceJSON), &source); err != nil {
		return nil, jobs.Inputs{}, fmt.Errorf("failed to unmarshal source inputs: %w", err)
	}
	return &p, source, nil
}

// Update replaces the summary and/or chapters. Nil arguments leave the
// field unchanged.
func (s *Store) Update(ctx context.Context, id string, summary *string, chapters []domain.Chapter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if summary != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET summary = ?, updated_at = ? WHERE id = ?`,
			*summary, now, id); err != nil {
			return fmt.Errorf("failed to update summary: %w", err)
		}
	}
	if chapters != nil {
		chaptersJSON, err := json.Marshal(chapters)
		if err != nil {
			return fmt.Errorf("failed to marshal chapters: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET chapters = ?, updated_at = ? WHERE id = ?`,
			string(chaptersJSON), now, id); err != nil {
			return fmt.Errorf("failed to update chapters: %w", err)
		}
	}

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	if exists == 0 {
		return domain.ErrNotFound(fmt.Sprintf("project %s not found", id))
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
