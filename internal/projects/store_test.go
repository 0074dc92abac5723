package projects

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/jobs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleChapters() []domain.Chapter {
	return []domain.Chapter{
		{Name: "Parser", Content: "# Chapter 1: Parser\n\nBody."},
		{Name: "Engine", Content: "# Chapter 2: Engine\n\nBody."},
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "A tiny calculator.", sampleChapters(), jobs.Inputs{
		RepoURL:  "https://github.com/acme/tiny",
		Language: "english",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("empty project id")
	}

	p, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Summary != "A tiny calculator." {
		t.Errorf("summary = %q", p.Summary)
	}
	if len(p.Chapters) != 2 || p.Chapters[0].Name != "Parser" {
		t.Errorf("chapters = %+v", p.Chapters)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestGetInternalExposesSourceInputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "summary", sampleChapters(), jobs.Inputs{
		RepoURL:         "https://github.com/acme/tiny",
		Language:        "italian",
		MaxAbstractions: 7,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p, source, err := store.GetInternal(ctx, id)
	if err != nil {
		t.Fatalf("GetInternal: %v", err)
	}
	if p.ID != id {
		t.Errorf("id = %q", p.ID)
	}
	if source.RepoURL != "https://github.com/acme/tiny" || source.Language != "italian" || source.MaxAbstractions != 7 {
		t.Errorf("source = %+v", source)
	}
}

func TestUpdatePartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "before", sampleChapters(), jobs.Inputs{LocalDir: "/src/tiny"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	summary := "after"
	if err := store.Update(ctx, id, &summary, nil); err != nil {
		t.Fatalf("Update summary: %v", err)
	}
	p, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Summary != "after" {
		t.Errorf("summary = %q", p.Summary)
	}
	if len(p.Chapters) != 2 {
		t.Errorf("chapters changed: %+v", p.Chapters)
	}

	chapters := []domain.Chapter{{Name: "Rewritten", Content: "new"}}
	if err := store.Update(ctx, id, nil, chapters); err != nil {
		t.Fatalf("Update chapters: %v", err)
	}
	p, err = store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Summary != "after" {
		t.Errorf("summary changed: %q", p.Summary)
	}
	if len(p.Chapters) != 1 || p.Chapters[0].Name != "Rewritten" {
		t.Errorf("chapters = %+v", p.Chapters)
	}
}

func TestNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assertNotFound := func(err error) {
		t.Helper()
		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeNotFound {
			t.Fatalf("want not_found error, got %v", err)
		}
	}

	_, err := store.Get(ctx, "missing")
	assertNotFound(err)

	_, _, err = store.GetInternal(ctx, "missing")
	assertNotFound(err)

	summary := "x"
	assertNotFound(store.Update(ctx, "missing", &summary, nil))
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	ctx := context.Background()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := store.Create(ctx, "durable", sampleChapters(), jobs.Inputs{LocalDir: "/src/tiny"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.Close()

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	p, err := reopened.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if p.Summary != "durable" {
		t.Errorf("summary = %q", p.Summary)
	}
}
