package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "recall.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreUpsertAndSearchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "note-1", "chat-1", "remember to water the plants"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, "note-2", "chat-1", "the quarterly report is due friday"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Search(ctx, "plants", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "note-1" {
		t.Fatalf("expected one match for 'plants', got %+v", results)
	}
}

func TestStoreUpsertReplacesExistingEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "note-1", "chat-1", "original text"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, "note-1", "chat-1", "updated text"); err != nil {
		t.Fatalf("Upsert (replace): %v", err)
	}

	results, err := s.Search(ctx, "updated", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Text != "updated text" {
		t.Fatalf("expected replaced entry, got %+v", results)
	}

	stale, err := s.Search(ctx, "original", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no match for stale text after replace, got %+v", stale)
	}
}

func TestStoreSearchScopesByChatID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "note-1", "chat-a", "shared keyword alpha"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, "note-2", "chat-b", "shared keyword beta"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Search(ctx, "shared", "chat-a", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "note-1" {
		t.Fatalf("expected only chat-a's entry, got %+v", results)
	}
}

func TestStoreSearchNoMatchReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "note-1", "", "something entirely unrelated"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results, err := s.Search(ctx, "nonexistentterm", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no matches, got %+v", results)
	}
}

func TestFtsPhraseEscapesEmbeddedQuotes(t *testing.T) {
	got := ftsPhrase(`say "hello" world`)
	want := `"say ""hello"" world"`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFtsPhraseNeutralizesOperators(t *testing.T) {
	// FTS5 treats AND/OR/- as operators outside of a quoted phrase; verify
	// that a query containing them still matches literally rather than
	// erroring out as a syntax error.
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "note-1", "", "cats AND dogs OR -birds"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results, err := s.Search(ctx, "cats AND dogs OR -birds", "", 10)
	if err != nil {
		t.Fatalf("Search should not error on operator-like input: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected literal phrase match, got %+v", results)
	}
}
