package clawless

import (
	"path/filepath"
	"testing"
)

func TestBoundChatGetEmptyByDefault(t *testing.T) {
	dir := t.TempDir()
	b := NewBoundChat(filepath.Join(dir, "bound.json"))
	if got := b.Get(); got != "" {
		t.Fatalf("expected empty binding, got %q", got)
	}
}

func TestBoundChatSetAndGet(t *testing.T) {
	dir := t.TempDir()
	b := NewBoundChat(filepath.Join(dir, "bound.json"))
	b.Set("chat-123")
	if got := b.Get(); got != "chat-123" {
		t.Fatalf("expected 'chat-123', got %q", got)
	}
}

func TestBoundChatPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bound.json")

	b1 := NewBoundChat(path)
	b1.Set("chat-persisted")

	b2 := NewBoundChat(path)
	if got := b2.Get(); got != "chat-persisted" {
		t.Fatalf("expected persisted binding 'chat-persisted', got %q", got)
	}
}

func TestBoundChatMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	b := NewBoundChat(filepath.Join(dir, "does-not-exist.json"))
	if got := b.Get(); got != "" {
		t.Fatalf("expected empty binding for missing file, got %q", got)
	}
}
