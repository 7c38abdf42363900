package clawless

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHomeHonorsEnvOverride(t *testing.T) {
	t.Setenv("CLAWLESS_HOME", "/tmp/custom-clawless-home")
	if got := Home(); got != "/tmp/custom-clawless-home" {
		t.Fatalf("expected env override, got %q", got)
	}
}

func TestHomeDefaultsUnderUserHomeDir(t *testing.T) {
	os.Unsetenv("CLAWLESS_HOME")
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".clawless")
	if got := Home(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPathHelpersAreUnderHome(t *testing.T) {
	t.Setenv("CLAWLESS_HOME", "/tmp/custom-clawless-home")

	if got := SchedulesPath(); got != "/tmp/custom-clawless-home/schedules.json" {
		t.Fatalf("unexpected SchedulesPath: %q", got)
	}
	if got := CallbackStatePath(); got != "/tmp/custom-clawless-home/callback-chat-state.json" {
		t.Fatalf("unexpected CallbackStatePath: %q", got)
	}
	if got := MemoryNotesPath(); got != "/tmp/custom-clawless-home/MEMORY.md" {
		t.Fatalf("unexpected MemoryNotesPath: %q", got)
	}
	if got := SemanticStorePath(); got != "/tmp/custom-clawless-home/conversation-semantic-memory.db" {
		t.Fatalf("unexpected SemanticStorePath: %q", got)
	}
}

func TestEnsureHomeCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLAWLESS_HOME", filepath.Join(dir, "nested", "home"))

	if err := EnsureHome(); err != nil {
		t.Fatalf("EnsureHome: %v", err)
	}
	info, err := os.Stat(Home())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected Home() to be a directory")
	}
}
