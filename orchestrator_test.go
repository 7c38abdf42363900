package clawless

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIsAbortCommandMatchesKnownWords(t *testing.T) {
	cases := []string{"abort", "Abort", "CANCEL", "stop", "/abort", "/Cancel!", "please stop.", "  stop  ", "please cancel?"}
	for _, c := range cases {
		if !isAbortCommand(c) {
			t.Errorf("expected %q to be recognized as an abort command", c)
		}
	}
}

func TestIsAbortCommandRejectsUnrelatedText(t *testing.T) {
	cases := []string{"hello", "stopwatch", "please continue", ""}
	for _, c := range cases {
		if isAbortCommand(c) {
			t.Errorf("expected %q to not be recognized as an abort command", c)
		}
	}
}

func newTestOrchestrator(platform Platform, whitelist []string) *Orchestrator {
	dir, _ := os.MkdirTemp("", "clawless-orch-test")
	cfg := OrchestratorConfig{
		Profile:           AgentProfile{Command: "true"},
		Platform:          platform,
		Whitelist:         whitelist,
		CallbackStatePath: filepath.Join(dir, "bound.json"),
	}
	return NewOrchestrator(cfg, testLogger())
}

func TestOrchestratorWhitelistedAllowsAllWhenEmpty(t *testing.T) {
	o := newTestOrchestrator(newFakePlatform(), nil)
	if !o.whitelisted("anyone") {
		t.Fatal("expected empty whitelist to allow all users")
	}
}

func TestOrchestratorWhitelistedRequiresExactMatch(t *testing.T) {
	o := newTestOrchestrator(newFakePlatform(), []string{"user-1", "user-2"})
	if !o.whitelisted("user-1") {
		t.Fatal("expected whitelisted user to be allowed")
	}
	if o.whitelisted("user-3") {
		t.Fatal("expected non-whitelisted user to be rejected")
	}
}

func TestOrchestratorSendToBoundChatUsesExplicitChatID(t *testing.T) {
	fp := newFakePlatform()
	o := newTestOrchestrator(fp, nil)
	o.bound.Set("bound-chat")

	target, err := o.SendToBoundChat(context.Background(), "explicit-chat", "hello")
	if err != nil {
		t.Fatalf("SendToBoundChat: %v", err)
	}
	if target != "explicit-chat" {
		t.Fatalf("expected explicit chat id to take precedence, got %q", target)
	}
}

func TestOrchestratorSendToBoundChatFallsBackToBound(t *testing.T) {
	fp := newFakePlatform()
	o := newTestOrchestrator(fp, nil)
	o.bound.Set("bound-chat")

	target, err := o.SendToBoundChat(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("SendToBoundChat: %v", err)
	}
	if target != "bound-chat" {
		t.Fatalf("expected fallback to bound chat, got %q", target)
	}
}

func TestOrchestratorSendToBoundChatErrorsWithoutAnyChat(t *testing.T) {
	fp := newFakePlatform()
	o := newTestOrchestrator(fp, nil)

	_, err := o.SendToBoundChat(context.Background(), "", "hello")
	if err != ErrNoBoundChat {
		t.Fatalf("expected ErrNoBoundChat, got %v", err)
	}
}

func TestOrchestratorHandleAbortWithoutActivePromptRepliesInfo(t *testing.T) {
	fp := newFakePlatform()
	o := newTestOrchestrator(fp, nil)

	o.handleAbort(context.Background(), "chat-1")

	if got := fp.lastText(); got != "ℹ️ No active agent action to abort." {
		t.Fatalf("expected no-active-prompt reply, got %q", got)
	}
}

func TestEnsureMemoryNotesFileCreatesDefaultContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "MEMORY.md")

	if err := ensureMemoryNotesFile(path); err != nil {
		t.Fatalf("ensureMemoryNotesFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty default content")
	}
}

func TestEnsureMemoryNotesFileIsNoopWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MEMORY.md")
	if err := os.WriteFile(path, []byte("custom content"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := ensureMemoryNotesFile(path); err != nil {
		t.Fatalf("ensureMemoryNotesFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "custom content" {
		t.Fatalf("expected existing content preserved, got %q", string(data))
	}
}
