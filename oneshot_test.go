package clawless

import (
	"context"
	"strings"
	"testing"
)

func TestLastNCharsNoopWhenUnderLimit(t *testing.T) {
	if got := lastNChars("short", 10); got != "short" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
}

func TestLastNCharsTrimsToSuffix(t *testing.T) {
	s := strings.Repeat("a", 600) + "TAIL"
	got := lastNChars(s, 500)
	if len(got) != 500 {
		t.Fatalf("expected length 500, got %d", len(got))
	}
	if !strings.HasSuffix(got, "TAIL") {
		t.Fatalf("expected suffix preserved, got tail %q", got[len(got)-10:])
	}
}

func TestRunOneShotPromptCapturesStdout(t *testing.T) {
	// "true" ignores its argv entirely and always exits 0, so this is
	// deterministic regardless of AgentProfile's default PromptArgs.
	profile := AgentProfile{Command: "true"}
	output, err := RunOneShotPrompt(context.Background(), profile, AgentOptions{}, "", "ignored")
	if err != nil {
		t.Fatalf("RunOneShotPrompt: %v", err)
	}
	if output != "" {
		t.Fatalf("expected empty stdout from 'true', got %q", output)
	}
}

func TestRunOneShotPromptWrapsNonZeroExitWithStderrTail(t *testing.T) {
	profile := AgentProfile{Command: "false"}
	_, err := RunOneShotPrompt(context.Background(), profile, AgentOptions{}, "", "ignored")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
}

func TestHostOneShotRunnerDelegatesToRunOneShotPrompt(t *testing.T) {
	var runner OneShotRunner = HostOneShotRunner{}
	profile := AgentProfile{Command: "true"}
	output, err := runner.Run(context.Background(), profile, AgentOptions{}, "", "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if output != "" {
		t.Fatalf("expected empty stdout, got %q", output)
	}
}
