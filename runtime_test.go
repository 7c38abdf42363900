package clawless

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestRuntime() *Runtime {
	return NewRuntime(RuntimeConfig{Profile: AgentProfile{Command: "true"}}, testLogger())
}

func TestRuntimeHasActivePromptFalseByDefault(t *testing.T) {
	r := newTestRuntime()
	if r.HasActivePrompt() {
		t.Fatal("expected no active prompt on a fresh runtime")
	}
}

func TestRuntimeCancelActivePromptNoopWithoutSession(t *testing.T) {
	r := newTestRuntime()
	// Must not panic even though no connection/session exists yet.
	r.CancelActivePrompt()
	r.RequestManualAbort()
}

func TestRuntimeReadWriteTextFileAlwaysEmptyObject(t *testing.T) {
	r := newTestRuntime()
	if got := string(r.ReadTextFile(json.RawMessage(`{"path":"/etc/passwd"}`))); got != "{}" {
		t.Fatalf("expected empty object, got %q", got)
	}
	if got := string(r.WriteTextFile(json.RawMessage(`{"path":"/etc/passwd","content":"x"}`))); got != "{}" {
		t.Fatalf("expected empty object, got %q", got)
	}
}

func TestRuntimeRequestPermissionNoOptionsCancels(t *testing.T) {
	r := newTestRuntime()
	result := r.RequestPermission(RequestPermissionParams{})
	if result.Outcome.Outcome != "cancelled" {
		t.Fatalf("expected cancelled outcome for no options, got %+v", result)
	}
}

func TestRuntimeRequestPermissionStrategyCancelledAlwaysCancels(t *testing.T) {
	r := NewRuntime(RuntimeConfig{Profile: AgentProfile{Command: "true"}, PermissionStrategy: "cancelled"}, testLogger())
	result := r.RequestPermission(RequestPermissionParams{
		Options: []PermissionOption{{OptionID: "opt1", Kind: "allow_once"}},
	})
	if result.Outcome.Outcome != "cancelled" {
		t.Fatalf("expected cancelled outcome with strategy 'cancelled', got %+v", result)
	}
}

func TestRuntimeRequestPermissionMatchesConfiguredStrategy(t *testing.T) {
	r := NewRuntime(RuntimeConfig{Profile: AgentProfile{Command: "true"}, PermissionStrategy: "allow_always"}, testLogger())
	result := r.RequestPermission(RequestPermissionParams{
		Options: []PermissionOption{
			{OptionID: "opt1", Kind: "allow_once"},
			{OptionID: "opt2", Kind: "allow_always"},
		},
	})
	if result.Outcome.Outcome != "selected" || result.Outcome.OptionID != "opt2" {
		t.Fatalf("expected selection of matching-strategy option, got %+v", result)
	}
}

func TestRuntimeRequestPermissionFallsBackToFirstOption(t *testing.T) {
	r := NewRuntime(RuntimeConfig{Profile: AgentProfile{Command: "true"}, PermissionStrategy: "nonexistent_kind"}, testLogger())
	result := r.RequestPermission(RequestPermissionParams{
		Options: []PermissionOption{
			{OptionID: "opt1", Kind: "allow_once"},
			{OptionID: "opt2", Kind: "allow_always"},
		},
	})
	if result.Outcome.Outcome != "selected" || result.Outcome.OptionID != "opt1" {
		t.Fatalf("expected fallback to first option, got %+v", result)
	}
}

func TestRuntimeSessionUpdateIgnoredForDifferentSession(t *testing.T) {
	r := newTestRuntime()
	var received string
	r.mu.Lock()
	r.sessionID = "session-a"
	r.collector = newPromptCollector("session-a", func(chunk string) { received += chunk }, false)
	r.mu.Unlock()

	r.SessionUpdate(SessionUpdateParams{
		SessionID: "session-b",
		Update: SessionUpdatePayload{
			SessionUpdate: "agent_message_chunk",
			Content:       &ContentBlock{Type: "text", Text: "should be ignored"},
		},
	})

	if received != "" {
		t.Fatalf("expected update for a different session to be ignored, got %q", received)
	}
}

func TestRuntimeSessionUpdateForwardsTextChunks(t *testing.T) {
	r := newTestRuntime()
	var received string
	r.mu.Lock()
	r.sessionID = "session-a"
	r.collector = newPromptCollector("session-a", func(chunk string) { received += chunk }, false)
	r.mu.Unlock()

	r.SessionUpdate(SessionUpdateParams{
		SessionID: "session-a",
		Update: SessionUpdatePayload{
			SessionUpdate: "agent_message_chunk",
			Content:       &ContentBlock{Type: "text", Text: "hello"},
		},
	})

	if received != "hello" {
		t.Fatalf("expected forwarded chunk 'hello', got %q", received)
	}
}

func TestRuntimeSessionUpdateIgnoredWithoutActiveCollector(t *testing.T) {
	r := newTestRuntime()
	r.mu.Lock()
	r.sessionID = "session-a"
	r.mu.Unlock()

	// Must not panic with no active collector.
	r.SessionUpdate(SessionUpdateParams{
		SessionID: "session-a",
		Update: SessionUpdatePayload{
			SessionUpdate: "agent_message_chunk",
			Content:       &ContentBlock{Type: "text", Text: "hello"},
		},
	})
}

func TestPromptCollectorAccumulatesChunks(t *testing.T) {
	c := newPromptCollector("s1", nil, false)
	c.append("hello ")
	c.append("world")
	if got := c.String(); got != "hello world" {
		t.Fatalf("expected 'hello world', got %q", got)
	}
}

func TestPromptCollectorSwallowsOnChunkPanic(t *testing.T) {
	c := newPromptCollector("s1", func(chunk string) { panic("boom") }, false)
	// append must not propagate the panic from onChunk.
	c.append("hello")
	if got := c.String(); got != "hello" {
		t.Fatalf("expected buffer to still accumulate despite onChunk panic, got %q", got)
	}
}

func TestPromptCollectorTouchInvokesOnActivity(t *testing.T) {
	c := newPromptCollector("s1", nil, false)
	var touched int
	c.onActivity = func() { touched++ }
	c.append("x")
	if touched != 1 {
		t.Fatalf("expected onActivity to be invoked once per append, got %d", touched)
	}
}

func TestSettlePromptReturnsErrOnTransportError(t *testing.T) {
	r := newTestRuntime()
	c := newPromptCollector("s1", nil, false)
	_, err := r.settlePrompt(c, promptOutcome{err: errStub("boom")}, false)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestSettlePromptCancelledEmptyManualAbort(t *testing.T) {
	r := newTestRuntime()
	c := newPromptCollector("s1", nil, false)
	_, err := r.settlePrompt(c, promptOutcome{result: SessionPromptResult{StopReason: "cancelled"}}, true)
	if err != ErrAbortedByUser {
		t.Fatalf("expected ErrAbortedByUser, got %v", err)
	}
}

func TestSettlePromptCancelledEmptyNotManualAbort(t *testing.T) {
	r := newTestRuntime()
	c := newPromptCollector("s1", nil, false)
	_, err := r.settlePrompt(c, promptOutcome{result: SessionPromptResult{StopReason: "cancelled"}}, false)
	if err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestSettlePromptCancelledWithBufferedTextIsNotAnError(t *testing.T) {
	r := newTestRuntime()
	c := newPromptCollector("s1", nil, false)
	c.append("partial response")
	text, err := r.settlePrompt(c, promptOutcome{result: SessionPromptResult{StopReason: "cancelled"}}, false)
	if err != nil {
		t.Fatalf("expected no error when buffer is non-empty, got %v", err)
	}
	if text != "partial response" {
		t.Fatalf("expected buffered text returned, got %q", text)
	}
}

func TestSettlePromptZeroChunksReturnsNoResponseText(t *testing.T) {
	r := newTestRuntime()
	c := newPromptCollector("s1", nil, false)
	text, err := r.settlePrompt(c, promptOutcome{result: SessionPromptResult{StopReason: "end_turn"}}, false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text != noResponseText {
		t.Fatalf("expected %q, got %q", noResponseText, text)
	}
}

func TestRuntimeConfigDefaults(t *testing.T) {
	cfg := RuntimeConfig{}
	cfg.applyDefaults()
	if cfg.AcpTimeout != 1_200_000*time.Millisecond {
		t.Fatalf("expected default AcpTimeout, got %v", cfg.AcpTimeout)
	}
	if cfg.NoOutputTimeout != 300_000*time.Millisecond {
		t.Fatalf("expected default NoOutputTimeout, got %v", cfg.NoOutputTimeout)
	}
	if cfg.PrewarmRetryDelay != 5*time.Second {
		t.Fatalf("expected default PrewarmRetryDelay, got %v", cfg.PrewarmRetryDelay)
	}
	if cfg.PrewarmMaxRetries != 10 {
		t.Fatalf("expected default PrewarmMaxRetries, got %d", cfg.PrewarmMaxRetries)
	}
}
