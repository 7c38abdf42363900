package clawless

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RuntimeConfig carries the environment-sourced knobs of spec §6: timeouts,
// prewarm retry policy, and the permission strategy used to answer the
// agent's requestPermission calls.
type RuntimeConfig struct {
	Cwd        string
	Profile    AgentProfile
	Options    AgentOptions
	McpServers func() []McpServer

	AcpTimeout      time.Duration // default 1,200,000ms
	NoOutputTimeout time.Duration // default 300,000ms

	PrewarmRetryDelay time.Duration // default 5s
	PrewarmMaxRetries int           // default 10

	// PermissionStrategy selects which PermissionOption.Kind to prefer when
	// the agent calls requestPermission. "cancelled" means always decline.
	PermissionStrategy string

	StreamToStdout bool
}

func (c *RuntimeConfig) applyDefaults() {
	if c.AcpTimeout == 0 {
		c.AcpTimeout = 1_200_000 * time.Millisecond
	}
	if c.NoOutputTimeout == 0 {
		c.NoOutputTimeout = 300_000 * time.Millisecond
	}
	if c.PrewarmRetryDelay == 0 {
		c.PrewarmRetryDelay = 5 * time.Second
	}
	if c.PrewarmMaxRetries == 0 {
		c.PrewarmMaxRetries = 10
	}
}

// Runtime owns one agent session at a time, serializes prompts against it,
// and absorbs crashes by resetting state and rescheduling prewarm. It is
// the clawless equivalent of govega's Orchestrator+Process pair, collapsed
// to a single always-one-session runtime per spec §3's RuntimeState.
type Runtime struct {
	cfg RuntimeConfig
	log *slog.Logger

	mu            sync.Mutex
	process       *childProcess
	conn          *transport
	sessionID     string
	initInFlight  *future
	collector     *promptCollector
	manualAbort   bool
	prewarmTimer  *time.Timer

	backoff *retryBackoff

	shuttingDown bool
}

// NewRuntime constructs a Runtime. Call EnsureSession or SchedulePrewarm to
// bring up the first agent session.
func NewRuntime(cfg RuntimeConfig, log *slog.Logger) *Runtime {
	cfg.applyDefaults()
	return &Runtime{
		cfg: cfg,
		log: log.With("component", "runtime"),
		backoff: newRetryBackoff(BackoffConfig{
			Type:    BackoffConstant,
			Initial: cfg.PrewarmRetryDelay,
		}),
	}
}

// healthy reports whether a session is currently usable: connection and
// process alive, matching spec's "session is valid iff connection ∧
// process-alive" invariant. Caller must hold mu.
func (r *Runtime) healthy() bool {
	return r.conn != nil && r.process != nil && r.process.alive() && r.sessionID != ""
}

// EnsureSession is idempotent and race-free: if a session is healthy it
// returns immediately; if initialization is already in flight it awaits
// the same future; otherwise it spawns the child, wires the transport,
// and performs the initialize/newSession handshake.
func (r *Runtime) EnsureSession(ctx context.Context) error {
	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	if r.healthy() {
		r.mu.Unlock()
		return nil
	}
	if r.initInFlight != nil {
		f := r.initInFlight
		r.mu.Unlock()
		return f.Await(ctx)
	}

	f := newFuture()
	r.initInFlight = f
	r.mu.Unlock()

	err := r.doInit(ctx)
	f.settle(err)

	r.mu.Lock()
	r.initInFlight = nil
	r.mu.Unlock()

	return err
}

func (r *Runtime) doInit(ctx context.Context) error {
	cp, err := spawn(ctx, r.cfg.Profile, r.cfg.Profile.AcpArgs(r.cfg.Options), r.log)
	if err != nil {
		return fmt.Errorf("clawless: spawn agent: %w", err)
	}
	cp.onActivity = func() {
		r.mu.Lock()
		c := r.collector
		r.mu.Unlock()
		if c != nil && c.onActivity != nil {
			c.onActivity()
		}
	}

	conn := newTransport(cp, r, r.log)
	go conn.run()

	initResult := InitializeResult{}
	if err := conn.call(ctx, methodInitialize, InitializeParams{
		ProtocolVersion:    ACPProtocolVersion,
		ClientCapabilities: ClientCapabilities{},
	}, &initResult); err != nil {
		tail := cp.tail.String()
		terminateGracefully(cp, "init-failed", r.cfg.Profile.KillGrace(), r.log)
		return r.wrapInitError(err, tail)
	}

	var mcpServers []McpServer
	if r.cfg.McpServers != nil {
		mcpServers = r.cfg.McpServers()
	}

	sessionResult := SessionNewResult{}
	if err := conn.call(ctx, methodSessionNew, SessionNewParams{
		Cwd:        r.cfg.Cwd,
		McpServers: mcpServers,
	}, &sessionResult); err != nil {
		tail := cp.tail.String()
		terminateGracefully(cp, "newsession-failed", r.cfg.Profile.KillGrace(), r.log)
		return r.wrapInitError(err, tail)
	}

	cp.onExit = func(exitErr error) { r.handleUnexpectedExit(cp, exitErr) }

	r.mu.Lock()
	r.process = cp
	r.conn = conn
	r.sessionID = sessionResult.SessionID
	r.backoff.reset()
	r.mu.Unlock()

	r.log.Info("agent session ready", "sessionId", sessionResult.SessionID)
	return nil
}

// handleUnexpectedExit is wired as cp's onExit callback once a session is
// fully established. A crash mid-session (spec §7 kind 6 / §8 scenario 4)
// resets the entire runtime state and reschedules prewarm, matching the
// Process Supervisor's onError/onClose contract (§4.2). It is a no-op if
// cp is no longer the tracked process (already replaced or cleared by a
// graceful Shutdown) or shutdown is in progress.
func (r *Runtime) handleUnexpectedExit(cp *childProcess, exitErr error) {
	r.mu.Lock()
	if r.shuttingDown || r.process != cp {
		r.mu.Unlock()
		return
	}
	r.process = nil
	r.conn = nil
	r.sessionID = ""
	r.collector = nil
	r.mu.Unlock()

	r.log.Error("agent process exited unexpectedly, resetting runtime", "error", exitErr)
	r.SchedulePrewarm("crash")
}

// wrapInitError logs the stderr tail and, when the underlying error
// mentions "Internal error" (commonly an MCP/skills misconfiguration on
// the agent side), appends a hint.
func (r *Runtime) wrapInitError(err error, tail string) error {
	r.log.Error("ensureSession failed", "error", err, "stderrTail", tail)
	r.resetLocked()
	if strings.Contains(err.Error(), "Internal error") {
		return fmt.Errorf("%w (hint: check MCP server / skills configuration)", err)
	}
	return err
}

func (r *Runtime) resetLocked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.process = nil
	r.conn = nil
	r.sessionID = ""
	r.collector = nil
}

// SchedulePrewarm kicks off a non-blocking speculative EnsureSession. If
// already healthy or already initializing, it is a no-op. On failure it
// arms a single retry timer with the configured backoff, up to
// PrewarmMaxRetries; exhaustion stops automatic retries (a later manual
// call via RunPrompt still tries once more).
func (r *Runtime) SchedulePrewarm(reason string) {
	r.mu.Lock()
	if r.shuttingDown || r.healthy() || r.initInFlight != nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	go r.prewarmAttempt(reason)
}

func (r *Runtime) prewarmAttempt(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AcpTimeout)
	defer cancel()

	if err := r.EnsureSession(ctx); err != nil {
		attempts := r.backoff.next()
		count := r.backoff.attemptCount()
		if count >= r.cfg.PrewarmMaxRetries {
			r.log.Warn("prewarm retries exhausted; stopping automatic retries", "attempts", count, "error", err)
			return
		}
		r.log.Warn("prewarm attempt failed, retrying", "reason", reason, "attempt", count, "delay", attempts, "error", err)

		r.mu.Lock()
		if r.prewarmTimer != nil {
			r.prewarmTimer.Stop()
		}
		r.prewarmTimer = time.AfterFunc(attempts, func() {
			r.SchedulePrewarm("retry")
		})
		r.mu.Unlock()
		return
	}
	r.log.Info("prewarm succeeded", "reason", reason)
}

// RunPrompt executes one prompt against the current (or newly-established)
// session, serializing internally via the single activeCollector
// invariant: callers are expected to already be serialized by the Message
// Queue, but RunPrompt itself still refuses a second concurrent prompt.
func (r *Runtime) RunPrompt(ctx context.Context, text string, onChunk func(string)) (string, error) {
	if err := r.EnsureSession(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRuntimeNotReady, err)
	}

	r.mu.Lock()
	if r.collector != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("clawless: a prompt is already in flight")
	}
	conn := r.conn
	sessionID := r.sessionID
	manualAbort := r.manualAbort
	r.manualAbort = false
	c := newPromptCollector(sessionID, onChunk, r.cfg.StreamToStdout)
	r.collector = c
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.collector = nil
		r.mu.Unlock()
	}()

	promptCtx, cancelOverall := context.WithTimeout(ctx, r.cfg.AcpTimeout)
	defer cancelOverall()

	noOutputTimer := time.AfterFunc(r.cfg.NoOutputTimeout, func() {
		r.log.Warn("no-output timeout, cancelling prompt", "sessionId", sessionID)
		conn.notify(methodSessionCancel, SessionCancelParams{SessionID: sessionID})
	})
	defer noOutputTimer.Stop()
	c.onActivity = func() {
		noOutputTimer.Reset(r.cfg.NoOutputTimeout)
	}

	resultCh := make(chan promptOutcome, 1)
	go func() {
		var result SessionPromptResult
		err := conn.call(promptCtx, methodSessionPrompt, SessionPromptParams{
			SessionID: sessionID,
			Prompt:    []ContentBlock{{Type: "text", Text: text}},
		}, &result)
		resultCh <- promptOutcome{result: result, err: err}
	}()

	select {
	case <-promptCtx.Done():
		conn.notify(methodSessionCancel, SessionCancelParams{SessionID: sessionID})
		<-resultCh // drain, best-effort
		return "", fmt.Errorf("clawless: prompt timed out: %w", promptCtx.Err())

	case outcome := <-resultCh:
		return r.settlePrompt(c, outcome, manualAbort)
	}
}

type promptOutcome struct {
	result SessionPromptResult
	err    error
}

func (r *Runtime) settlePrompt(c *promptCollector, outcome promptOutcome, manualAbort bool) (string, error) {
	buffer := c.String()

	if outcome.err != nil {
		return "", fmt.Errorf("clawless: prompt failed: %w", outcome.err)
	}

	if outcome.result.StopReason == "cancelled" && buffer == "" {
		if manualAbort {
			return "", ErrAbortedByUser
		}
		return "", ErrCancelled
	}

	if buffer == "" {
		return noResponseText, nil
	}
	return buffer, nil
}

// noResponseText is the literal user-facing text for a prompt that
// settled with zero chunks, per spec §4.3/§8.
const noResponseText = "No response received."

// CancelActivePrompt issues a best-effort cancel against the current
// session; it does not itself settle the in-flight prompt — settlement
// comes from the transport's stopReason, exactly as spec §4.3 describes.
func (r *Runtime) CancelActivePrompt() {
	r.mu.Lock()
	conn, sessionID, active := r.conn, r.sessionID, r.collector != nil
	r.mu.Unlock()
	if !active || conn == nil {
		return
	}
	conn.notify(methodSessionCancel, SessionCancelParams{SessionID: sessionID})
}

// RequestManualAbort latches manualAbortRequested so the next
// cancelled-empty settlement reports the user-facing "aborted by user"
// variant instead of a generic cancellation.
func (r *Runtime) RequestManualAbort() {
	r.mu.Lock()
	r.manualAbort = true
	r.mu.Unlock()
	r.CancelActivePrompt()
}

// HasActivePrompt reports whether a prompt is currently executing, used by
// the orchestrator to pick the right abort-command reply.
func (r *Runtime) HasActivePrompt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collector != nil
}

// Shutdown drops the collector/session/connection/process references
// synchronously, then terminates the captured process gracefully. The
// stderr tail is cleared by discarding the process reference.
func (r *Runtime) Shutdown(reason string) {
	r.mu.Lock()
	r.shuttingDown = true
	if r.prewarmTimer != nil {
		r.prewarmTimer.Stop()
	}
	cp := r.process
	sessionID := r.sessionID
	conn := r.conn
	r.process = nil
	r.conn = nil
	r.sessionID = ""
	r.collector = nil
	r.mu.Unlock()

	if conn != nil && sessionID != "" {
		conn.notify(methodSessionCancel, SessionCancelParams{SessionID: sessionID})
	}
	terminateGracefully(cp, reason, r.cfg.Profile.KillGrace(), r.log)
}

// --- clientResponder implementation -----------------------------------

// RequestPermission answers the agent's permission request per the
// configured strategy: cancelled if no options or strategy is
// "cancelled"; otherwise the first option matching the strategy's kind,
// falling back to the first option offered.
func (r *Runtime) RequestPermission(params RequestPermissionParams) RequestPermissionResult {
	if len(params.Options) == 0 || r.cfg.PermissionStrategy == "cancelled" {
		return RequestPermissionResult{Outcome: PermissionOutcome{Outcome: "cancelled"}}
	}

	for _, opt := range params.Options {
		if opt.Kind == r.cfg.PermissionStrategy {
			return RequestPermissionResult{Outcome: PermissionOutcome{Outcome: "selected", OptionID: opt.OptionID}}
		}
	}
	return RequestPermissionResult{Outcome: PermissionOutcome{Outcome: "selected", OptionID: params.Options[0].OptionID}}
}

// SessionUpdate forwards agent_message_chunk text content to the active
// collector; everything else is liveness-only. Updates for a session that
// is not current, or when there is no active collector, are ignored.
func (r *Runtime) SessionUpdate(params SessionUpdateParams) {
	r.mu.Lock()
	c := r.collector
	current := r.sessionID
	r.mu.Unlock()

	if c == nil || params.SessionID != current {
		return
	}
	c.touch()

	if params.Update.SessionUpdate == "agent_message_chunk" && params.Update.Content != nil && params.Update.Content.Type == "text" {
		c.append(params.Update.Content.Text)
	}
}

// ReadTextFile always returns the empty object: clawless never exposes a
// filesystem to the agent.
func (r *Runtime) ReadTextFile(json.RawMessage) json.RawMessage { return []byte("{}") }

// WriteTextFile always returns the empty object: clawless never exposes a
// filesystem to the agent.
func (r *Runtime) WriteTextFile(json.RawMessage) json.RawMessage { return []byte("{}") }

// --- promptCollector ----------------------------------------------------

// promptCollector is the live PromptInvocation: it accumulates chunks for
// one in-flight prompt, refreshing liveness on every chunk or stderr byte
// and invoking the onChunk callback (failures are swallowed, matching
// spec's "callback failures are swallowed").
type promptCollector struct {
	sessionID    string
	startedAt    time.Time
	firstChunkAt time.Time
	chunkCount   int
	onChunk      func(string)
	streamStdout bool
	onActivity   func()

	mu  sync.Mutex
	buf strings.Builder
}

func newPromptCollector(sessionID string, onChunk func(string), streamStdout bool) *promptCollector {
	return &promptCollector{
		sessionID:    sessionID,
		startedAt:    time.Now(),
		onChunk:      onChunk,
		streamStdout: streamStdout,
	}
}

func (c *promptCollector) touch() {
	if c.onActivity != nil {
		c.onActivity()
	}
}

func (c *promptCollector) append(chunk string) {
	c.touch()

	c.mu.Lock()
	if c.chunkCount == 0 {
		c.firstChunkAt = time.Now()
	}
	c.chunkCount++
	c.buf.WriteString(chunk)
	c.mu.Unlock()

	if c.streamStdout {
		fmt.Print(chunk)
	}

	if c.onChunk != nil {
		func() {
			defer func() { _ = recover() }()
			c.onChunk(chunk)
		}()
	}
}

func (c *promptCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
