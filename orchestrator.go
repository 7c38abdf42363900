package clawless

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawlessdev/clawless/scheduler"
)

// abortWords are the case/punctuation-insensitive commands that abort the
// active prompt instead of being enqueued as a new one.
var abortWords = map[string]bool{
	"abort": true, "cancel": true, "stop": true,
	"/abort": true, "/cancel": true, "/stop": true,
	"please abort": true, "please cancel": true, "please stop": true,
}

// OrchestratorConfig carries the startup wiring for an Orchestrator.
type OrchestratorConfig struct {
	Profile AgentProfile
	Options AgentOptions
	Cwd     string

	RuntimeConfig RuntimeConfig

	Platform Platform

	Whitelist []string // user ids allowed to talk to the bridge; empty = allow all

	StreamUpdateInterval time.Duration
	MaxResponseLength    int
	MaxMessageLength     int
	MessageGapThreshold  time.Duration

	SchedulesPath     string
	CallbackStatePath string
	Timezone          *time.Location

	// OneShot executes the fresh one-shot CLI invocation a scheduled job
	// (standard or async_conversation) runs outside the live ACP session.
	// Defaults to HostOneShotRunner.
	OneShot OneShotRunner
}

// Orchestrator wires the ACP runtime, message queue, hybrid pipeline,
// scheduler, and a platform adapter together, and owns the process-wide
// bound-chat and shutdown state. It breaks the adapter↔orchestrator
// construction cycle with a registered callback (OnTextMessage) rather
// than mutual references.
type Orchestrator struct {
	cfg     OrchestratorConfig
	log     *slog.Logger
	runtime *Runtime
	queue   *MessageQueue
	bound   *BoundChat

	mu      sync.Mutex
	shuttingDown bool

	scheduleAsyncHandler func(ctx context.Context, task, chatID, jobRef string) error
}

// NewOrchestrator constructs an Orchestrator. Call Start to validate the
// agent, wire the platform, and begin serving.
func NewOrchestrator(cfg OrchestratorConfig, log *slog.Logger) *Orchestrator {
	cfg.RuntimeConfig.Profile = cfg.Profile
	cfg.RuntimeConfig.Options = cfg.Options
	cfg.RuntimeConfig.Cwd = cfg.Cwd
	if cfg.RuntimeConfig.McpServers == nil {
		cfg.RuntimeConfig.McpServers = cfg.Profile.McpServers
	}
	if cfg.OneShot == nil {
		cfg.OneShot = HostOneShotRunner{}
	}

	o := &Orchestrator{
		cfg:     cfg,
		log:     log.With("component", "orchestrator"),
		runtime: NewRuntime(cfg.RuntimeConfig, log),
		queue:   NewMessageQueue(),
		bound:   NewBoundChat(cfg.CallbackStatePath),
	}
	return o
}

// SetScheduleAsyncHandler wires the function used to register an ASYNC
// background job (normally scheduler.Create wrapped by the caller). This
// indirection avoids importing the scheduler package from the core.
func (o *Orchestrator) SetScheduleAsyncHandler(h func(ctx context.Context, task, chatID, jobRef string) error) {
	o.scheduleAsyncHandler = h
}

// ValidateAgent runs "<command> --version" with a 5s timeout; a failure
// here is a startup-fatal configuration error.
func ValidateAgent(profile AgentProfile) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, profile.Command, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s --version: %v", ErrAgentNotFound, profile.Command, err)
	}
	return nil
}

// Start validates the agent, creates the state directory and memory notes
// file if absent, loads the persisted bound chat (already done by
// NewBoundChat), registers the platform handler, schedules a prewarm, and
// launches the platform adapter's event loop. It blocks until ctx is
// cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := ValidateAgent(o.cfg.Profile); err != nil {
		return err
	}
	if err := EnsureHome(); err != nil {
		return fmt.Errorf("clawless: create state directory: %w", err)
	}
	if err := ensureMemoryNotesFile(MemoryNotesPath()); err != nil {
		o.log.Warn("failed to create memory notes file", "error", err)
	}

	o.cfg.Platform.OnTextMessage(func(msg InboundMessage) {
		o.handleInbound(ctx, msg)
	})
	o.cfg.Platform.OnError(func(err error) {
		o.log.Error("platform adapter error", "error", err)
	})

	o.runtime.SchedulePrewarm("startup")

	return o.cfg.Platform.Launch(ctx)
}

// Shutdown gracefully stops the platform adapter and the runtime. The
// scheduler and HTTP server are stopped by their own owners (cmd/clawless
// wires the shutdown order).
func (o *Orchestrator) Shutdown(reason string) {
	o.mu.Lock()
	if o.shuttingDown {
		o.mu.Unlock()
		return
	}
	o.shuttingDown = true
	o.mu.Unlock()

	o.cfg.Platform.Stop(reason)
	o.runtime.Shutdown(reason)
}

// SendToBoundChat sends text to the bound chat, or chatID if explicitly
// given. Used by the HTTP callback surface.
func (o *Orchestrator) SendToBoundChat(ctx context.Context, chatID, text string) (string, error) {
	target := chatID
	if target == "" {
		target = o.bound.Get()
	}
	if target == "" {
		return "", ErrNoBoundChat
	}
	if err := o.cfg.Platform.SendTextToChat(ctx, target, text); err != nil {
		return "", err
	}
	return target, nil
}

// AppendContextToAgent sends a silent context message into the live
// session so a long-running conversation observes completed background
// work. It never wraps the message in the hybrid-mode system prompt — it
// is not a user turn — and failures are logged only, never surfaced,
// since this is fire-and-forget.
func (o *Orchestrator) AppendContextToAgent(ctx context.Context, text string) {
	if _, err := o.runtime.RunPrompt(ctx, text, nil); err != nil {
		o.log.Info("appendContextToAgent failed", "error", err)
	}
}

func (o *Orchestrator) handleInbound(ctx context.Context, msg InboundMessage) {
	if len(o.cfg.Whitelist) > 0 && !o.whitelisted(msg.UserID) {
		_ = o.cfg.Platform.SendTextToChat(ctx, msg.ChatID, "🚫 Unauthorized. This bridge is restricted to specific users.")
		return
	}

	o.bound.Set(msg.ChatID)

	if isAbortCommand(msg.Text) {
		o.handleAbort(ctx, msg.ChatID)
		return
	}

	err := o.queue.Enqueue(ctx, func(ctx context.Context) error {
		return o.processMessage(ctx, msg)
	})
	if err != nil {
		o.log.Warn("queued message processing failed", "chatId", msg.ChatID, "error", err)
	}
}

func (o *Orchestrator) whitelisted(userID string) bool {
	for _, id := range o.cfg.Whitelist {
		if id == userID {
			return true
		}
	}
	return false
}

func (o *Orchestrator) handleAbort(ctx context.Context, chatID string) {
	if !o.runtime.HasActivePrompt() {
		_ = o.cfg.Platform.SendTextToChat(ctx, chatID, "ℹ️ No active agent action to abort.")
		return
	}
	_ = o.cfg.Platform.SendTextToChat(ctx, chatID, "⏹️ Abort requested...")
	o.runtime.RequestManualAbort()
	_ = o.cfg.Platform.SendTextToChat(ctx, chatID, "⏹️ Agent action stopped.")
}

func (o *Orchestrator) processMessage(ctx context.Context, msg InboundMessage) error {
	live := NewLiveMessageManager(o.cfg.Platform, msg.ChatID, o.cfg.StreamUpdateInterval, o.cfg.MaxResponseLength, o.cfg.MaxMessageLength, o.log)
	stopTyping := o.cfg.Platform.StartTyping(msg.ChatID)
	defer stopTyping()

	if msg.SkipHybridMode {
		text, err := o.runtime.RunPrompt(ctx, msg.Text, func(chunk string) { live.Append(ctx, chunk) })
		if err != nil {
			live.Cleanup(ctx, false)
			return o.reportFailure(ctx, msg.ChatID, err)
		}
		_ = text
		return live.Finalize(ctx, nil)
	}

	pipeline := NewHybridPipeline(o.runtime, live, o.cfg.MessageGapThreshold)
	result, err := pipeline.Run(ctx, msg.Text)
	live = pipeline.live // Run moves to a fresh live message after each gap
	if err != nil {
		live.Cleanup(ctx, false)
		return o.reportFailure(ctx, msg.ChatID, err)
	}

	switch result.Mode {
	case ModeQuick:
		return live.Finalize(ctx, nil)
	case ModeAsync:
		live.Cleanup(ctx, true) // nothing was ever started in ASYNC mode
		return o.scheduleAsync(ctx, msg.ChatID, result.AsyncTask)
	default:
		return live.Finalize(ctx, nil)
	}
}

func (o *Orchestrator) reportFailure(ctx context.Context, chatID string, err error) error {
	_ = o.cfg.Platform.SendTextToChat(ctx, chatID, "❌ Error: "+err.Error())
	return err
}

func (o *Orchestrator) scheduleAsync(ctx context.Context, chatID, task string) error {
	jobRef := "job_" + uuid.New().String()[:8]

	if o.scheduleAsyncHandler != nil {
		if err := o.scheduleAsyncHandler(ctx, task, chatID, jobRef); err != nil {
			return o.reportFailure(ctx, chatID, err)
		}
	}

	confirmation := fmt.Sprintf("[MODE: ASYNC] %s (Reference: %s)", task, jobRef)
	return o.cfg.Platform.SendTextToChat(ctx, chatID, confirmation)
}

func isAbortCommand(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, "!.? ")
	return abortWords[normalized]
}


// HandleScheduleFire is the scheduler.Handler wired by cmd/clawless: run
// the one-shot CLI invocation against cfg.Message, deliver the result to
// the job's chat, and, for async_conversation jobs, re-inject the result
// as silent context into the live session so the long-running
// conversation observes the completed work.
func (o *Orchestrator) HandleScheduleFire(ctx context.Context, cfg scheduler.Config) error {
	output, runErr := o.cfg.OneShot.Run(ctx, o.cfg.Profile, o.cfg.Options, o.cfg.Cwd, cfg.Message)

	chatID := cfg.Metadata.ChatID
	if chatID == "" {
		chatID = o.bound.Get()
	}

	if cfg.Type == scheduler.TypeAsyncConversation {
		return o.deliverAsyncResult(ctx, cfg, chatID, output, runErr)
	}
	return o.deliverStandardResult(ctx, cfg, chatID, output, runErr)
}

func (o *Orchestrator) deliverStandardResult(ctx context.Context, cfg scheduler.Config, chatID, output string, runErr error) error {
	if chatID == "" {
		return nil // nothing bound yet; nowhere to deliver, not an error for the schedule
	}
	text := output
	if runErr != nil {
		text = "❌ Scheduled job failed: " + runErr.Error()
	}
	return o.cfg.Platform.SendTextToChat(ctx, chatID, text)
}

// deliverAsyncResult formats and posts the background-task completion
// message, then re-injects the result into the live session via
// AppendContextToAgent so an open conversation sees the outcome too.
func (o *Orchestrator) deliverAsyncResult(ctx context.Context, cfg scheduler.Config, chatID, output string, runErr error) error {
	var body string
	if runErr != nil {
		body = fmt.Sprintf("📢 Background task failed.\n\nOriginal Request: %q\n\nError:\n%s", cfg.Message, runErr.Error())
	} else {
		body = fmt.Sprintf("📢 Background task completed.\n\nOriginal Request: %q\n\nResult:\n%s", cfg.Message, output)
	}

	if chatID != "" {
		if err := o.cfg.Platform.SendTextToChat(ctx, chatID, body); err != nil {
			o.log.Warn("failed to deliver async job result", "id", cfg.ID, "error", err)
		}
	}

	o.AppendContextToAgent(ctx, body)
	return nil
}

func ensureMemoryNotesFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("# Memory\n\nNotes the agent has chosen to remember across sessions.\n"), 0o644)
}
