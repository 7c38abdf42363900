package clawless

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ConversationMode is the sum type detected from the prefix of the agent's
// first non-whitespace output.
type ConversationMode int

const (
	ModeUnknown ConversationMode = iota
	ModeQuick
	ModeAsync
)

func (m ConversationMode) String() string {
	switch m {
	case ModeQuick:
		return "QUICK"
	case ModeAsync:
		return "ASYNC"
	default:
		return "UNKNOWN"
	}
}

const (
	quickPrefix = "[MODE: QUICK]"
	asyncPrefix = "[MODE: ASYNC]"

	defaultMessageGapThreshold = 2 * time.Second
)

// hybridSystemPrompt instructs the agent to label its reply. It is
// prepended to every user message unless SkipHybridMode is set on the
// inbound message.
const hybridSystemPrompt = `Before answering, decide whether this request can be answered immediately or requires a longer background task.
Prefix your entire response with exactly one of:
  [MODE: QUICK] — if you can answer right now in this message.
  [MODE: ASYNC] — if this requires a background task; follow the prefix with a short description of the task to run, not the final answer.
Then continue with your response on the same line.

User request: `

// WrapHybridPrompt builds the text sent to the agent for a user message
// that participates in hybrid-mode detection.
func WrapHybridPrompt(text string) string {
	return hybridSystemPrompt + text
}

// modeDetector performs online [MODE: QUICK]/[MODE: ASYNC] prefix
// detection against a stream of chunks, per spec §4.6.
type modeDetector struct {
	mu        sync.Mutex
	mode      ConversationMode
	prefixBuf strings.Builder
}

func newModeDetector() *modeDetector {
	return &modeDetector{}
}

// feed accumulates chunk while mode is UNKNOWN and tests whether the
// trimmed prefix buffer starts with either literal. It returns the
// resolved mode (possibly still UNKNOWN) and any text that should now be
// forwarded downstream (the remainder after the matched prefix, or the
// chunk verbatim once mode is already known).
func (d *modeDetector) feed(chunk string) (ConversationMode, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode != ModeUnknown {
		return d.mode, chunk
	}

	d.prefixBuf.WriteString(chunk)
	trimmed := strings.TrimLeft(d.prefixBuf.String(), " \t\n\r")

	switch {
	case strings.HasPrefix(trimmed, quickPrefix):
		d.mode = ModeQuick
		return d.mode, strings.TrimPrefix(trimmed, quickPrefix)
	case strings.HasPrefix(trimmed, asyncPrefix):
		d.mode = ModeAsync
		return d.mode, strings.TrimPrefix(trimmed, asyncPrefix)
	default:
		return ModeUnknown, ""
	}
}

// resolveFinalMode runs prefix detection once more against the full buffered
// response when the prompt completed while still UNKNOWN; if it still
// does not match, the default fallback is QUICK (logged by the caller).
func resolveFinalMode(full string) (ConversationMode, string) {
	trimmed := strings.TrimLeft(full, " \t\n\r")
	switch {
	case strings.HasPrefix(trimmed, quickPrefix):
		return ModeQuick, strings.TrimPrefix(trimmed, quickPrefix)
	case strings.HasPrefix(trimmed, asyncPrefix):
		return ModeAsync, strings.TrimPrefix(trimmed, asyncPrefix)
	default:
		return ModeQuick, full
	}
}

// HybridResult is what a hybrid pipeline run produces: either a QUICK
// reply already delivered to the live message, or an ASYNC task
// description to be scheduled.
type HybridResult struct {
	Mode        ConversationMode
	QuickText   string
	AsyncTask   string
	DefaultedToQuick bool
}

// HybridPipeline drives one prompt through mode detection and live-message
// delivery, suppressing delivery entirely while ASYNC is suspected.
type HybridPipeline struct {
	runtime *Runtime
	live    *LiveMessageManager

	messageGapThreshold time.Duration
}

// NewHybridPipeline constructs a pipeline for one chat's runtime and live
// message manager.
func NewHybridPipeline(runtime *Runtime, live *LiveMessageManager, messageGapThreshold time.Duration) *HybridPipeline {
	if messageGapThreshold == 0 {
		messageGapThreshold = defaultMessageGapThreshold
	}
	return &HybridPipeline{runtime: runtime, live: live, messageGapThreshold: messageGapThreshold}
}

// Run executes text through the runtime with online mode detection. When
// more than messageGapThreshold passes between two QUICK chunks, Run
// finalizes the current live message and continues in a fresh manager,
// stored in p.live. It does not finalize/cleanup the last live message for
// QUICK mode — the caller does that on p.live based on the returned error,
// mirroring spec's separation of prompt execution from live-message
// lifecycle.
func (p *HybridPipeline) Run(ctx context.Context, text string) (HybridResult, error) {
	detector := newModeDetector()

	var (
		mu            sync.Mutex
		lastChunkAt   time.Time
		asyncBuf      strings.Builder
		quickStarted  bool
	)

	full, err := p.runtime.RunPrompt(ctx, WrapHybridPrompt(text), func(chunk string) {
		mode, forward := detector.feed(chunk)

		mu.Lock()
		gap := time.Since(lastChunkAt)
		lastChunkAt = time.Now()
		mu.Unlock()

		switch mode {
		case ModeQuick:
			if forward == "" {
				return
			}
			if gap > p.messageGapThreshold && quickStarted {
				p.live.Finalize(ctx, nil)
				p.live = NewLiveMessageManager(p.live.platform, p.live.chatID, p.live.debounce, p.live.maxResponseLength, p.live.maxMessageLength, p.live.log)
			}
			quickStarted = true
			p.live.Append(ctx, forward)
		case ModeAsync:
			if forward != "" {
				asyncBuf.WriteString(forward)
			}
		default:
			// still accumulating prefix, nothing to forward yet
		}
	})

	if err != nil {
		return HybridResult{}, err
	}

	mu.Lock()
	mode := detector.mode
	mu.Unlock()

	if mode == ModeUnknown {
		finalMode, remainder := resolveFinalMode(full)
		if finalMode == ModeQuick {
			p.live.Append(ctx, remainder)
			return HybridResult{Mode: ModeQuick, QuickText: remainder, DefaultedToQuick: true}, nil
		}
		return HybridResult{Mode: ModeAsync, AsyncTask: remainder}, nil
	}

	if mode == ModeAsync {
		return HybridResult{Mode: ModeAsync, AsyncTask: asyncBuf.String()}, nil
	}
	return HybridResult{Mode: ModeQuick}, nil
}
