package clawless

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultStreamUpdateInterval = 5 * time.Second
	defaultMaxResponseLength    = 4000
	defaultMaxMessageLength     = 4000
	truncationSuffix            = "…"
)

// LiveMessageManager maintains a preview buffer and a platform-side live
// message whose content is reconciled on a trailing-debounced schedule.
// At most one live message exists per in-flight prompt.
type LiveMessageManager struct {
	platform Platform
	chatID   string
	log      *slog.Logger

	debounce          time.Duration
	maxResponseLength int
	maxMessageLength  int

	mu            sync.Mutex
	buf           strings.Builder
	lastFlushAt   time.Time
	finalized     bool
	messageID     string
	startingFlush *future
	flushTimer    *time.Timer
}

// NewLiveMessageManager constructs a manager targeting chatID. Zero-value
// durations/lengths fall back to spec defaults.
func NewLiveMessageManager(platform Platform, chatID string, debounce time.Duration, maxResponseLength, maxMessageLength int, log *slog.Logger) *LiveMessageManager {
	if debounce == 0 {
		debounce = defaultStreamUpdateInterval
	}
	if maxResponseLength == 0 {
		maxResponseLength = defaultMaxResponseLength
	}
	if maxMessageLength == 0 {
		maxMessageLength = defaultMaxMessageLength
	}
	return &LiveMessageManager{
		platform:          platform,
		chatID:            chatID,
		log:               log.With("component", "livemessage"),
		debounce:          debounce,
		maxResponseLength: maxResponseLength,
		maxMessageLength:  maxMessageLength,
	}
}

// Append concatenates chunk to the preview buffer and schedules a
// debounced flush.
func (m *LiveMessageManager) Append(ctx context.Context, chunk string) {
	m.mu.Lock()
	m.buf.WriteString(chunk)
	finalized := m.finalized
	if m.flushTimer == nil && !finalized {
		m.flushTimer = time.AfterFunc(m.debounce, func() {
			m.mu.Lock()
			m.flushTimer = nil
			m.mu.Unlock()
			m.Flush(ctx, false, true)
		})
	}
	m.mu.Unlock()
}

// Flush reconciles the platform-side live message with the current
// preview buffer. If force is false and the debounce window has not
// elapsed since the last flush, it is skipped. allowStart permits
// starting the live message if none exists yet; finalize never allows
// this.
func (m *LiveMessageManager) Flush(ctx context.Context, force, allowStart bool) {
	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	if !force && time.Since(m.lastFlushAt) < m.debounce {
		m.mu.Unlock()
		return
	}
	text := truncate(m.buf.String(), m.maxResponseLength)
	hasMessage := m.messageID != ""
	starting := m.startingFlush
	m.mu.Unlock()

	if !hasMessage {
		if !allowStart {
			return
		}
		if starting != nil {
			// Another flush is already starting the live message;
			// single-flight collapses onto it.
			_ = starting.Await(ctx)
			m.updateExisting(ctx, text)
			return
		}

		f := newFuture()
		m.mu.Lock()
		m.startingFlush = f
		m.mu.Unlock()

		id, err := m.platform.StartLiveMessage(ctx, m.chatID, text)
		f.settle(err)

		m.mu.Lock()
		m.startingFlush = nil
		if err == nil {
			m.messageID = id
			m.lastFlushAt = time.Now()
		}
		m.mu.Unlock()

		if err != nil {
			m.log.Info("startLiveMessage failed", "error", err)
		}
		return
	}

	m.updateExisting(ctx, text)
}

func (m *LiveMessageManager) updateExisting(ctx context.Context, text string) {
	m.mu.Lock()
	id := m.messageID
	m.mu.Unlock()
	if id == "" {
		return
	}
	if err := m.platform.UpdateLiveMessage(ctx, m.chatID, id, text); err != nil {
		if !isNotModifiedErr(err) {
			m.log.Info("updateLiveMessage failed", "error", err)
		}
		return
	}
	m.mu.Lock()
	m.lastFlushAt = time.Now()
	m.mu.Unlock()
}

// Finalize cancels the debounce, forces one last flush (never starting a
// new live message), then finalizes it: the first chunk of the possibly-
// chunked final text edits the live message, and remaining chunks are
// sent as new messages.
func (m *LiveMessageManager) Finalize(ctx context.Context, textOverride *string) error {
	m.mu.Lock()
	if m.flushTimer != nil {
		m.flushTimer.Stop()
	}
	if m.finalized {
		m.mu.Unlock()
		return nil
	}
	text := m.buf.String()
	if textOverride != nil {
		text = *textOverride
	}
	id := m.messageID
	m.finalized = true
	m.mu.Unlock()

	chunks := splitIntoChunks(text, m.maxMessageLength)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	if id == "" {
		for _, c := range chunks {
			if err := m.platform.SendTextToChat(ctx, m.chatID, c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := m.platform.FinalizeLiveMessage(ctx, m.chatID, id, chunks[0]); err != nil {
		return err
	}
	for _, c := range chunks[1:] {
		if err := m.platform.SendTextToChat(ctx, m.chatID, c); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup cancels the debounce and, if a live message was started but
// never finalized and success is false, best-effort deletes it.
func (m *LiveMessageManager) Cleanup(ctx context.Context, success bool) {
	m.mu.Lock()
	if m.flushTimer != nil {
		m.flushTimer.Stop()
	}
	id := m.messageID
	finalized := m.finalized
	m.mu.Unlock()

	if id != "" && !finalized && !success {
		_ = m.platform.RemoveMessage(ctx, m.chatID, id)
	}
}

func isNotModifiedErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified") ||
		strings.Contains(strings.ToLower(err.Error()), "message_not_found")
}

// truncate bounds text to maxLen runes, appending an ellipsis when it had
// to cut content.
func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 1 {
		return truncationSuffix
	}
	return string(runes[:maxLen-1]) + truncationSuffix
}

// splitIntoChunks splits text into pieces no longer than maxLen, breaking
// on the last newline or space before the limit when possible so words
// aren't cut mid-token.
func splitIntoChunks(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}
		cut := maxLen
		for i := maxLen; i > maxLen/2; i-- {
			if runes[i] == '\n' || runes[i] == ' ' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
