package clawless

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"sync"
	"testing"
)

// fakePlatform is a minimal in-memory Platform used to drive
// LiveMessageManager without any real chat transport.
type fakePlatform struct {
	mu sync.Mutex

	nextID    int
	messages  map[string]string
	startErr  error
	updateErr error
	removed   map[string]bool

	sentTexts  []string
	sendErr    error
	textHandler func(InboundMessage)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{messages: make(map[string]string), removed: make(map[string]bool)}
}

func (p *fakePlatform) Launch(ctx context.Context) error          { return nil }
func (p *fakePlatform) Stop(reason string)                        {}
func (p *fakePlatform) OnTextMessage(handler func(InboundMessage)) { p.textHandler = handler }
func (p *fakePlatform) OnError(handler func(error))                {}

func (p *fakePlatform) SendTextToChat(ctx context.Context, chatID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sentTexts = append(p.sentTexts, text)
	return nil
}

func (p *fakePlatform) lastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sentTexts) == 0 {
		return ""
	}
	return p.sentTexts[len(p.sentTexts)-1]
}

func (p *fakePlatform) StartTyping(chatID string) TypingIndicator { return func() {} }

func (p *fakePlatform) StartLiveMessage(ctx context.Context, chatID, initial string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return "", p.startErr
	}
	p.nextID++
	id := itoa(p.nextID)
	p.messages[id] = initial
	return id, nil
}

func (p *fakePlatform) UpdateLiveMessage(ctx context.Context, chatID, messageID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	p.messages[messageID] = text
	return nil
}

func (p *fakePlatform) FinalizeLiveMessage(ctx context.Context, chatID, messageID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[messageID] = text
	return nil
}

func (p *fakePlatform) RemoveMessage(ctx context.Context, chatID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed[messageID] = true
	delete(p.messages, messageID)
	return nil
}

func (p *fakePlatform) text(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[id]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLiveMessageManagerFlushStartsThenUpdates(t *testing.T) {
	p := newFakePlatform()
	m := NewLiveMessageManager(p, "chat1", 0, 0, 0, testLogger())

	m.mu.Lock()
	m.buf.WriteString("hello")
	m.mu.Unlock()

	m.Flush(context.Background(), true, true)
	if len(p.messages) != 1 {
		t.Fatalf("expected one live message to be started, got %d", len(p.messages))
	}

	m.mu.Lock()
	m.buf.WriteString(" world")
	m.mu.Unlock()
	m.Flush(context.Background(), true, true)

	for id, text := range p.messages {
		if text != "hello world" {
			t.Fatalf("message %s: expected %q, got %q", id, "hello world", text)
		}
	}
}

func TestLiveMessageManagerFlushWithoutAllowStartDoesNothing(t *testing.T) {
	p := newFakePlatform()
	m := NewLiveMessageManager(p, "chat1", 0, 0, 0, testLogger())

	m.mu.Lock()
	m.buf.WriteString("hello")
	m.mu.Unlock()

	m.Flush(context.Background(), true, false)
	if len(p.messages) != 0 {
		t.Fatalf("expected no message started when allowStart is false, got %d", len(p.messages))
	}
}

func TestLiveMessageManagerFinalizeWithoutPriorStart(t *testing.T) {
	p := newFakePlatform()
	m := NewLiveMessageManager(p, "chat1", 0, 0, 0, testLogger())

	text := "final answer"
	if err := m.Finalize(context.Background(), &text); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	// No live message was ever started, so Finalize must send a standalone
	// message rather than editing, and must not create new map entries in
	// the fake platform's "messages" (which only tracks live/editable ones).
	if len(p.messages) != 0 {
		t.Fatalf("expected Finalize with no prior live message to send standalone text, got messages=%v", p.messages)
	}
}

func TestLiveMessageManagerFinalizeEditsExistingMessage(t *testing.T) {
	p := newFakePlatform()
	m := NewLiveMessageManager(p, "chat1", 0, 0, 0, testLogger())

	m.mu.Lock()
	m.buf.WriteString("partial")
	m.mu.Unlock()
	m.Flush(context.Background(), true, true)

	var id string
	for k := range p.messages {
		id = k
	}

	final := "complete answer"
	if err := m.Finalize(context.Background(), &final); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := p.text(id); got != final {
		t.Fatalf("expected finalized message text %q, got %q", final, got)
	}
}

func TestLiveMessageManagerFinalizeIsIdempotent(t *testing.T) {
	p := newFakePlatform()
	m := NewLiveMessageManager(p, "chat1", 0, 0, 0, testLogger())

	text := "one"
	if err := m.Finalize(context.Background(), &text); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if err := m.Finalize(context.Background(), &text); err != nil {
		t.Fatalf("second Finalize should be a no-op, got error: %v", err)
	}
}

func TestLiveMessageManagerCleanupRemovesAbandonedMessage(t *testing.T) {
	p := newFakePlatform()
	m := NewLiveMessageManager(p, "chat1", 0, 0, 0, testLogger())

	m.mu.Lock()
	m.buf.WriteString("partial")
	m.mu.Unlock()
	m.Flush(context.Background(), true, true)

	var id string
	for k := range p.messages {
		id = k
	}

	m.Cleanup(context.Background(), false)
	if !p.removed[id] {
		t.Fatalf("expected abandoned live message %s to be removed on Cleanup(success=false)", id)
	}
}

func TestLiveMessageManagerCleanupKeepsMessageOnSuccess(t *testing.T) {
	p := newFakePlatform()
	m := NewLiveMessageManager(p, "chat1", 0, 0, 0, testLogger())

	m.mu.Lock()
	m.buf.WriteString("partial")
	m.mu.Unlock()
	m.Flush(context.Background(), true, true)

	m.Cleanup(context.Background(), true)
	if len(p.removed) != 0 {
		t.Fatalf("expected no removal on Cleanup(success=true), got %v", p.removed)
	}
}

func TestIsNotModifiedErrSwallowsTelegramError(t *testing.T) {
	err := errors.New("Bad Request: message is not modified")
	if !isNotModifiedErr(err) {
		t.Fatal("expected 'message is not modified' to be recognized")
	}
}

func TestIsNotModifiedErrDoesNotSwallowOtherErrors(t *testing.T) {
	err := errors.New("network timeout")
	if isNotModifiedErr(err) {
		t.Fatal("expected unrelated error not to be swallowed")
	}
}

func TestTruncateNoChangeWhenUnderLimit(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}

func TestTruncateAppendsEllipsisWhenOverLimit(t *testing.T) {
	got := truncate("abcdefgh", 5)
	want := "abcd…"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSplitIntoChunksEmptyText(t *testing.T) {
	if chunks := splitIntoChunks("", 10); chunks != nil {
		t.Fatalf("expected nil for empty text, got %v", chunks)
	}
}

func TestSplitIntoChunksUnderLimit(t *testing.T) {
	chunks := splitIntoChunks("hello", 10)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("expected single chunk, got %v", chunks)
	}
}

func TestSplitIntoChunksBreaksOnWordBoundary(t *testing.T) {
	text := "aaaa bbbb cccc dddd"
	chunks := splitIntoChunks(text, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected text to be split into multiple chunks, got %v", chunks)
	}
	reassembled := ""
	for _, c := range chunks {
		reassembled += c
	}
	if reassembled != text {
		t.Fatalf("expected chunks to reassemble to original text, got %q", reassembled)
	}
	for _, c := range chunks {
		if len([]rune(c)) > 10 {
			t.Fatalf("chunk %q exceeds max length 10", c)
		}
	}
}
