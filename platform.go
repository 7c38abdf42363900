package clawless

import "context"

// InboundMessage is one inbound chat message as delivered by a platform
// adapter. ChatID identifies where replies go; UserID/Username are used
// for whitelist checks and logging.
type InboundMessage struct {
	Text     string
	ChatID   string
	UserID   string
	Username string

	// SkipHybridMode, when set by a producer, bypasses the QUICK/ASYNC
	// wrapping for this one message. Nothing in clawless sets it:
	// AppendContextToAgent, which re-injects background results, calls the
	// runtime directly and never goes through the queue, and the scheduler
	// path does not set it either.
	SkipHybridMode bool
}

// TypingIndicator stops a previously started typing indicator. Calling it
// is a no-op if the platform does not support one.
type TypingIndicator func()

// Platform is the contract an adapter (Telegram, Slack) implements so the
// orchestrator can drive it without knowing which chat service is in use.
// It does not assume Markdown support; platform-specific escaping,
// chunking, and edit/delete idempotence (e.g. swallowing "message is not
// modified") are the adapter's responsibility.
type Platform interface {
	// Launch starts the adapter's event loop (e.g. long polling). It
	// returns once ctx is cancelled or the adapter fails unrecoverably.
	Launch(ctx context.Context) error

	// Stop requests a graceful shutdown of the adapter's event loop.
	Stop(reason string)

	// OnTextMessage registers the handler invoked for each inbound text
	// message. Must be called before Launch.
	OnTextMessage(handler func(InboundMessage))

	// OnError registers a handler for adapter-level errors (§7 kind 8:
	// logged, never propagated to the queue).
	OnError(handler func(error))

	// SendTextToChat sends a standalone message to chatID, used by the
	// HTTP callback surface and scheduler job results.
	SendTextToChat(ctx context.Context, chatID, text string) error

	// StartTyping begins a typing indicator for chatID if supported.
	StartTyping(chatID string) TypingIndicator

	// StartLiveMessage posts the first preview of a streaming reply and
	// returns its platform-specific message id.
	StartLiveMessage(ctx context.Context, chatID, initial string) (string, error)

	// UpdateLiveMessage edits a previously started live message in place.
	UpdateLiveMessage(ctx context.Context, chatID, messageID, text string) error

	// FinalizeLiveMessage edits the live message with the first chunk of
	// the (possibly platform-chunked) final text and sends any remaining
	// chunks as new messages.
	FinalizeLiveMessage(ctx context.Context, chatID, messageID, text string) error

	// RemoveMessage best-effort deletes a message, e.g. an abandoned live
	// message that was never finalized.
	RemoveMessage(ctx context.Context, chatID, messageID string) error
}
