// Package telegram implements the clawless.Platform contract over
// long-polling Telegram Bot API updates, grounded on
// govega/serve/telegram.go's TelegramBot (tgbotapi.BotAPI wrapping,
// GetUpdatesChan polling loop), generalized from the teacher's
// DSL-interpreter routing to clawless's Platform interface.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	clawless "github.com/clawlessdev/clawless"
)

// Adapter implements clawless.Platform over the Telegram Bot API.
type Adapter struct {
	bot *tgbotapi.BotAPI
	log *slog.Logger

	onText  func(clawless.InboundMessage)
	onError func(error)
}

// New connects to Telegram with token. Connection failures surface
// immediately since this is a startup-time dependency.
func New(token string, log *slog.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("clawless/telegram: connect: %w", err)
	}
	bot.Debug = false
	return &Adapter{bot: bot, log: log.With("component", "telegram")}, nil
}

func (a *Adapter) OnTextMessage(handler func(clawless.InboundMessage)) { a.onText = handler }
func (a *Adapter) OnError(handler func(error))                        { a.onError = handler }

// Launch runs the long-polling loop until ctx is cancelled.
func (a *Adapter) Launch(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go a.handle(update)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return nil
		}
	}
}

func (a *Adapter) Stop(reason string) {
	a.log.Info("stopping telegram adapter", "reason", reason)
	a.bot.StopReceivingUpdates()
}

func (a *Adapter) handle(update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	var userID string
	if update.Message.From != nil {
		userID = strconv.FormatInt(update.Message.From.ID, 10)
	}
	var username string
	if update.Message.From != nil {
		username = update.Message.From.UserName
	}

	msg := clawless.InboundMessage{
		Text:     update.Message.Text,
		ChatID:   strconv.FormatInt(update.Message.Chat.ID, 10),
		UserID:   userID,
		Username: username,
	}
	if a.onText != nil {
		a.onText(msg)
	}
}

func (a *Adapter) SendTextToChat(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = a.bot.Send(tgbotapi.NewMessage(id, text))
	return swallowIdempotent(err)
}

func (a *Adapter) StartTyping(chatID string) clawless.TypingIndicator {
	id, err := parseChatID(chatID)
	if err != nil {
		return func() {}
	}
	_, _ = a.bot.Send(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return func() {}
}

func (a *Adapter) StartLiveMessage(ctx context.Context, chatID, initial string) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	sent, err := a.bot.Send(tgbotapi.NewMessage(id, initial))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (a *Adapter) UpdateLiveMessage(ctx context.Context, chatID, messageID, text string) error {
	chat, msg, err := parseIDs(chatID, messageID)
	if err != nil {
		return err
	}
	_, err = a.bot.Send(tgbotapi.NewEditMessageText(chat, msg, text))
	return swallowIdempotent(err)
}

func (a *Adapter) FinalizeLiveMessage(ctx context.Context, chatID, messageID, text string) error {
	chat, msg, err := parseIDs(chatID, messageID)
	if err != nil {
		return err
	}
	if _, err := a.bot.Send(tgbotapi.NewEditMessageText(chat, msg, text)); err != nil {
		if !isNotModified(err) {
			return err
		}
	}
	return nil
}

func (a *Adapter) RemoveMessage(ctx context.Context, chatID, messageID string) error {
	chat, msg, err := parseIDs(chatID, messageID)
	if err != nil {
		return err
	}
	_, err = a.bot.Send(tgbotapi.NewDeleteMessage(chat, msg))
	return swallowIdempotent(err)
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("clawless/telegram: invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}

func parseIDs(chatID, messageID string) (int64, int, error) {
	chat, err := parseChatID(chatID)
	if err != nil {
		return 0, 0, err
	}
	msg, err := strconv.Atoi(messageID)
	if err != nil {
		return 0, 0, fmt.Errorf("clawless/telegram: invalid message id %q: %w", messageID, err)
	}
	return chat, msg, nil
}

// swallowIdempotent drops errors for operations whose retry would not
// help, such as editing a message to the text it already has.
func swallowIdempotent(err error) error {
	if err == nil || isNotModified(err) {
		return nil
	}
	return err
}

func isNotModified(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message is not modified") || strings.Contains(msg, "message to delete not found")
}
