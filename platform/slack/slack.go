// Package slack implements the clawless.Platform contract over Slack's
// Socket Mode event stream. The teacher (govega) is Telegram-only; this
// adapter is grounded on the slack-go/slack usage visible across the rest
// of the retrieval pack's Go chat bridges (e.g. itsddvn-goclaw), adapted
// to clawless's Platform interface and live-message primitives.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	clawless "github.com/clawlessdev/clawless"
)

// Adapter implements clawless.Platform over Slack Socket Mode.
type Adapter struct {
	api    *slack.Client
	socket *socketmode.Client
	log    *slog.Logger

	onText  func(clawless.InboundMessage)
	onError func(error)
}

// New constructs an Adapter. botToken is the xoxb- bot token used for the
// Web API; appToken is the xapp- app-level token used for Socket Mode.
func New(botToken, appToken string, log *slog.Logger) *Adapter {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	socket := socketmode.New(api)
	return &Adapter{api: api, socket: socket, log: log.With("component", "slack")}
}

func (a *Adapter) OnTextMessage(handler func(clawless.InboundMessage)) { a.onText = handler }
func (a *Adapter) OnError(handler func(error))                        { a.onError = handler }

// Launch runs the Socket Mode event loop until ctx is cancelled.
func (a *Adapter) Launch(ctx context.Context) error {
	go a.consumeEvents(ctx)
	return a.socket.RunContext(ctx)
}

func (a *Adapter) Stop(reason string) {
	a.log.Info("stopping slack adapter", "reason", reason)
}

func (a *Adapter) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.handleEvent(evt)
		}
	}
}

func (a *Adapter) handleEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		payload, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.dispatchInnerEvent(payload)
	case socketmode.EventTypeErrorWriteFailed, socketmode.EventTypeConnectionError:
		if a.onError != nil {
			a.onError(fmt.Errorf("clawless/slack: %v", evt.Data))
		}
	}
}

func (a *Adapter) dispatchInnerEvent(payload slackevents.EventsAPIEvent) {
	inner, ok := payload.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || inner == nil || inner.Text == "" || inner.BotID != "" || inner.SubType != "" {
		return
	}
	if a.onText != nil {
		a.onText(clawless.InboundMessage{
			Text:     inner.Text,
			ChatID:   inner.Channel,
			UserID:   inner.User,
			Username: inner.User,
		})
	}
}

func (a *Adapter) SendTextToChat(ctx context.Context, chatID, text string) error {
	_, _, err := a.api.PostMessageContext(ctx, chatID, slack.MsgOptionText(text, false))
	return swallowIdempotent(err)
}

func (a *Adapter) StartTyping(chatID string) clawless.TypingIndicator {
	// Slack's Web API has no persistent typing indicator for bots; this is
	// a no-op per the Platform contract's allowance.
	return func() {}
}

func (a *Adapter) StartLiveMessage(ctx context.Context, chatID, initial string) (string, error) {
	_, ts, err := a.api.PostMessageContext(ctx, chatID, slack.MsgOptionText(initial, false))
	if err != nil {
		return "", err
	}
	return ts, nil
}

func (a *Adapter) UpdateLiveMessage(ctx context.Context, chatID, messageID, text string) error {
	_, _, _, err := a.api.UpdateMessageContext(ctx, chatID, messageID, slack.MsgOptionText(text, false))
	return swallowIdempotent(err)
}

func (a *Adapter) FinalizeLiveMessage(ctx context.Context, chatID, messageID, text string) error {
	_, _, _, err := a.api.UpdateMessageContext(ctx, chatID, messageID, slack.MsgOptionText(text, false))
	if err != nil && !isNotModified(err) {
		return err
	}
	return nil
}

func (a *Adapter) RemoveMessage(ctx context.Context, chatID, messageID string) error {
	_, _, err := a.api.DeleteMessageContext(ctx, chatID, messageID)
	return swallowIdempotent(err)
}

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
	return strings.Contains(msg, "message_not_found") || strings.Contains(msg, "not modified")
}
