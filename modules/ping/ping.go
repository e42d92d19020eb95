// Package ping is the bot's smallest module: it replies "Pong!" to
// /ping, .ping, and !ping.
package ping

import (
	"context"
	"strings"

	"github.com/gnuweeb/tgbot/chatapi"
	"github.com/gnuweeb/tgbot/handler"
)

// Module replies to ping commands.
type Module struct {
	client *chatapi.Client
}

// New builds the ping module over client.
func New(client *chatapi.Client) *Module {
	return &Module{client: client}
}

// Name implements handler.Module.
func (*Module) Name() string { return "ping" }

// ListenTypes implements handler.Module.
func (*Module) ListenTypes() handler.UpdateType { return handler.UpdateMessage }

// Init implements handler.Module.
func (*Module) Init(context.Context) error { return nil }

// Shutdown implements handler.Module.
func (*Module) Shutdown(context.Context) {}

// Handle implements handler.Module.
func (m *Module) Handle(ctx context.Context, up *chatapi.Update) error {
	msg := up.Message
	if msg == nil || msg.Text == "" {
		return nil
	}

	text := msg.Text
	if len(text) < 2 {
		return nil
	}
	switch text[0] {
	case '/', '.', '!':
	default:
		return nil
	}
	if !strings.EqualFold(text[1:], "ping") {
		return nil
	}

	_, err := m.client.SendMessage(ctx, chatapi.SendMessageRequest{
		ChatID:              msg.Chat.ID,
		Text:                "Pong!",
		DisableNotification: true,
		ReplyToMessageID:    msg.MessageID,
	})
	return err
}
