package services

import (
	"context"
	"fmt"
	"log"

	"aitwin/internal/models"
)

// Relay outcomes reported back to the webhook caller
const (
	RelayStatusOK      = "ok"
	RelayStatusIgnored = "ignored"
	RelayStatusNoText  = "no_text"
)

// ChannelResponder answers a message relayed from a messaging channel
type ChannelResponder interface {
	HandleChannelMessage(ctx context.Context, ownerID, senderName, text string) (string, error)
}

// MessageSender delivers a reply to a chat
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// TelegramRelay answers friends' Telegram messages as the twin's owner
type TelegramRelay struct {
	responder ChannelResponder
	sender    MessageSender
	ownerID   string
}

// NewTelegramRelay creates a relay replying on behalf of ownerID
func NewTelegramRelay(responder ChannelResponder, sender MessageSender, ownerID string) *TelegramRelay {
	return &TelegramRelay{
		responder: responder,
		sender:    sender,
		ownerID:   ownerID,
	}
}

// HandleUpdate processes one webhook update and returns its status
func (r *TelegramRelay) HandleUpdate(ctx context.Context, update *models.TelegramUpdate) (string, error) {
	if update == nil || update.Message == nil || update.Message.Chat == nil {
		return RelayStatusIgnored, nil
	}
	msg := update.Message
	if msg.Text == "" {
		return RelayStatusNoText, nil
	}
	if msg.From != nil && msg.From.IsBot {
		return RelayStatusIgnored, nil
	}

	sender := msg.SenderName()
	log.Printf("📩 [TELEGRAM] Message from %s in chat %d", sender, msg.Chat.ID)

	reply, err := r.responder.HandleChannelMessage(ctx, r.ownerID, sender, msg.Text)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}

	if err := r.sender.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		return "", fmt.Errorf("failed to deliver reply: %w", err)
	}
	return RelayStatusOK, nil
}
