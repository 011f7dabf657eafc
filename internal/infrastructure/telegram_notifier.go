package infrastructure

import (
	"context"
	"fmt"

	"project_associa/internal/entities"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier alerts the attendants' Telegram chat about queue activity.
type TelegramNotifier struct {
	Bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{Bot: bot, chatID: chatID}, nil
}

// Deliver sends queue events only; other event types are ignored.
func (t *TelegramNotifier) Deliver(ctx context.Context, evt entities.Event) error {
	text := telegramText(evt)
	if text == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := t.Bot.Send(msg)
	return err
}

func telegramText(evt entities.Event) string {
	name, _ := evt.Data["interlocutor"].(string)
	if name == "" {
		name = "paciente"
	}
	switch evt.Type {
	case entities.EventConversationQueued:
		return fmt.Sprintf("🔔 *Nova conversa na fila*\nAssociação #%d · conversa #%d\nContato: %s",
			evt.AssociationID, evt.ConversationID, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, name))
	case entities.EventQueueTimeout:
		return fmt.Sprintf("⏰ *Conversa aguardando há muito tempo*\nAssociação #%d · conversa #%d\nContato: %s",
			evt.AssociationID, evt.ConversationID, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, name))
	}
	return ""
}
