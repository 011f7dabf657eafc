package infrastructure

import (
	"testing"

	"project_associa/internal/entities"

	"github.com/stretchr/testify/assert"
)

func TestTelegramTextOnlyForQueueEvents(t *testing.T) {
	queued := entities.Event{
		Type:           entities.EventConversationQueued,
		AssociationID:  3,
		ConversationID: 42,
		Data:           map[string]interface{}{"interlocutor": "Maria_Souza"},
	}
	text := telegramText(queued)
	assert.Contains(t, text, "conversa #42")
	assert.Contains(t, text, `Maria\_Souza`)

	queued.Type = entities.EventQueueTimeout
	queued.Data = nil
	assert.Contains(t, telegramText(queued), "paciente")

	assert.Empty(t, telegramText(entities.Event{Type: entities.EventMessageReceived}))
	assert.Empty(t, telegramText(entities.Event{Type: entities.EventConversationClaimed}))
}
