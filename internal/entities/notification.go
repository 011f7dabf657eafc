package entities

import "time"

const (
	EventConversationQueued   = "conversation.queued"
	EventConversationClaimed  = "conversation.claimed"
	EventConversationResolved = "conversation.resolved"
	EventQueueTimeout         = "conversation.queue_timeout"
	EventMessageReceived      = "message.received"
)

// Event is a best-effort notification for attendant-facing consumers. It is never authoritative.
type Event struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	AssociationID  int                    `json:"association_id"`
	ConversationID int                    `json:"conversation_id"`
	PatientID      int                    `json:"patient_id"`
	Status         ConversationStatus     `json:"status,omitempty"`
	At             time.Time              `json:"at"`
	Data           map[string]interface{} `json:"data,omitempty"`
}
