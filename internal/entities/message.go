package entities

import "time"

type SenderType string

const (
	SenderPatient   SenderType = "paciente"
	SenderAI        SenderType = "ia"
	SenderAttendant SenderType = "atendente"
	SenderSystem    SenderType = "sistema"
)

// Message is an append-only entry of a conversation log, ordered by Timestamp then ID.
type Message struct {
	ID             int        `json:"id"`
	ConversationID int        `json:"conversation_id"`
	Content        string     `json:"content"`
	SenderType     SenderType `json:"sender_type"`
	SenderID       *int       `json:"sender_id"`
	Timestamp      time.Time  `json:"timestamp"`
}

// InboundEvent is the gateway webhook envelope.
type InboundEvent struct {
	Event   string         `json:"event"`
	Session string         `json:"session"`
	Payload InboundPayload `json:"payload"`
}

type InboundPayload struct {
	From       string `json:"from"`
	Body       string `json:"body"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	FromMe     bool   `json:"fromMe"`
	NotifyName string `json:"notifyName"`
}
