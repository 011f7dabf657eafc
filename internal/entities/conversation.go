package entities

import "time"

type ConversationStatus string

const (
	StatusWithAI    ConversationStatus = "com_ia"
	StatusQueued    ConversationStatus = "fila_humano"
	StatusWithHuman ConversationStatus = "com_humano"
	StatusResolved  ConversationStatus = "resolvida"
)

// allowed transitions; com_ia never jumps straight to com_humano and resolvida is terminal
var transitions = map[ConversationStatus][]ConversationStatus{
	StatusWithAI:    {StatusQueued},
	StatusQueued:    {StatusWithHuman},
	StatusWithHuman: {StatusResolved, StatusQueued},
}

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusWithAI, StatusQueued, StatusWithHuman, StatusResolved:
		return true
	}
	return false
}

func (s ConversationStatus) IsTerminal() bool {
	return s == StatusResolved
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to ConversationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Conversation struct {
	ID                       int                `json:"id"`
	AssociationID            int                `json:"association_id"`
	PatientID                int                `json:"patient_id"`
	Status                   ConversationStatus `json:"status"`
	AttendantID              *int               `json:"attendant_id"`
	InterlocutorName         string             `json:"interlocutor_name"`
	InterlocutorRelationship string             `json:"interlocutor_relationship"`
	StartedAt                time.Time          `json:"started_at"`
	UpdatedAt                time.Time          `json:"updated_at"`
	QueuedAt                 *time.Time         `json:"queued_at"`
	EndedAt                  *time.Time         `json:"ended_at"`
}

func (c *Conversation) IsOpen() bool {
	return !c.Status.IsTerminal()
}
