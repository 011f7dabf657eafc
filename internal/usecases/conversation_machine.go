package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"
	"project_associa/internal/interfaces"
)

// staleRetries bounds how often a transition re-reads a conversation that changed under it.
const staleRetries = 3

// ConversationMachine owns every conversation status change and the audit trail that
// goes with it.
type ConversationMachine struct {
	conversations interfaces.ConversationStore
	publisher     interfaces.Publisher
	logger        *slog.Logger
	metrics       *infrastructure.Metrics
	now           func() time.Time
}

func NewConversationMachine(conversations interfaces.ConversationStore, publisher interfaces.Publisher, logger *slog.Logger, metrics *infrastructure.Metrics) *ConversationMachine {
	return &ConversationMachine{
		conversations: conversations,
		publisher:     publisher,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

// FindOrCreateOpen returns the patient's single open conversation, opening one in com_ia
// when the last one was resolved or none exists.
func (m *ConversationMachine) FindOrCreateOpen(ctx context.Context, patient *entities.Patient, interlocutor entities.Interlocutor) (*entities.Conversation, bool, error) {
	now := m.now()
	conv, created, err := m.conversations.FindOrCreateOpen(ctx, &entities.Conversation{
		AssociationID:            patient.AssociationID,
		PatientID:                patient.ID,
		Status:                   entities.StatusWithAI,
		InterlocutorName:         interlocutor.Name,
		InterlocutorRelationship: interlocutor.Relationship,
		StartedAt:                now,
		UpdatedAt:                now,
	})
	if err != nil {
		if errors.Is(err, entities.ErrDuplicateConversation) {
			m.logger.Error("open conversation invariant violated", "patient_id", patient.ID, "error", err)
		}
		return nil, false, fmt.Errorf("find or create conversation: %w", err)
	}
	if created {
		m.logger.Info("conversation opened", "conversation_id", conv.ID, "patient_id", patient.ID,
			"association_id", patient.AssociationID)
	}
	return conv, created, nil
}

func (m *ConversationMachine) Get(ctx context.Context, id int) (*entities.Conversation, error) {
	conv, err := m.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, entities.ErrConversationNotFound
	}
	return conv, nil
}

// Transition moves the conversation to `to`, recording a sistema message with the actor.
// actorID nil means the system itself. Returns ErrInvalidTransition for moves the state
// graph forbids, including anything out of resolvida.
func (m *ConversationMachine) Transition(ctx context.Context, conversationID int, to entities.ConversationStatus, actorID *int) (*entities.Conversation, error) {
	for attempt := 0; ; attempt++ {
		current, err := m.Get(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if !entities.CanTransition(current.Status, to) {
			m.logger.Error("invalid conversation transition",
				"conversation_id", conversationID, "from", current.Status, "to", to, "actor", actorLabel(actorID))
			return nil, fmt.Errorf("%w: %s -> %s", entities.ErrInvalidTransition, current.Status, to)
		}

		now := m.now()
		next := *current
		next.Status = to
		next.UpdatedAt = now
		switch to {
		case entities.StatusQueued:
			next.QueuedAt = &now
			next.AttendantID = nil
		case entities.StatusWithHuman:
			next.AttendantID = actorID
		case entities.StatusResolved:
			next.EndedAt = &now
		}
		audit := &entities.Message{
			ConversationID: conversationID,
			Content:        fmt.Sprintf("status: %s -> %s (%s)", current.Status, to, actorLabel(actorID)),
			SenderType:     entities.SenderSystem,
			SenderID:       actorID,
			Timestamp:      now,
		}

		err = m.conversations.UpdateStatus(ctx, current.Status, &next, audit)
		if errors.Is(err, entities.ErrStaleState) && attempt < staleRetries {
			continue
		}
		if err != nil {
			if errors.Is(err, entities.ErrDuplicateConversation) || errors.Is(err, entities.ErrStaleState) {
				m.logger.Error("conversation transition lost", "conversation_id", conversationID,
					"from", current.Status, "to", to, "error", err)
			}
			return nil, fmt.Errorf("transition %d: %w", conversationID, err)
		}

		m.metrics.Transition(string(current.Status), string(to))
		if to == entities.StatusWithHuman && current.QueuedAt != nil {
			m.metrics.QueueWait(now.Sub(*current.QueuedAt))
		}
		m.logger.Info("conversation transitioned", "conversation_id", conversationID,
			"from", current.Status, "to", to, "actor", actorLabel(actorID))
		m.notify(ctx, &next, to)
		return &next, nil
	}
}

// Claim hands the conversation to an attendant. A conversation still with the AI passes
// through fila_humano first so both steps land in the audit trail.
func (m *ConversationMachine) Claim(ctx context.Context, conversationID, attendantID int) (*entities.Conversation, error) {
	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == entities.StatusWithAI {
		if _, err := m.Transition(ctx, conversationID, entities.StatusQueued, &attendantID); err != nil {
			return nil, err
		}
	}
	return m.Transition(ctx, conversationID, entities.StatusWithHuman, &attendantID)
}

// Requeue returns a conversation held by an attendant to the queue.
func (m *ConversationMachine) Requeue(ctx context.Context, conversationID, attendantID int) (*entities.Conversation, error) {
	return m.Transition(ctx, conversationID, entities.StatusQueued, &attendantID)
}

// Close resolves the conversation. The next inbound message opens a new one.
func (m *ConversationMachine) Close(ctx context.Context, conversationID, attendantID int) (*entities.Conversation, error) {
	return m.Transition(ctx, conversationID, entities.StatusResolved, &attendantID)
}

// notify is best-effort; the transition is already committed.
func (m *ConversationMachine) notify(ctx context.Context, conv *entities.Conversation, to entities.ConversationStatus) {
	var eventType string
	switch to {
	case entities.StatusQueued:
		eventType = entities.EventConversationQueued
	case entities.StatusWithHuman:
		eventType = entities.EventConversationClaimed
	case entities.StatusResolved:
		eventType = entities.EventConversationResolved
	default:
		return
	}
	data := map[string]interface{}{"interlocutor": conv.InterlocutorName}
	if conv.AttendantID != nil {
		data["attendant_id"] = *conv.AttendantID
	}
	publish(ctx, m.publisher, m.logger, entities.Event{
		Type:           eventType,
		AssociationID:  conv.AssociationID,
		ConversationID: conv.ID,
		PatientID:      conv.PatientID,
		Status:         to,
		Data:           data,
	})
}

func publish(ctx context.Context, p interfaces.Publisher, logger *slog.Logger, evt entities.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, evt); err != nil {
		logger.Warn("event publish failed", "type", evt.Type, "conversation_id", evt.ConversationID, "error", err)
	}
}

func actorLabel(actorID *int) string {
	if actorID == nil {
		return "sistema"
	}
	return fmt.Sprintf("atendente #%d", *actorID)
}
