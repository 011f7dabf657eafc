package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"
	"project_associa/internal/interfaces"
)

// AttendantService is the attendant-facing side of conversations. Every call is scoped to
// the attendant's association; conversations of other tenants read as not found.
type AttendantService struct {
	machine       *ConversationMachine
	conversations interfaces.ConversationStore
	patients      interfaces.PatientStore
	associations  interfaces.AssociationStore
	messenger     interfaces.Messenger
	logger        *slog.Logger
	metrics       *infrastructure.Metrics
	now           func() time.Time
}

func NewAttendantService(machine *ConversationMachine, conversations interfaces.ConversationStore, patients interfaces.PatientStore, associations interfaces.AssociationStore, messenger interfaces.Messenger, logger *slog.Logger, metrics *infrastructure.Metrics) *AttendantService {
	return &AttendantService{
		machine:       machine,
		conversations: conversations,
		patients:      patients,
		associations:  associations,
		messenger:     messenger,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

func (s *AttendantService) List(ctx context.Context, associationID int, status entities.ConversationStatus) ([]entities.Conversation, error) {
	if status == "" {
		status = entities.StatusQueued
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	convs, err := s.conversations.ListByStatus(ctx, associationID, status)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []entities.Conversation{}
	}
	return convs, nil
}

func (s *AttendantService) Messages(ctx context.Context, associationID, conversationID int) ([]entities.Message, error) {
	if _, err := s.owned(ctx, associationID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.conversations.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []entities.Message{}
	}
	return msgs, nil
}

func (s *AttendantService) Claim(ctx context.Context, associationID, conversationID, attendantID int) (*entities.Conversation, error) {
	if _, err := s.owned(ctx, associationID, conversationID); err != nil {
		return nil, err
	}
	return s.machine.Claim(ctx, conversationID, attendantID)
}

func (s *AttendantService) Requeue(ctx context.Context, associationID, conversationID, attendantID int) (*entities.Conversation, error) {
	if _, err := s.owned(ctx, associationID, conversationID); err != nil {
		return nil, err
	}
	return s.machine.Requeue(ctx, conversationID, attendantID)
}

func (s *AttendantService) Close(ctx context.Context, associationID, conversationID, attendantID int) (*entities.Conversation, error) {
	if _, err := s.owned(ctx, associationID, conversationID); err != nil {
		return nil, err
	}
	return s.machine.Close(ctx, conversationID, attendantID)
}

// Send persists an atendente message and then attempts delivery to the patient's phone.
// Only a conversation in com_humano accepts attendant messages.
func (s *AttendantService) Send(ctx context.Context, associationID, conversationID, attendantID int, text string) (*entities.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty message")
	}
	conv, err := s.owned(ctx, associationID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != entities.StatusWithHuman {
		return nil, fmt.Errorf("%w: conversation is %s", entities.ErrInvalidTransition, conv.Status)
	}

	msg := &entities.Message{
		ConversationID: conversationID,
		Content:        text,
		SenderType:     entities.SenderAttendant,
		SenderID:       &attendantID,
		Timestamp:      s.now(),
	}
	if err := s.conversations.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append attendant message: %w", err)
	}

	patient, err := s.patients.GetByID(ctx, conv.PatientID)
	if err != nil || patient == nil {
		s.logger.Warn("attendant message not delivered: patient lookup failed", "conversation_id", conversationID, "error", err)
		return msg, nil
	}
	association, err := s.associations.GetByID(ctx, associationID)
	if err != nil || association == nil {
		s.logger.Warn("attendant message not delivered: association lookup failed", "conversation_id", conversationID, "error", err)
		return msg, nil
	}
	deliver(ctx, s.messenger, s.logger, s.metrics, association, entities.ChatID(patient.WhatsApp), text)
	return msg, nil
}

func (s *AttendantService) owned(ctx context.Context, associationID, conversationID int) (*entities.Conversation, error) {
	conv, err := s.machine.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.AssociationID != associationID {
		return nil, entities.ErrConversationNotFound
	}
	return conv, nil
}
