package usecases

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"
	"project_associa/internal/interfaces"
)

type InboundOutcome string

const (
	OutcomeIgnored   InboundOutcome = "ignored"
	OutcomeProcessed InboundOutcome = "processed"
	OutcomeEscalated InboundOutcome = "escalated"
	OutcomeSuspended InboundOutcome = "suspended"
)

const messageEvent = "message"

// RouterDeps groups the collaborators of MessageRouter.
type RouterDeps struct {
	Secret        string
	Tenants       *TenantResolver
	Reconciler    *ReconciliationEngine
	Machine       *ConversationMachine
	Conversations interfaces.ConversationStore
	Configs       interfaces.ConfigStore
	Responder     interfaces.Responder
	Escalation    interfaces.EscalationPolicy
	Messenger     interfaces.Messenger
	Publisher     interfaces.Publisher
	Locks         *infrastructure.PatientLocks
	Logger        *slog.Logger
	Metrics       *infrastructure.Metrics
}

// MessageRouter processes gateway webhook events end to end before they are acknowledged.
type MessageRouter struct {
	RouterDeps
	now func() time.Time
}

func NewMessageRouter(deps RouterDeps) *MessageRouter {
	if deps.Locks == nil {
		deps.Locks = infrastructure.NewPatientLocks()
	}
	return &MessageRouter{RouterDeps: deps, now: time.Now}
}

// VerifySecret compares the webhook shared secret in constant time.
func (r *MessageRouter) VerifySecret(provided string) error {
	if r.Secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(r.Secret)) != 1 {
		return entities.ErrUnauthorized
	}
	return nil
}

// HandleInbound runs one webhook event through tenant resolution, reconciliation,
// persistence and the automated reply. Delivery failures are logged, never returned.
func (r *MessageRouter) HandleInbound(ctx context.Context, evt entities.InboundEvent) (InboundOutcome, error) {
	outcome, err := r.handle(ctx, evt)
	result := string(outcome)
	if err != nil {
		result = "error"
	}
	r.Metrics.Webhook(result)
	return outcome, err
}

func (r *MessageRouter) handle(ctx context.Context, evt entities.InboundEvent) (InboundOutcome, error) {
	if reason := ignoreReason(evt); reason != "" {
		r.Logger.Debug("inbound event ignored", "event", evt.Event, "session", evt.Session, "reason", reason)
		return OutcomeIgnored, nil
	}
	from := evt.Payload.From

	association, err := r.Tenants.ResolveSession(ctx, evt.Session)
	if errors.Is(err, entities.ErrTenantInactive) {
		r.Logger.Info("message for suspended association", "association", association.Subdomain, "session", evt.Session)
		text := ConfigOrDefault(ctx, r.Configs, r.Logger, association, entities.ConfigSuspendedMessage)
		r.deliver(ctx, association, from, text)
		return OutcomeSuspended, err
	}
	if err != nil {
		return "", fmt.Errorf("session %q: %w", evt.Session, err)
	}

	phone, err := entities.NormalizePhone(from)
	if err != nil {
		return "", err
	}

	unlock, err := r.Locks.LockContext(ctx, infrastructure.PatientKey(association.ID, phone))
	if err != nil {
		return "", fmt.Errorf("wait for %s: %w", phone, err)
	}
	defer unlock()

	form := &LeadForm{Name: strings.TrimSpace(evt.Payload.NotifyName)}
	rec, err := r.Reconciler.Reconcile(ctx, association, phone, form)
	if errors.Is(err, entities.ErrDirectoryUnavailable) || errors.Is(err, entities.ErrNeedsLeadCapture) {
		// the sender is real even if the directory could not vouch for them
		rec, err = r.Reconciler.CaptureLead(ctx, association, phone, *form)
	}
	if err != nil {
		return "", fmt.Errorf("reconcile %s: %w", phone, err)
	}

	conv, _, err := r.Machine.FindOrCreateOpen(ctx, rec.Patient, rec.Interlocutor)
	if err != nil {
		return "", err
	}

	inbound := &entities.Message{
		ConversationID: conv.ID,
		Content:        evt.Payload.Body,
		SenderType:     entities.SenderPatient,
		Timestamp:      r.now(),
	}
	if err := r.Conversations.AppendMessage(ctx, inbound); err != nil {
		return "", fmt.Errorf("append inbound message: %w", err)
	}
	publish(ctx, r.Publisher, r.Logger, entities.Event{
		Type:           entities.EventMessageReceived,
		AssociationID:  association.ID,
		ConversationID: conv.ID,
		PatientID:      rec.Patient.ID,
		Status:         conv.Status,
		Data:           map[string]interface{}{"message_id": inbound.ID, "interlocutor": rec.Interlocutor.Name},
	})

	if conv.Status != entities.StatusWithAI {
		return OutcomeProcessed, nil
	}

	if r.Escalation != nil && r.Escalation.ShouldEscalate(evt.Payload.Body) {
		if _, err := r.Machine.Transition(ctx, conv.ID, entities.StatusQueued, nil); err != nil {
			return "", err
		}
		text := ConfigOrDefault(ctx, r.Configs, r.Logger, association, entities.ConfigHandoffMessage)
		if err := r.appendAndDeliver(ctx, association, conv.ID, from, entities.SenderSystem, text); err != nil {
			return "", err
		}
		return OutcomeEscalated, nil
	}

	reply, err := r.Responder.Reply(ctx, interfaces.ReplyContext{
		Association:  association,
		Patient:      rec.Patient,
		Interlocutor: rec.Interlocutor,
		Conversation: conv,
		Text:         evt.Payload.Body,
	})
	if err != nil {
		r.Logger.Warn("responder failed", "conversation_id", conv.ID, "error", err)
		return OutcomeProcessed, nil
	}
	if strings.TrimSpace(reply) == "" {
		return OutcomeProcessed, nil
	}
	if err := r.appendAndDeliver(ctx, association, conv.ID, from, entities.SenderAI, reply); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// appendAndDeliver persists first; the outbound send is best-effort.
func (r *MessageRouter) appendAndDeliver(ctx context.Context, association *entities.Association, conversationID int, to string, sender entities.SenderType, text string) error {
	msg := &entities.Message{
		ConversationID: conversationID,
		Content:        text,
		SenderType:     sender,
		Timestamp:      r.now(),
	}
	if err := r.Conversations.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append %s message: %w", sender, err)
	}
	r.deliver(ctx, association, to, text)
	return nil
}

func (r *MessageRouter) deliver(ctx context.Context, association *entities.Association, to, text string) {
	deliver(ctx, r.Messenger, r.Logger, r.Metrics, association, to, text)
}

func deliver(ctx context.Context, messenger interfaces.Messenger, logger *slog.Logger, metrics *infrastructure.Metrics, association *entities.Association, to, text string) {
	if messenger == nil || association == nil || text == "" {
		return
	}
	chatID := chatIDFor(to)
	if chatID == "" {
		return
	}
	if err := messenger.SendText(ctx, association.GatewaySession, chatID, text); err != nil {
		metrics.Delivery("failed")
		logger.Warn("outbound delivery failed", "association", association.Subdomain, "chat_id", chatID, "error", err)
		return
	}
	metrics.Delivery("ok")
}

// chatIDFor keeps a gateway chat id as received and builds one for bare phones.
func chatIDFor(from string) string {
	if strings.HasSuffix(from, "@c.us") {
		return from
	}
	phone, err := entities.NormalizePhone(from)
	if err != nil {
		return ""
	}
	return entities.ChatID(phone)
}

func ignoreReason(evt entities.InboundEvent) string {
	p := evt.Payload
	switch {
	case evt.Event != messageEvent:
		return "not a message event"
	case p.FromMe:
		return "sent by us"
	case strings.HasSuffix(p.From, "@g.us"):
		return "group chat"
	case strings.HasSuffix(p.From, "@broadcast"):
		return "broadcast"
	case strings.TrimSpace(p.Body) == "":
		return "empty body"
	}
	return ""
}
