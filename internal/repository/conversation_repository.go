package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project_associa/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRepository owns conversations and their message log. The partial unique
// index conversations_one_open_per_patient is what keeps concurrent webhook deliveries
// from opening two conversations for one patient.
type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, association_id, patient_id, status, attendant_id, interlocutor_name,
	interlocutor_relationship, started_at, updated_at, queued_at, ended_at`

func scanConversation(row pgx.Row) (*entities.Conversation, error) {
	var c entities.Conversation
	err := row.Scan(&c.ID, &c.AssociationID, &c.PatientID, &c.Status, &c.AttendantID, &c.InterlocutorName,
		&c.InterlocutorRelationship, &c.StartedAt, &c.UpdatedAt, &c.QueuedAt, &c.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) FindOrCreateOpen(ctx context.Context, c *entities.Conversation) (*entities.Conversation, bool, error) {
	// The open row can be closed between a losing INSERT and the SELECT; retry once more then.
	for attempt := 0; attempt < 3; attempt++ {
		created, err := scanConversation(r.db.QueryRow(ctx, `
			INSERT INTO conversations (association_id, patient_id, status, interlocutor_name,
				interlocutor_relationship, started_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (patient_id) WHERE status <> 'resolvida' DO NOTHING
			RETURNING `+conversationColumns,
			c.AssociationID, c.PatientID, c.Status, c.InterlocutorName, c.InterlocutorRelationship, c.StartedAt))
		if err != nil {
			return nil, false, fmt.Errorf("insert conversation: %w", err)
		}
		if created != nil {
			return created, true, nil
		}

		existing, err := scanConversation(r.db.QueryRow(ctx,
			"SELECT "+conversationColumns+" FROM conversations WHERE patient_id = $1 AND status <> 'resolvida'",
			c.PatientID))
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("patient %d: %w", c.PatientID, entities.ErrDuplicateConversation)
}

func (r *ConversationRepository) GetByID(ctx context.Context, id int) (*entities.Conversation, error) {
	return scanConversation(r.db.QueryRow(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = $1", id))
}

func (r *ConversationRepository) ListByStatus(ctx context.Context, associationID int, status entities.ConversationStatus) ([]entities.Conversation, error) {
	return r.list(ctx, "SELECT "+conversationColumns+` FROM conversations
		WHERE association_id = $1 AND status = $2 ORDER BY id`, associationID, status)
}

func (r *ConversationRepository) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]entities.Conversation, error) {
	return r.list(ctx, "SELECT "+conversationColumns+` FROM conversations
		WHERE status = 'fila_humano' AND queued_at <= $1 ORDER BY id`, cutoff)
}

func (r *ConversationRepository) list(ctx context.Context, query string, args ...interface{}) ([]entities.Conversation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entities.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateStatus locks the row, checks the stored status against from, writes next and
// the audit message in one transaction.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, from entities.ConversationStatus, next *entities.Conversation, audit *entities.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current entities.ConversationStatus
	err = tx.QueryRow(ctx, "SELECT status FROM conversations WHERE id = $1 FOR UPDATE", next.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.ErrConversationNotFound
	}
	if err != nil {
		return err
	}
	if current != from {
		return entities.ErrStaleState
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET status = $1, attendant_id = $2, updated_at = $3, queued_at = $4, ended_at = $5
		WHERE id = $6
	`, next.Status, next.AttendantID, next.UpdatedAt, next.QueuedAt, next.EndedAt, next.ID)
	if isOpenConversationViolation(err) {
		return fmt.Errorf("conversation %d: %w", next.ID, entities.ErrDuplicateConversation)
	}
	if err != nil {
		return fmt.Errorf("update conversation %d: %w", next.ID, err)
	}

	if audit != nil {
		if err := insertMessage(ctx, tx, audit); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, m *entities.Message) error {
	err := insertMessage(ctx, r.db, m)
	if isForeignKeyViolation(err) {
		return entities.ErrConversationNotFound
	}
	return err
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func insertMessage(ctx context.Context, q querier, m *entities.Message) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, content, sender_type, sender_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, m.ConversationID, m.Content, m.SenderType, m.SenderID, m.Timestamp).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("append message to conversation %d: %w", m.ConversationID, err)
	}
	return nil
}

func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, content, sender_type, sender_id, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entities.Message{}
	for rows.Next() {
		var m entities.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.SenderType, &m.SenderID, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) CountOpen(ctx context.Context, patientID int) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM conversations WHERE patient_id = $1 AND status <> 'resolvida'", patientID).Scan(&n)
	return n, err
}
