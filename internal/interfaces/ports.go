package interfaces

import (
	"context"
	"errors"
	"time"

	"project_associa/internal/entities"
)

// Messenger delivers text through the WhatsApp gateway. Delivery is best-effort.
type Messenger interface {
	SendText(ctx context.Context, session, chatID, text string) error
}

// ReplyContext carries both identities of a conversation: the patient and whoever is texting.
type ReplyContext struct {
	Association  *entities.Association
	Patient      *entities.Patient
	Interlocutor entities.Interlocutor
	Conversation *entities.Conversation
	Text         string
}

// Responder authors the automated reply while a conversation is com_ia.
type Responder interface {
	Reply(ctx context.Context, rc ReplyContext) (string, error)
}

// EscalationPolicy decides whether an inbound text asks for a human.
type EscalationPolicy interface {
	ShouldEscalate(text string) bool
}

// Directory looks a contact up in the association's system of record.
// Errors are always one of entities.ErrDirectoryNotFound, ErrDirectoryUnavailable
// or ErrDirectoryUnauthorized.
type Directory interface {
	FindByPhone(ctx context.Context, association *entities.Association, variants []string) (*entities.DirectoryRecord, error)
}

// Publisher emits notification events. Failures never affect the caller's state changes.
type Publisher interface {
	Publish(ctx context.Context, evt entities.Event) error
}

// Lookups return (nil, nil) when the row does not exist.
type AssociationStore interface {
	GetBySubdomain(ctx context.Context, subdomain string) (*entities.Association, error)
	GetBySession(ctx context.Context, session string) (*entities.Association, error)
	GetByID(ctx context.Context, id int) (*entities.Association, error)
	List(ctx context.Context) ([]entities.Association, error)
	Create(ctx context.Context, a *entities.Association) error
	SetActive(ctx context.Context, subdomain string, active bool) error
}

type PatientStore interface {
	GetByWhatsApp(ctx context.Context, associationID int, whatsapp string) (*entities.Patient, error)
	GetByID(ctx context.Context, id int) (*entities.Patient, error)
	// Upsert inserts or updates by (association_id, whatsapp) and fills p from the stored row.
	// A LEAD write never downgrades a stored MEMBRO nor clears its external_id.
	Upsert(ctx context.Context, p *entities.Patient) (created bool, err error)
}

type ConversationStore interface {
	// FindOrCreateOpen returns the non-terminal conversation of c.PatientID, inserting c when none exists.
	FindOrCreateOpen(ctx context.Context, c *entities.Conversation) (conv *entities.Conversation, created bool, err error)
	GetByID(ctx context.Context, id int) (*entities.Conversation, error)
	ListByStatus(ctx context.Context, associationID int, status entities.ConversationStatus) ([]entities.Conversation, error)
	ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]entities.Conversation, error)
	// UpdateStatus writes next only if the stored status still equals from, appending audit
	// in the same transaction. Returns entities.ErrStaleState otherwise.
	UpdateStatus(ctx context.Context, from entities.ConversationStatus, next *entities.Conversation, audit *entities.Message) error
	AppendMessage(ctx context.Context, m *entities.Message) error
	ListMessages(ctx context.Context, conversationID int) ([]entities.Message, error)
	CountOpen(ctx context.Context, patientID int) (int, error)
}

type UserStore interface {
	Create(ctx context.Context, u *entities.User) error
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
	GetByID(ctx context.Context, id int) (*entities.User, error)
}

type ConfigStore interface {
	GetConfig(ctx context.Context, associationID int, key string) (string, error)
	SetConfig(ctx context.Context, associationID int, key, value string) error
	GetAllConfigs(ctx context.Context, associationID int) (map[string]string, error)
}

// Cache is a string key-value cache with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// ErrCacheMiss is returned by Cache.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache: miss")
