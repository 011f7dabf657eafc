package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

// MemoryStore keeps every table in process memory. It enforces the same uniqueness rules
// as the Postgres schema and is used for local runs without DATABASE_URL and in tests.
type MemoryStore struct {
	mu sync.Mutex

	associations  map[int]*entities.Association
	patients      map[int]*entities.Patient
	conversations map[int]*entities.Conversation
	messages      map[int][]entities.Message
	users         map[int]*entities.User
	configs       map[int]map[string]string

	nextID int
}

// Per-table views over the shared state.
type (
	MemoryAssociations  struct{ s *MemoryStore }
	MemoryPatients      struct{ s *MemoryStore }
	MemoryConversations struct{ s *MemoryStore }
	MemoryUsers         struct{ s *MemoryStore }
	MemoryConfigs       struct{ s *MemoryStore }
)

var (
	_ interfaces.AssociationStore  = MemoryAssociations{}
	_ interfaces.PatientStore      = MemoryPatients{}
	_ interfaces.ConversationStore = MemoryConversations{}
	_ interfaces.UserStore         = MemoryUsers{}
	_ interfaces.ConfigStore       = MemoryConfigs{}
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		associations:  make(map[int]*entities.Association),
		patients:      make(map[int]*entities.Patient),
		conversations: make(map[int]*entities.Conversation),
		messages:      make(map[int][]entities.Message),
		users:         make(map[int]*entities.User),
		configs:       make(map[int]map[string]string),
	}
}

func (s *MemoryStore) Associations() MemoryAssociations   { return MemoryAssociations{s} }
func (s *MemoryStore) Patients() MemoryPatients           { return MemoryPatients{s} }
func (s *MemoryStore) Conversations() MemoryConversations { return MemoryConversations{s} }
func (s *MemoryStore) Users() MemoryUsers                 { return MemoryUsers{s} }
func (s *MemoryStore) Configs() MemoryConfigs             { return MemoryConfigs{s} }

func (s *MemoryStore) id() int {
	s.nextID++
	return s.nextID
}

// Associations

func (v MemoryAssociations) GetBySubdomain(ctx context.Context, subdomain string) (*entities.Association, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.associations {
		if a.Subdomain == subdomain {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (v MemoryAssociations) GetBySession(ctx context.Context, session string) (*entities.Association, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.associations {
		if session != "" && a.GatewaySession == session {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (v MemoryAssociations) List(ctx context.Context) ([]entities.Association, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.Association, 0, len(s.associations))
	for _, a := range s.associations {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v MemoryAssociations) Create(ctx context.Context, a *entities.Association) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.associations {
		if existing.Subdomain == a.Subdomain {
			return fmt.Errorf("association %q already exists", a.Subdomain)
		}
		if a.GatewaySession != "" && existing.GatewaySession == a.GatewaySession {
			return fmt.Errorf("gateway session %q already bound", a.GatewaySession)
		}
	}
	a.ID = s.id()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	s.associations[a.ID] = &cp
	return nil
}

func (v MemoryAssociations) SetActive(ctx context.Context, subdomain string, active bool) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.associations {
		if a.Subdomain == subdomain {
			a.Active = active
			return nil
		}
	}
	return entities.ErrTenantNotFound
}

func (v MemoryAssociations) GetByID(ctx context.Context, id int) (*entities.Association, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.associations[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

// Patients

func (v MemoryPatients) GetByID(ctx context.Context, id int) (*entities.Patient, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.patients[id]; ok {
		return clonePatient(p), nil
	}
	return nil, nil
}

func (v MemoryPatients) GetByWhatsApp(ctx context.Context, associationID int, whatsapp string) (*entities.Patient, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findPatient(associationID, whatsapp); p != nil {
		return clonePatient(p), nil
	}
	return nil, nil
}

func (v MemoryPatients) Upsert(ctx context.Context, p *entities.Patient) (bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing := s.findPatient(p.AssociationID, p.WhatsApp)
	if existing == nil {
		stored := clonePatient(p)
		stored.ID = s.id()
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.patients[stored.ID] = stored
		*p = *clonePatient(stored)
		return true, nil
	}

	prev := *existing
	*existing = *clonePatient(p)
	existing.ID = prev.ID
	existing.CreatedAt = prev.CreatedAt
	existing.UpdatedAt = now
	if p.ExternalID == nil {
		existing.Status = prev.Status
		existing.ExternalID = prev.ExternalID
		existing.CPF = keepIfEmpty(p.CPF, prev.CPF)
		existing.ResponsibleName = keepIfEmpty(p.ResponsibleName, prev.ResponsibleName)
		existing.ResponsibleCPF = keepIfEmpty(p.ResponsibleCPF, prev.ResponsibleCPF)
		existing.RelationshipType = keepIfEmpty(p.RelationshipType, prev.RelationshipType)
	}
	if len(p.DirectoryFields) == 0 {
		existing.DirectoryFields = prev.DirectoryFields
	}
	*p = *clonePatient(existing)
	return false, nil
}

func keepIfEmpty(next, stored string) string {
	if next == "" {
		return stored
	}
	return next
}

func (s *MemoryStore) findPatient(associationID int, whatsapp string) *entities.Patient {
	for _, p := range s.patients {
		if p.AssociationID == associationID && p.WhatsApp == whatsapp {
			return p
		}
	}
	return nil
}

// Conversations

func (v MemoryConversations) FindOrCreateOpen(ctx context.Context, c *entities.Conversation) (*entities.Conversation, bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.conversations {
		if existing.PatientID == c.PatientID && existing.IsOpen() {
			cp := *existing
			return &cp, false, nil
		}
	}
	stored := *c
	stored.ID = s.id()
	s.conversations[stored.ID] = &stored
	cp := stored
	return &cp, true, nil
}

func (v MemoryConversations) GetByID(ctx context.Context, id int) (*entities.Conversation, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (v MemoryConversations) ListByStatus(ctx context.Context, associationID int, status entities.ConversationStatus) ([]entities.Conversation, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Conversation
	for _, c := range s.conversations {
		if c.AssociationID == associationID && c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v MemoryConversations) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]entities.Conversation, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Conversation
	for _, c := range s.conversations {
		if c.Status == entities.StatusQueued && c.QueuedAt != nil && !c.QueuedAt.After(cutoff) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v MemoryConversations) UpdateStatus(ctx context.Context, from entities.ConversationStatus, next *entities.Conversation, audit *entities.Message) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.conversations[next.ID]
	if !ok {
		return entities.ErrConversationNotFound
	}
	if current.Status != from {
		return entities.ErrStaleState
	}
	if next.IsOpen() {
		for _, other := range s.conversations {
			if other.ID != next.ID && other.PatientID == next.PatientID && other.IsOpen() {
				return entities.ErrDuplicateConversation
			}
		}
	}
	*current = *next
	if audit != nil {
		s.appendLocked(audit)
	}
	return nil
}

func (v MemoryConversations) AppendMessage(ctx context.Context, m *entities.Message) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[m.ConversationID]; !ok {
		return entities.ErrConversationNotFound
	}
	s.appendLocked(m)
	return nil
}

func (s *MemoryStore) appendLocked(m *entities.Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.ID = s.id()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
}

func (v MemoryConversations) ListMessages(ctx context.Context, conversationID int) ([]entities.Message, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]entities.Message(nil), s.messages[conversationID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (v MemoryConversations) CountOpen(ctx context.Context, patientID int) (int, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.conversations {
		if c.PatientID == patientID && c.IsOpen() {
			n++
		}
	}
	return n, nil
}

// CountPatients returns how many patients an association has.
func (s *MemoryStore) CountPatients(associationID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.patients {
		if p.AssociationID == associationID {
			n++
		}
	}
	return n
}

// ConversationsOf returns every conversation of a patient, oldest first.
func (s *MemoryStore) ConversationsOf(patientID int) []entities.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Conversation
	for _, c := range s.conversations {
		if c.PatientID == patientID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Users

func (v MemoryUsers) Create(ctx context.Context, u *entities.User) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %q already taken", u.Username)
		}
	}
	u.ID = s.id()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (v MemoryUsers) GetByID(ctx context.Context, id int) (*entities.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (v MemoryUsers) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// Bot config

func (v MemoryConfigs) GetConfig(ctx context.Context, associationID int, key string) (string, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[associationID][key], nil
}

func (v MemoryConfigs) SetConfig(ctx context.Context, associationID int, key, value string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs[associationID] == nil {
		s.configs[associationID] = make(map[string]string)
	}
	s.configs[associationID][key] = value
	return nil
}

func (v MemoryConfigs) GetAllConfigs(ctx context.Context, associationID int) (map[string]string, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.configs[associationID]))
	for k, val := range s.configs[associationID] {
		out[k] = val
	}
	return out, nil
}

func clonePatient(p *entities.Patient) *entities.Patient {
	cp := *p
	if p.DirectoryFields != nil {
		cp.DirectoryFields = make(map[string]interface{}, len(p.DirectoryFields))
		for k, v := range p.DirectoryFields {
			cp.DirectoryFields[k] = v
		}
	}
	return &cp
}
