package usecases

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"
	"project_associa/internal/repository"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDirectory struct {
	mu     sync.Mutex
	calls  int
	record *entities.DirectoryRecord
	err    error
}

func (d *fakeDirectory) FindByPhone(ctx context.Context, a *entities.Association, variants []string) (*entities.DirectoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if d.record == nil {
		return nil, entities.ErrDirectoryNotFound
	}
	rec := *d.record
	rec.MatchedVariant = variants[0]
	return &rec, nil
}

func (d *fakeDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type sentText struct {
	Session, ChatID, Text string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentText
	err  error
}

func (m *fakeMessenger) SendText(ctx context.Context, session, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentText{session, chatID, text})
	return m.err
}

func (m *fakeMessenger) Sent() []sentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentText(nil), m.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entities.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, evt entities.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// testEnv wires the usecases over the in-memory store.
type testEnv struct {
	store      *repository.MemoryStore
	assoc      *entities.Association
	directory  *fakeDirectory
	messenger  *fakeMessenger
	publisher  *recordingPublisher
	tenants    *TenantResolver
	reconciler *ReconciliationEngine
	machine    *ConversationMachine
	router     *MessageRouter
	attendants *AttendantService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := discardLogger()
	metrics := infrastructure.NewMetrics()

	assoc := &entities.Association{
		Subdomain:      "abrace",
		Name:           "Abrace",
		Active:         true,
		GatewaySession: "abrace",
		Directory:      entities.DirectoryConfig{BaseURL: "http://directory.test", Username: "api", Password: "secret"},
	}
	require.NoError(t, store.Associations().Create(context.Background(), assoc))

	env := &testEnv{
		store:     store,
		assoc:     assoc,
		directory: &fakeDirectory{},
		messenger: &fakeMessenger{},
		publisher: &recordingPublisher{},
	}
	env.tenants = NewTenantResolver(store.Associations(), infrastructure.NewMemoryCache(), 30*time.Second, logger)
	env.reconciler = NewReconciliationEngine(store.Patients(), env.directory, 24*time.Hour, logger, metrics)
	env.machine = NewConversationMachine(store.Conversations(), env.publisher, logger, metrics)
	env.router = NewMessageRouter(RouterDeps{
		Secret:        "s3cret",
		Tenants:       env.tenants,
		Reconciler:    env.reconciler,
		Machine:       env.machine,
		Conversations: store.Conversations(),
		Configs:       store.Configs(),
		Responder:     NewRuleResponder(store.Configs(), logger),
		Escalation:    NewKeywordPolicy([]string{"finalizar", "confirmar", "atendente", "humano"}),
		Messenger:     env.messenger,
		Publisher:     env.publisher,
		Logger:        logger,
		Metrics:       metrics,
	})
	env.attendants = NewAttendantService(env.machine, store.Conversations(), store.Patients(), store.Associations(), env.messenger, logger, metrics)
	return env
}

func inbound(from, body string) entities.InboundEvent {
	return entities.InboundEvent{
		Event:   "message",
		Session: "abrace",
		Payload: entities.InboundPayload{From: from, Body: body, Type: "chat"},
	}
}
