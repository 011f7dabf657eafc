package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

var unsafeSessionChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// WhatsAppManager keeps one paired device per gateway session. It is the Messenger used
// when GATEWAY_MODE=whatsmeow.
type WhatsAppManager struct {
	clients map[string]*WhatsAppClient
	mu      sync.RWMutex
	baseDir string
	logger  *slog.Logger

	// HandlerFactory builds the event handler registered on every new client.
	HandlerFactory func(session string) func(interface{})
}

var _ interfaces.Messenger = (*WhatsAppManager)(nil)

func NewWhatsAppManager(baseDir string, logger *slog.Logger) *WhatsAppManager {
	if logger == nil {
		logger = slog.Default()
	}
	// Ensure devices directory exists
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		logger.Warn("could not create devices directory", "dir", baseDir, "error", err)
	}

	return &WhatsAppManager{
		clients: make(map[string]*WhatsAppClient),
		baseDir: baseDir,
		logger:  logger,
	}
}

// GetClient returns the client of session or nil.
func (m *WhatsAppManager) GetClient(session string) *WhatsAppClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[session]
}

func (m *WhatsAppManager) devicePath(session string) string {
	return filepath.Join(m.baseDir, "session_"+unsafeSessionChars.ReplaceAllString(session, "_")+".db")
}

func (m *WhatsAppManager) GetOrCreateClient(ctx context.Context, session string) (*WhatsAppClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[session]; exists {
		return client, nil
	}

	client, err := NewWhatsAppClient(ctx, m.devicePath(session), session, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp client for session %s: %w", session, err)
	}

	if m.HandlerFactory != nil {
		client.AddHandler(m.HandlerFactory(session))
	}

	m.clients[session] = client
	return client, nil
}

// ConnectClient connects the session's device, creating it if needed.
func (m *WhatsAppManager) ConnectClient(ctx context.Context, session string) (*WhatsAppClient, error) {
	client, err := m.GetOrCreateClient(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect WhatsApp session %s: %w", session, err)
	}

	return client, nil
}

// LogoutClient unpairs the session's device. A missing or already disconnected client
// is not an error.
func (m *WhatsAppManager) LogoutClient(ctx context.Context, session string) error {
	m.mu.Lock()
	client, exists := m.clients[session]
	delete(m.clients, session)
	m.mu.Unlock()

	if !exists || client == nil {
		return nil
	}
	if !client.IsLoggedIn() && !client.Client.IsConnected() {
		return nil
	}
	return client.Logout(ctx)
}

// SendText routes through the device of session.
func (m *WhatsAppManager) SendText(ctx context.Context, session, chatID, text string) error {
	client := m.GetClient(session)
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("%w: whatsapp session %q not connected", entities.ErrDeliveryFailed, session)
	}
	return client.SendText(ctx, chatID, text)
}

// DisconnectAll disconnects all clients (for graceful shutdown)
func (m *WhatsAppManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		client.Disconnect()
	}
	m.clients = make(map[string]*WhatsAppClient)
}
