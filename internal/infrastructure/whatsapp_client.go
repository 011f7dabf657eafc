package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"project_associa/internal/entities"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// WhatsAppClient is one paired WhatsApp device, bound to a gateway session name.
type WhatsAppClient struct {
	Client  *whatsmeow.Client
	Session string

	logger *slog.Logger
	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppClient(ctx context.Context, dbPath, session string, logger *slog.Logger) (*WhatsAppClient, error) {
	// Initialize SQLite container
	dbLog := waLog.Stdout("Database", "WARN", true)
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	// Get the first device (or create one)
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	clientLog := waLog.Stdout("Client/"+session, "INFO", true)
	return &WhatsAppClient{
		Client:  whatsmeow.NewClient(deviceStore, clientLog),
		Session: session,
		logger:  logger.With("session", session),
	}, nil
}

func (w *WhatsAppClient) Connect(ctx context.Context) error {
	if w.Client.Store.ID != nil {
		// Already paired
		if err := w.Client.Connect(); err != nil {
			return err
		}
		w.logger.Info("whatsapp connected with existing device")
		return nil
	}

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		return err
	}
	go w.watchQR(qrChan)
	return nil
}

func (w *WhatsAppClient) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			w.qrLock.Lock()
			w.qrCode = evt.Code
			w.qrLock.Unlock()
			w.logger.Info("whatsapp pairing code refreshed")
			continue
		}
		w.logger.Info("whatsapp login event", "event", evt.Event)
	}
}

func (w *WhatsAppClient) GetQR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

// IsConnected returns true if client is connected and logged in
func (w *WhatsAppClient) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

// GetPhoneNumber returns the connected phone number
func (w *WhatsAppClient) GetPhoneNumber() string {
	if w.Client.Store.ID == nil {
		return ""
	}
	return w.Client.Store.ID.User
}

// Logout unpairs the device and reconnects so a fresh QR code is produced.
func (w *WhatsAppClient) Logout(ctx context.Context) error {
	w.qrLock.Lock()
	w.qrCode = ""
	w.qrLock.Unlock()

	if err := w.Client.Logout(ctx); err != nil {
		return err
	}
	w.Client.Disconnect()

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		w.logger.Error("failed to reconnect after logout", "error", err)
		return err
	}
	go w.watchQR(qrChan)
	return nil
}

func (w *WhatsAppClient) Disconnect() {
	w.Client.Disconnect()
}

func (w *WhatsAppClient) AddHandler(handler func(interface{})) {
	w.Client.AddEventHandler(handler)
}

// SendText accepts gateway chat ids ("5585...@c.us") or bare numbers.
func (w *WhatsAppClient) SendText(ctx context.Context, chatID, text string) error {
	user := chatID
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	jid := types.NewJID(user, types.DefaultUserServer)

	_, err := w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: &text,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDeliveryFailed, err)
	}
	return nil
}

// ToInboundEvent converts a device message into the gateway webhook envelope so both
// transports share one ingestion path.
func ToInboundEvent(session string, evt *events.Message) entities.InboundEvent {
	var body string
	if evt.Message != nil {
		if evt.Message.Conversation != nil {
			body = evt.Message.GetConversation()
		} else if evt.Message.ExtendedTextMessage != nil {
			body = evt.Message.GetExtendedTextMessage().GetText()
		}
	}

	from := evt.Info.Sender.User + "@c.us"
	switch {
	case evt.Info.Chat.Server == types.BroadcastServer:
		from = evt.Info.Chat.User + "@broadcast"
	case evt.Info.IsGroup:
		from = evt.Info.Chat.User + "@g.us"
	}

	return entities.InboundEvent{
		Event:   "message",
		Session: session,
		Payload: entities.InboundPayload{
			From:       from,
			Body:       body,
			Type:       "chat",
			Timestamp:  evt.Info.Timestamp.Unix(),
			FromMe:     evt.Info.IsFromMe,
			NotifyName: evt.Info.PushName,
		},
	}
}
