package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

// GatewayClient sends text through the external WhatsApp HTTP gateway (WAHA-style API).
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ interfaces.Messenger = (*GatewayClient)(nil)

func NewGatewayClient(baseURL, apiKey string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

// SendText posts {chatId, text, session}. Transport errors and non-2xx answers are
// returned wrapped in entities.ErrDeliveryFailed.
func (g *GatewayClient) SendText(ctx context.Context, session, chatID, text string) error {
	data, err := json.Marshal(sendTextRequest{ChatID: chatID, Text: text, Session: session})
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDeliveryFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/sendText", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("X-Api-Key", g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: gateway status %d: %s", entities.ErrDeliveryFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
