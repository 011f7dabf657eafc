package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"project_associa/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewaySendText(t *testing.T) {
	var got sendTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sendText", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k3y", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g := NewGatewayClient(srv.URL+"/", "k3y", time.Second)
	require.NoError(t, g.SendText(context.Background(), "abrace", "5585996201636@c.us", "Olá"))
	assert.Equal(t, sendTextRequest{ChatID: "5585996201636@c.us", Text: "Olá", Session: "abrace"}, got)
}

func TestGatewayFailuresAreDeliveryFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not started", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	g := NewGatewayClient(srv.URL, "", time.Second)
	err := g.SendText(context.Background(), "abrace", "x@c.us", "hi")
	assert.ErrorIs(t, err, entities.ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "422")

	srv.Close()
	err = g.SendText(context.Background(), "abrace", "x@c.us", "hi")
	assert.ErrorIs(t, err, entities.ErrDeliveryFailed)
}
