package http

import (
	"encoding/json"
	"net/http"
	"time"

	"project_associa/internal/infrastructure"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout = 60 * time.Second
	wsEventBuffer = 32
	wsReadLimit   = 4 << 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// token auth runs before the upgrade
		return true
	},
}

type ackFrame struct {
	Type          string `json:"type"`
	AssociationID int    `json:"association_id"`
}

// QueueFeed streams notification events of the attendant's association over a websocket.
// The stream is advisory; clients re-read the queue through the REST API on reconnect.
func (h *Handler) QueueFeed(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime feed not enabled"})
		return
	}
	userID, associationID := attendantScope(c)

	ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response
		return
	}

	conn := infrastructure.NewWSConnection(userID, associationID, ws)
	conn.Start()
	subID, events := h.Hub.Subscribe(wsEventBuffer)
	defer func() {
		h.Hub.Unsubscribe(subID)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()
	h.Logger.Info("queue feed connected", "conn_id", conn.ID, "user_id", userID, "association_id", associationID)

	if payload, err := json.Marshal(ackFrame{Type: "connected", AssociationID: associationID}); err == nil {
		_ = conn.Send(payload)
	}

	go readUntilClosed(ws, conn)

	for {
		select {
		case <-conn.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.AssociationID != associationID {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := conn.Send(payload); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames (pongs and closes) and closes conn when the peer goes away.
func readUntilClosed(ws *websocket.Conn, conn *infrastructure.WSConnection) {
	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			conn.Close(websocket.CloseNormalClosure, "peer closed")
			return
		}
	}
}
