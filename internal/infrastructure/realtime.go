package infrastructure

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var errConnectionClosed = errors.New("connection closed")

// WSConnection wraps an attendant websocket and serializes outbound writes through a
// buffered channel. Safe for concurrent use.
type WSConnection struct {
	ID            string
	UserID        int
	AssociationID int

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func NewWSConnection(userID, associationID int, ws *websocket.Conn) *WSConnection {
	return &WSConnection{
		ID:            uuid.NewString(),
		UserID:        userID,
		AssociationID: associationID,
		ws:            ws,
		send:          make(chan []byte, 64),
		close:         make(chan struct{}),
	}
}

// Start launches the write loop. Call once.
func (c *WSConnection) Start() {
	go c.writeLoop()
}

// Send enqueues payload. A full buffer closes the connection to keep backpressure bounded.
func (c *WSConnection) Send(payload []byte) error {
	select {
	case <-c.close:
		return errConnectionClosed
	default:
	}
	select {
	case <-c.close:
		return errConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// Done is closed once the connection is closed.
func (c *WSConnection) Done() <-chan struct{} {
	return c.close
}

func (c *WSConnection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *WSConnection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *WSConnection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
