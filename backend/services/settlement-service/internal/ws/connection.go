package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit  = 4 * 1024
	pongWait   = 60 * time.Second
	sendBuffer = 16
)

// clientMessage is what a dashboard sends us. The only message today is the
// browser notification permission state.
type clientMessage struct {
	Type    string `json:"type"`
	Granted bool   `json:"granted"`
}

// Connection represents one dashboard tab.
type Connection struct {
	userID       string
	ws           *websocket.Conn
	send         chan []byte
	logger       *zap.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
	onClose      func(*Connection)

	permitted atomic.Bool
	mu        sync.Mutex
	closed    bool
}

// NewConnection builds connection wrapper. Only writePump writes to ws.
func NewConnection(userID string, ws *websocket.Conn, writeTimeout, pingInterval time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Connection{
		userID:       userID,
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		logger:       logger,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		onClose:      onClose,
	}
}

// UserID returns the dashboard owner.
func (c *Connection) UserID() string {
	return c.userID
}

// Permitted reports whether the browser granted notification permission.
func (c *Connection) Permitted() bool {
	return c.permitted.Load()
}

// Start launches read/write pumps.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("alert connection closed", zap.String("user_id", c.userID), zap.Error(err))
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("bad alert client message", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}
		if msg.Type == "permission" {
			c.permitted.Store(msg.Granted)
			c.logger.Debug("alert permission updated", zap.String("user_id", c.userID), zap.Bool("granted", msg.Granted))
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message. It returns false when the connection is closed or
// its buffer is full.
func (c *Connection) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("dropping alert, buffer full", zap.String("user_id", c.userID))
		return false
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) cleanup() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}
