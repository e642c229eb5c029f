package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/interfaces/http/dto"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small control messages
	maxMessageSize = 4 * 1024

	sendBufferSize = 16
)

// Client is one websocket connection following one live sync key
type Client struct {
	id         string
	userID     string
	kind       livesync.Kind
	screen     string
	conn       *websocket.Conn
	subscriber *livesync.Subscriber
	server     *Server
	send       chan []byte
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	lease *livesync.Lease

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(ctx context.Context, userID string, kind livesync.Kind, screen string, conn *websocket.Conn, server *Server) *Client {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		id:         id,
		userID:     userID,
		kind:       kind,
		screen:     screen,
		conn:       conn,
		subscriber: server.subscriber,
		server:     server,
		send:       make(chan []byte, sendBufferSize),
		logger: server.logger.With(
			zap.String("userID", userID),
			zap.String("connectionID", id),
			zap.String("kind", string(kind)),
			zap.String("screen", screen),
		),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// start acquires the lease and runs the pumps. The initial snapshot follows
// the connection message once the store's first result set arrives.
func (c *Client) start() error {
	go c.writePump()
	c.enqueue(TypeConnectionEstablished, map[string]string{
		"connectionId": c.id,
		"userId":       c.userID,
		"kind":         string(c.kind),
		"screen":       c.screen,
	})

	lease, err := c.subscriber.Acquire(c.ctx, c.kind, c.screen, c.observe)
	if err != nil {
		c.enqueueError(err)
		c.close()
		return err
	}
	c.mu.Lock()
	c.lease = lease
	c.mu.Unlock()

	go c.readPump()
	go func() {
		select {
		case <-lease.Done():
			// Failure was already reported by observe
			c.close()
		case <-c.done:
		}
	}()
	return nil
}

func (c *Client) observe(snap livesync.Snapshot, err error) {
	if err != nil {
		c.enqueueError(err)
		return
	}
	c.enqueue(TypeSnapshot, dto.FromSnapshot(snap))
}

func (c *Client) enqueue(msgType string, data interface{}) {
	msg, err := encode(msgType, data)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Snapshots are full sets, so a client this far behind is dropped
		// rather than buffered further.
		c.logger.Warn("Send buffer full, closing slow client")
		c.close()
	}
}

func (c *Client) enqueueError(err error) {
	msgType := TypeError
	if appErrors.IsSync(err) {
		msgType = TypeSyncError
	}
	data := errorData{Message: err.Error()}
	if appErr := appErrors.GetAppError(err); appErr != nil {
		data.Type = string(appErr.Type)
		data.Message = appErr.Message
	}
	c.enqueue(msgType, data)
}

// readPump handles client control messages until the peer goes away
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text message")
			continue
		}
		c.handleTextMessage(message)
	}
}

func (c *Client) handleTextMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(bytes.TrimSpace(message), &msg); err != nil {
		c.logger.Debug("Received malformed message", zap.String("message", string(message)))
		return
	}

	switch msg.Type {
	case clientRefresh:
		key := livesync.Key{Kind: c.kind, OwnerID: c.userID, Screen: c.screen}
		if _, err := c.subscriber.Refresh(c.ctx, key); err != nil {
			c.enqueueError(err)
		}
	case clientPong:
	default:
		c.logger.Debug("Received unknown message type", zap.String("type", msg.Type))
	}
}

// writePump is the only goroutine writing to conn
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to write message", zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				c.close()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// close releases the lease and stops the pumps. Safe to call repeatedly.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		lease := c.lease
		c.mu.Unlock()
		if lease != nil {
			lease.Release()
		}
		close(c.done)
		c.server.unregister(c)
		c.logger.Debug("Client closed")
	})
}
