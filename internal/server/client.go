package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatapp/internal/types"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendQueueSize  = 256
)

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *zap.Logger
	user       types.User
	sub        Subscription
	send       chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
	// close frame sent once stop is closed
	closeCode   int
	closeReason string
}

func NewClient(user types.User, sub Subscription, conn *websocket.Conn, cs *ChatServer, l *zap.Logger) *Client {
	id := shortid.MustGenerate()
	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log: l.With(
			zap.String("client", id),
			zap.String("user", user.Id),
			zap.Bool("user_wide", sub.UserWide),
			zap.String("conversation", sub.ConversationId),
		),
		user: user,
		sub:  sub,
		send: make(chan []byte, sendQueueSize),
		stop: make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

// Write pumps queued frames to the socket and keeps it alive with pings.
func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.sendMessage(websocket.TextMessage, frame) {
				return
			}
		case <-c.stop:
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason),
				time.Now().Add(writeWait),
			)
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read only services control frames; clients have nothing to say after the
// handshake, so data frames are discarded.
func (c *Client) Read() {
	defer func() {
		c.chatServer.UnregisterClient(c)
		c.conn.Close()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("ws read", zap.Error(err))
			}
			return
		}

		c.log.Debug("ignoring client message", zap.Int("bytes", len(raw)))
	}
}

func (c *Client) queueMessage(frame []byte) bool {
	select {
	case c.send <- frame:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn("write message", zap.Error(err))
		}
		return false
	}

	return true
}

// stopClient ends the write pump, which sends a close frame with the given
// code and reason. Only the first call has any effect.
func (c *Client) stopClient(code int, reason string) {
	c.stopOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		close(c.stop)
	})
}
