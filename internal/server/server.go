package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/events"
	"github.com/npezzotti/go-chatapp/internal/stats"
	"github.com/npezzotti/go-chatapp/internal/types"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

type broadcastReq struct {
	conversationId string
	msg            types.Message
}

// ChatServer is the connection registry. A single Run goroutine owns the
// subscription maps; everything else talks to it over channels.
type ChatServer struct {
	log            *zap.Logger
	db             database.ChatRepository
	stats          stats.StatsProvider
	publisher      events.Publisher
	dedupe         bool
	subs           *registry
	registerChan   chan *Client
	unregisterChan chan *Client
	broadcastChan  chan broadcastReq
	stop           chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

type Option func(*ChatServer)

// WithPublisher exports every broadcast message to p.
func WithPublisher(p events.Publisher) Option {
	return func(cs *ChatServer) { cs.publisher = p }
}

// WithDedupe delivers each event at most once per socket, even when the
// socket is subscribed both user-wide and to the conversation.
func WithDedupe(dedupe bool) Option {
	return func(cs *ChatServer) { cs.dedupe = dedupe }
}

func NewChatServer(logger *zap.Logger, db database.ChatRepository, su stats.StatsProvider, opts ...Option) *ChatServer {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		publisher:      events.NopPublisher{},
		subs:           newRegistry(),
		registerChan:   make(chan *Client),
		unregisterChan: make(chan *Client),
		broadcastChan:  make(chan broadcastReq, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cs)
	}

	cs.stats.RegisterMetric(stats.ActiveSockets)
	return cs
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.subs.add(c)
			cs.stats.Incr(stats.ActiveSockets)
			c.log.Info("client registered")
		case c := <-cs.unregisterChan:
			if cs.subs.remove(c) {
				cs.stats.Decr(stats.ActiveSockets)
				c.log.Info("client unregistered")
			}
			c.stopClient(websocket.CloseNormalClosure, "")
		case req := <-cs.broadcastChan:
			cs.broadcast(req)
		case <-cs.stop:
			cs.log.Info("disconnecting clients")
			for _, c := range cs.subs.clients() {
				c.stopClient(websocket.CloseGoingAway, ReasonShuttingDown)
			}
			close(cs.done)
			return
		}
	}
}

// RegisterClient blocks until the run loop has taken the client, or the
// server has shut down.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) UnregisterClient(c *Client) {
	select {
	case cs.unregisterChan <- c:
	case <-cs.done:
	}
}

// Broadcast queues msg for every socket subscribed to the conversation or,
// user-wide, to its author. Delivery is best effort.
func (cs *ChatServer) Broadcast(conversationId string, msg types.Message) {
	select {
	case cs.broadcastChan <- broadcastReq{conversationId: conversationId, msg: msg}:
	case <-cs.done:
		cs.log.Warn("dropping broadcast, server stopped", zap.String("conversation", conversationId))
	}
}

func (cs *ChatServer) broadcast(req broadcastReq) {
	log := cs.log.With(zap.String("conversation", req.conversationId), zap.String("message", req.msg.Id))

	var author string
	conv, err := cs.db.GetConversation(req.conversationId)
	switch {
	case err == nil:
		author = conv.Author
	case errors.Is(err, database.ErrNotFound):
		log.Warn("conversation not found, skipping user-wide subscribers")
	default:
		log.Error("look up conversation", zap.Error(err))
	}

	frame, err := encodeMessageCreated(req.conversationId, req.msg)
	if err != nil {
		log.Error("encode event", zap.Error(err))
		return
	}

	recipients := cs.subs.recipients(req.conversationId, author, cs.dedupe)
	for _, c := range recipients {
		c.queueMessage(frame)
	}
	log.Debug("broadcast message", zap.Int("deliveries", len(recipients)))

	if author == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := cs.publisher.Publish(ctx, events.NewMessageCreated(req.conversationId, author, req.msg)); err != nil {
		log.Error("publish event", zap.Error(err))
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")
	cs.stopOnce.Do(func() { close(cs.stop) })

	select {
	case <-cs.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := cs.publisher.Close(); err != nil {
		cs.log.Error("close publisher", zap.Error(err))
	}
	return nil
}
