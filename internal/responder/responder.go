// Package responder produces the scripted replies that follow user messages.
package responder

import (
	"errors"
	"sync"
	"time"

	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/stats"
	"github.com/npezzotti/go-chatapp/internal/types"
	"go.uber.org/zap"
)

// ReplyGenerator returns the text of the reply to a conversation.
type ReplyGenerator func(conv types.Conversation) string

// Static always replies with text.
func Static(text string) ReplyGenerator {
	return func(types.Conversation) string { return text }
}

type Broadcaster interface {
	Broadcast(conversationId string, msg types.Message)
}

// Responder arms one delayed reply per conversation. Scheduling while a
// reply is already pending for the conversation is a no-op.
type Responder struct {
	log         *zap.Logger
	db          database.ChatRepository
	broadcaster Broadcaster
	stats       stats.StatsProvider
	generate    ReplyGenerator
	delay       time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func New(logger *zap.Logger, db database.ChatRepository, b Broadcaster, su stats.StatsProvider, generate ReplyGenerator, delay time.Duration) *Responder {
	su.RegisterMetric(stats.RepliesSent)
	return &Responder{
		log:         logger,
		db:          db,
		broadcaster: b,
		stats:       su,
		generate:    generate,
		delay:       delay,
		pending:     make(map[string]*time.Timer),
	}
}

// Schedule arms a reply for the conversation after the configured delay.
// It reports whether a new task was armed.
func (r *Responder) Schedule(conversationId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}
	if _, ok := r.pending[conversationId]; ok {
		r.log.Debug("reply already pending", zap.String("conversation", conversationId))
		return false
	}

	var t *time.Timer
	t = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		if r.pending[conversationId] != t {
			// cancelled after firing
			r.mu.Unlock()
			return
		}
		delete(r.pending, conversationId)
		r.mu.Unlock()

		r.Trigger(conversationId)
	})
	r.pending[conversationId] = t

	return true
}

// Cancel disarms a pending reply. It reports whether one was pending.
func (r *Responder) Cancel(conversationId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.pending[conversationId]
	if !ok {
		return false
	}

	t.Stop()
	delete(r.pending, conversationId)
	return true
}

// Pending reports whether a reply is armed for the conversation.
func (r *Responder) Pending(conversationId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.pending[conversationId]
	return ok
}

// Stop cancels every pending reply and refuses new ones.
func (r *Responder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for id, t := range r.pending {
		t.Stop()
		delete(r.pending, id)
	}
}

// Trigger replies to the conversation now, unless its latest message is
// already from the responder. It reports whether a reply was appended.
func (r *Responder) Trigger(conversationId string) bool {
	log := r.log.With(zap.String("conversation", conversationId))

	conv, err := r.db.GetConversation(conversationId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			log.Info("conversation not found, skipping reply")
		} else {
			log.Error("get conversation", zap.Error(err))
		}
		return false
	}

	if last, ok := conv.LastMessage(); ok && last.FromAI() {
		log.Info("last message is already a reply, skipping")
		return false
	}

	msg, appended, err := r.db.CreateReply(conversationId, database.CreateMessageParams{
		Text:   r.generate(conv),
		Author: types.AIAuthor,
	})
	if err != nil {
		log.Error("create reply", zap.Error(err))
		return false
	}
	if !appended {
		log.Info("reply raced with another reply, skipping")
		return false
	}

	log.Info("added reply", zap.String("message", msg.Id))
	r.stats.Incr(stats.RepliesSent)
	r.broadcaster.Broadcast(conversationId, msg)
	return true
}
