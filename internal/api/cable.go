package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/server"
	"github.com/npezzotti/go-chatapp/internal/types"
	"go.uber.org/zap"
)

// closeError rejects a socket handshake with a close code and reason.
type closeError struct {
	code   int
	reason string
}

func (e *closeError) Error() string {
	return fmt.Sprintf("close %d: %s", e.code, e.reason)
}

func policyViolation(reason string) *closeError {
	return &closeError{code: websocket.ClosePolicyViolation, reason: reason}
}

// serveCable upgrades the connection before validating the query string, so
// handshake failures reach the client as close frames.
func (s *ChatApp) serveCable(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("error upgrading connection", zap.Error(err))
		return
	}

	user, sub, err := s.subscribe(r)
	if err != nil {
		var ce *closeError
		if !errors.As(err, &ce) {
			s.log.Error("socket handshake failed", zap.Error(err))
			ce = &closeError{code: websocket.CloseInternalServerErr, reason: server.ReasonUnexpectedError}
		} else {
			s.log.Info("socket rejected", zap.String("reason", ce.reason))
		}

		if err := server.CloseConn(conn, ce.code, ce.reason); err != nil {
			s.log.Debug("close rejected socket", zap.Error(err))
		}
		return
	}

	client := server.NewClient(user, sub, conn, s.cs, s.log)
	if !s.cs.RegisterClient(client) {
		server.CloseConn(conn, websocket.CloseGoingAway, server.ReasonShuttingDown)
		return
	}

	go client.Write()
	go client.Read()
}

// subscribe resolves the handshake query to a user and a subscription.
// Rejections are returned as *closeError; any other error is unexpected.
func (s *ChatApp) subscribe(r *http.Request) (user types.User, sub server.Subscription, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	q := r.URL.Query()

	token := q.Get("token")
	if token == "" {
		return user, sub, policyViolation(server.ReasonMissingToken)
	}

	userId, err := s.tokens.ResolveToken(token)
	if err != nil {
		return user, sub, policyViolation(server.ReasonUnauthorized)
	}

	user, err = s.db.GetUserById(userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return user, sub, policyViolation(server.ReasonUnauthorized)
		}
		return user, sub, fmt.Errorf("get user: %w", err)
	}

	sub.UserWide = q.Get("userWide") == "true"
	sub.ConversationId = q.Get("conversationId")

	if sub.ConversationId == "" {
		if !sub.UserWide {
			return user, sub, policyViolation(server.ReasonMissingConversationId)
		}
		return user, sub, nil
	}

	conv, err := s.db.GetConversation(sub.ConversationId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return user, sub, policyViolation(server.ReasonInvalidConversation)
		}
		return user, sub, fmt.Errorf("get conversation: %w", err)
	}

	if conv.Author != user.Id {
		return user, sub, policyViolation(server.ReasonInvalidConversation)
	}

	return user, sub, nil
}
