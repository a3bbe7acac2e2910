package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/jsonapi"
	"github.com/npezzotti/go-chatapp/internal/stats"
	"github.com/npezzotti/go-chatapp/internal/types"
	"go.uber.org/zap"
)

//go:embed static/openapi.json
var openapiDoc []byte

//go:embed static/docs.html
var docsPage []byte

// RequestDocument is the {data: {type, attributes}} envelope clients send.
type RequestDocument[T any] struct {
	Data *struct {
		Type       string `json:"type,omitempty"`
		Attributes *T     `json:"attributes"`
	} `json:"data"`
}

type CredentialsAttributes struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ConversationRequestAttributes struct {
	Name string `json:"name"`
}

type MessageRequestAttributes struct {
	Text string `json:"text"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", jsonapi.MediaType)
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

func (s *ChatApp) writeError(w http.ResponseWriter, e *ApiError) {
	if e.StatusCode >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(e))
	}
	s.writeJson(w, e.StatusCode, e.Document())
}

// decodeAttributes reads a request envelope and returns its attributes.
func decodeAttributes[T any](r *http.Request) (T, *ApiError) {
	var (
		zero T
		doc  RequestDocument[T]
	)

	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return zero, NewBadRequestError("Malformed request body")
	}
	if doc.Data == nil || doc.Data.Attributes == nil {
		return zero, NewBadRequestError("Missing data.attributes")
	}

	return *doc.Data.Attributes, nil
}

func (s *ChatApp) authenticate(w http.ResponseWriter, r *http.Request) {
	creds, errResp := decodeAttributes[CredentialsAttributes](r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	user, err := s.db.GetUserByCredentials(creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			s.writeError(w, NewUnauthorizedError(detailInvalidCredentials))
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	token, err := s.tokens.IssueToken(user)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.log.Info("user authenticated", zap.String("user", user.Id))
	s.writeJson(w, http.StatusOK, jsonapi.Document{
		Meta: map[string]any{"token": token},
	})
}

func (s *ChatApp) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError(detailNoToken))
		return
	}

	convs, err := s.db.ListConversations(userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	data := make([]jsonapi.Resource, 0, len(convs))
	for _, c := range convs {
		data = append(data, jsonapi.NewConversationResource(c))
	}

	s.writeJson(w, http.StatusOK, jsonapi.Document{Data: data})
}

// ownedConversation loads the conversation named in the path and checks that
// the caller authored it. It writes the error response itself.
func (s *ChatApp) ownedConversation(w http.ResponseWriter, r *http.Request) (types.Conversation, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError(detailNoToken))
		return types.Conversation{}, false
	}

	conv, err := s.db.GetConversation(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return types.Conversation{}, false
	}

	if conv.Author != userId {
		s.writeError(w, NewForbiddenError())
		return types.Conversation{}, false
	}

	return conv, true
}

func (s *ChatApp) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, jsonapi.Document{Data: jsonapi.NewConversationResource(conv)})
}

func (s *ChatApp) createConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError(detailNoToken))
		return
	}

	attrs, errResp := decodeAttributes[ConversationRequestAttributes](r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	if attrs.Name == "" {
		s.writeError(w, NewBadRequestError("Conversation name is required"))
		return
	}

	conv, err := s.db.CreateConversation(database.CreateConversationParams{
		Name:     attrs.Name,
		Author:   userId,
		Greeting: database.DefaultGreeting,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.stats.Incr(stats.ConversationsCreated)
	s.log.Info("conversation created", zap.String("conversation", conv.Id), zap.String("user", userId))
	s.writeJson(w, http.StatusCreated, jsonapi.Document{Data: jsonapi.NewConversationResource(conv)})
}

func (s *ChatApp) renameConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}

	attrs, errResp := decodeAttributes[ConversationRequestAttributes](r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	if attrs.Name == "" {
		s.writeError(w, NewBadRequestError("Conversation name is required"))
		return
	}

	updated, err := s.db.RenameConversation(conv.Id, attrs.Name)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusOK, jsonapi.Document{Data: jsonapi.NewConversationResource(updated)})
}

// postMessage appends the caller's message and responds before the message
// is broadcast and the scripted reply is scheduled.
func (s *ChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}

	attrs, errResp := decodeAttributes[MessageRequestAttributes](r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	if attrs.Text == "" {
		s.writeError(w, NewBadRequestError("Message text is required"))
		return
	}

	msg, err := s.db.CreateMessage(conv.Id, database.CreateMessageParams{
		Text:   attrs.Text,
		Author: conv.Author,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.stats.Incr(stats.MessagesPosted)
	s.writeJson(w, http.StatusCreated, jsonapi.Document{Data: jsonapi.NewMessageResource(msg)})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	s.cs.Broadcast(conv.Id, msg)
	s.responder.Schedule(conv.Id)
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) openapi(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(openapiDoc)
}

func (s *ChatApp) docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(docsPage)
}
