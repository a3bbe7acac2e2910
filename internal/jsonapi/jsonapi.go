// Package jsonapi holds the JSON:API-style envelopes shared by the HTTP API
// and the socket push channel. It follows the shape of JSON:API loosely and
// is not a compliant implementation.
package jsonapi

import (
	"time"

	"github.com/npezzotti/go-chatapp/internal/types"
)

const (
	MediaType = "application/vnd.api+json"

	TypeConversations = "conversations"
	TypeMessages      = "messages"

	EventMessageCreated = "message.created"

	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Time encodes as a UTC ISO 8601 timestamp with exactly three fractional
// digits, e.g. 2024-05-01T12:00:00.100Z.
type Time struct {
	time.Time
}

func NewTime(t time.Time) Time {
	return Time{t.UTC()}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(timeLayout) + `"`), nil
}

type Document struct {
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
	Errors []ErrorObject  `json:"errors,omitempty"`
}

type Resource struct {
	Type       string `json:"type"`
	Id         string `json:"id"`
	Attributes any    `json:"attributes"`
}

type ErrorObject struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type ConversationAttributes struct {
	Name      string                `json:"name"`
	Author    string                `json:"author"`
	Messages  []ConversationMessage `json:"messages"`
	CreatedAt Time                  `json:"createdAt"`
	UpdatedAt Time                  `json:"updatedAt"`
}

// ConversationMessage is a message embedded in a conversation's attributes.
type ConversationMessage struct {
	Id        string `json:"id"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	CreatedAt Time   `json:"createdAt"`
}

type MessageAttributes struct {
	Text      string `json:"text"`
	Author    string `json:"author"`
	CreatedAt Time   `json:"createdAt"`
}

// Event is the frame pushed to subscribed sockets.
type Event struct {
	Event          string   `json:"event"`
	Data           Resource `json:"data"`
	ConversationId string   `json:"conversationId"`
}

func NewConversationResource(c types.Conversation) Resource {
	msgs := make([]ConversationMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		msgs = append(msgs, ConversationMessage{
			Id:        m.Id,
			Text:      m.Text,
			Author:    m.Author,
			CreatedAt: NewTime(m.CreatedAt),
		})
	}

	return Resource{
		Type: TypeConversations,
		Id:   c.Id,
		Attributes: ConversationAttributes{
			Name:      c.Name,
			Author:    c.Author,
			Messages:  msgs,
			CreatedAt: NewTime(c.CreatedAt),
			UpdatedAt: NewTime(c.LastActivity()),
		},
	}
}

func NewMessageResource(m types.Message) Resource {
	return Resource{
		Type: TypeMessages,
		Id:   m.Id,
		Attributes: MessageAttributes{
			Text:      m.Text,
			Author:    m.Author,
			CreatedAt: NewTime(m.CreatedAt),
		},
	}
}

func NewMessageCreatedEvent(conversationId string, m types.Message) Event {
	return Event{
		Event:          EventMessageCreated,
		Data:           NewMessageResource(m),
		ConversationId: conversationId,
	}
}
