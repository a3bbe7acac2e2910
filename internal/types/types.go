package types

import (
	"time"
)

// AIAuthor is the author of every message produced by the scripted responder.
const AIAuthor = "AI"

type User struct {
	Id           string `json:"id"`
	Username     string `json:"username"`
	EmailAddress string `json:"email,omitempty"`
	Password     string `json:"-"`
}

type Message struct {
	Id        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromAI reports whether the message was written by the scripted responder.
func (m Message) FromAI() bool {
	return m.Author == AIAuthor
}

type Conversation struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// LastMessage returns the most recently appended message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}

	return c.Messages[len(c.Messages)-1], true
}

// LastActivity is the timestamp clients see as updatedAt: the creation time
// of the latest message, falling back to the stored UpdatedAt.
func (c Conversation) LastActivity() time.Time {
	if last, ok := c.LastMessage(); ok && !last.CreatedAt.IsZero() {
		return last.CreatedAt
	}

	return c.UpdatedAt
}

// Now returns the current UTC time rounded to milliseconds, the precision
// clients receive.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
