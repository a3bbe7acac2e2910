package database

import "errors"

var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// DefaultGreeting seeds every new conversation.
const DefaultGreeting = "How can I help you today?"

type CreateConversationParams struct {
	Name     string
	Author   string
	Greeting string
}

type CreateMessageParams struct {
	Text   string
	Author string
}
