package database

import "github.com/npezzotti/go-chatapp/internal/types"

type ChatRepository interface {
	Ping() error
	GetUserByCredentials(username, password string) (types.User, error)
	GetUserById(id string) (types.User, error)
	ListConversations(authorId string) ([]types.Conversation, error)
	GetConversation(id string) (types.Conversation, error)
	CreateConversation(params CreateConversationParams) (types.Conversation, error)
	RenameConversation(id, name string) (types.Conversation, error)
	CreateMessage(conversationId string, params CreateMessageParams) (types.Message, error)
	// CreateReply appends a message unless the conversation's latest message
	// already has the same author. The returned bool reports whether the
	// message was appended.
	CreateReply(conversationId string, params CreateMessageParams) (types.Message, bool, error)
}
