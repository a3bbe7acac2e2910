package database

import (
	"github.com/npezzotti/go-chatapp/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetUserByCredentials(username, password string) (types.User, error) {
	args := m.Called(username, password)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockChatRepository) GetUserById(id string) (types.User, error) {
	args := m.Called(id)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockChatRepository) ListConversations(authorId string) ([]types.Conversation, error) {
	args := m.Called(authorId)
	return args.Get(0).([]types.Conversation), args.Error(1)
}
func (m *MockChatRepository) GetConversation(id string) (types.Conversation, error) {
	args := m.Called(id)
	return args.Get(0).(types.Conversation), args.Error(1)
}
func (m *MockChatRepository) CreateConversation(params CreateConversationParams) (types.Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(types.Conversation), args.Error(1)
}
func (m *MockChatRepository) RenameConversation(id, name string) (types.Conversation, error) {
	args := m.Called(id, name)
	return args.Get(0).(types.Conversation), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(conversationId string, params CreateMessageParams) (types.Message, error) {
	args := m.Called(conversationId, params)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockChatRepository) CreateReply(conversationId string, params CreateMessageParams) (types.Message, bool, error) {
	args := m.Called(conversationId, params)
	return args.Get(0).(types.Message), args.Bool(1), args.Error(2)
}
