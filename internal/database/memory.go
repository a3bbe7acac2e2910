package database

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatapp/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const maxPasswordLen = 72

type userRecord struct {
	user         types.User
	passwordHash []byte
}

// MemoryChatRepository keeps users and conversations in process memory.
// Everything is lost on restart.
type MemoryChatRepository struct {
	mu            sync.RWMutex
	users         map[string]userRecord
	conversations map[string]*types.Conversation
	// order preserves insertion order for listings
	order []string

	now   func() time.Time
	newId func() string
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		users:         make(map[string]userRecord),
		conversations: make(map[string]*types.Conversation),
		now:           types.Now,
		newId:         uuid.NewString,
	}
}

func (db *MemoryChatRepository) Ping() error {
	return nil
}

// AddUser stores a user, keeping only a bcrypt hash of its password.
func (db *MemoryChatRepository) AddUser(user types.User) error {
	if user.Id == "" || user.Username == "" {
		return fmt.Errorf("user id and username are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[user.Id]; ok {
		return fmt.Errorf("user %q already exists", user.Id)
	}

	user.Password = ""
	db.users[user.Id] = userRecord{user: user, passwordHash: hash}
	return nil
}

// AddConversation stores a fully formed conversation as-is.
func (db *MemoryChatRepository) AddConversation(conv types.Conversation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[conv.Author]; !ok {
		return fmt.Errorf("conversation author %q: %w", conv.Author, ErrNotFound)
	}
	if _, ok := db.conversations[conv.Id]; ok {
		return fmt.Errorf("conversation %q already exists", conv.Id)
	}

	c := copyConversation(&conv)
	db.conversations[c.Id] = &c
	db.order = append(db.order, c.Id)
	return nil
}

func (db *MemoryChatRepository) GetUserByCredentials(username, password string) (types.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, rec := range db.users {
		if rec.user.Username != username {
			continue
		}

		if !comparablePassword(password) || bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) != nil {
			return types.User{}, ErrInvalidCredentials
		}

		return rec.user, nil
	}

	return types.User{}, ErrInvalidCredentials
}

// comparablePassword rejects input bcrypt cannot tell apart from another
// password: the key repeats the password and a NUL terminator, and bytes past
// 72 are ignored.
func comparablePassword(password string) bool {
	return len(password) <= maxPasswordLen && !strings.ContainsRune(password, 0)
}

func (db *MemoryChatRepository) GetUserById(id string) (types.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rec, ok := db.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}

	return rec.user, nil
}

func (db *MemoryChatRepository) ListConversations(authorId string) ([]types.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	convs := []types.Conversation{}
	for _, id := range db.order {
		c := db.conversations[id]
		if c.Author == authorId {
			convs = append(convs, copyConversation(c))
		}
	}

	return convs, nil
}

func (db *MemoryChatRepository) GetConversation(id string) (types.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, ok := db.conversations[id]
	if !ok {
		return types.Conversation{}, ErrNotFound
	}

	return copyConversation(c), nil
}

func (db *MemoryChatRepository) CreateConversation(params CreateConversationParams) (types.Conversation, error) {
	greeting := params.Greeting
	if greeting == "" {
		greeting = DefaultGreeting
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[params.Author]; !ok {
		return types.Conversation{}, fmt.Errorf("conversation author %q: %w", params.Author, ErrNotFound)
	}

	now := db.now()
	c := &types.Conversation{
		Id:        db.newId(),
		Name:      params.Name,
		Author:    params.Author,
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []types.Message{{
			Id:        db.newId(),
			Text:      greeting,
			Author:    types.AIAuthor,
			CreatedAt: now,
		}},
	}

	db.conversations[c.Id] = c
	db.order = append(db.order, c.Id)

	return copyConversation(c), nil
}

func (db *MemoryChatRepository) RenameConversation(id, name string) (types.Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.conversations[id]
	if !ok {
		return types.Conversation{}, ErrNotFound
	}

	c.Name = name
	c.UpdatedAt = db.now()

	return copyConversation(c), nil
}

func (db *MemoryChatRepository) CreateMessage(conversationId string, params CreateMessageParams) (types.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.conversations[conversationId]
	if !ok {
		return types.Message{}, ErrNotFound
	}

	return db.appendMessage(c, params), nil
}

func (db *MemoryChatRepository) CreateReply(conversationId string, params CreateMessageParams) (types.Message, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.conversations[conversationId]
	if !ok {
		return types.Message{}, false, ErrNotFound
	}

	if last, ok := c.LastMessage(); ok && last.Author == params.Author {
		return types.Message{}, false, nil
	}

	return db.appendMessage(c, params), true, nil
}

// appendMessage must be called with db.mu held.
func (db *MemoryChatRepository) appendMessage(c *types.Conversation, params CreateMessageParams) types.Message {
	msg := types.Message{
		Id:        db.newId(),
		Text:      params.Text,
		Author:    params.Author,
		CreatedAt: db.now(),
	}

	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.CreatedAt

	return msg
}

func copyConversation(c *types.Conversation) types.Conversation {
	cp := *c
	cp.Messages = slices.Clone(c.Messages)
	if cp.Messages == nil {
		cp.Messages = []types.Message{}
	}
	return cp
}
