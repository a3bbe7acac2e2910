package database

import (
	"fmt"
	"time"

	"github.com/npezzotti/go-chatapp/internal/types"
)

var seedUsers = []types.User{
	{
		Id:           "c89ee220-37fc-4781-ae07-24fcaf91281a",
		Username:     "user1",
		Password:     "password1",
		EmailAddress: "user1@example.com",
	},
	{
		Id:           "f5a2d4e7-3b8f-4c7d-8e7e-3f1b4f7e8f7d",
		Username:     "user2",
		Password:     "password2",
		EmailAddress: "user2@example.com",
	},
}

func seedConversations(now time.Time) []types.Conversation {
	return []types.Conversation{
		{
			Id:        "d259d0be-a4cd-41f8-a19b-e333eab1fe21",
			Name:      "Conversation #1",
			Author:    seedUsers[0].Id,
			CreatedAt: now.Add(-24 * time.Hour),
			UpdatedAt: now.Add(-time.Hour),
			Messages: []types.Message{{
				Id:        "12f22418-4b56-44ad-9404-cf9231aad3d4",
				Text:      DefaultGreeting,
				Author:    types.AIAuthor,
				CreatedAt: now.Add(-time.Hour),
			}},
		},
		{
			Id:        "c6b3b2c2-2f7f-4d3e-8b0e-1b5d0b7b3f8d",
			Name:      "Conversation #2",
			Author:    seedUsers[1].Id,
			CreatedAt: now.Add(-48 * time.Hour),
			UpdatedAt: now.Add(-2 * time.Hour),
			Messages: []types.Message{{
				Id:        "d0d8f7e8-7b3f-4b0e-8d3e-2c2f7f6b3b2c",
				Text:      "Hi, there!",
				Author:    types.AIAuthor,
				CreatedAt: now.Add(-2 * time.Hour),
			}},
		},
	}
}

// SeedDemoData loads the demo users and their conversations, with
// timestamps relative to now.
func SeedDemoData(db *MemoryChatRepository, now time.Time) error {
	for _, u := range seedUsers {
		if err := db.AddUser(u); err != nil {
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}

	for _, c := range seedConversations(now) {
		if err := db.AddConversation(c); err != nil {
			return fmt.Errorf("seed conversation %q: %w", c.Name, err)
		}
	}

	return nil
}

// NewSeededChatRepository returns a memory repository holding the demo data.
func NewSeededChatRepository() (*MemoryChatRepository, error) {
	db := NewMemoryChatRepository()
	if err := SeedDemoData(db, db.now()); err != nil {
		return nil, err
	}

	return db, nil
}
