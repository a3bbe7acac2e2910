package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/jsonapi"
	"github.com/npezzotti/go-chatapp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	tcases := []struct {
		name          string
		body          any
		expectedToken string
		expectedCode  int
		expectedErr   *ApiError
	}{
		{
			name:          "user1",
			body:          attributes(CredentialsAttributes{Username: "user1", Password: "password1"}),
			expectedToken: user1,
			expectedCode:  http.StatusOK,
		},
		{
			name:          "user2",
			body:          attributes(CredentialsAttributes{Username: "user2", Password: "password2"}),
			expectedToken: user2,
			expectedCode:  http.StatusOK,
		},
		{
			name:         "wrong password",
			body:         attributes(CredentialsAttributes{Username: "user1", Password: "password2"}),
			expectedCode: http.StatusUnauthorized,
			expectedErr:  NewUnauthorizedError(detailInvalidCredentials),
		},
		{
			name:         "username is case sensitive",
			body:         attributes(CredentialsAttributes{Username: "User1", Password: "password1"}),
			expectedCode: http.StatusUnauthorized,
			expectedErr:  NewUnauthorizedError(detailInvalidCredentials),
		},
		{
			name:         "password repeated after a NUL byte",
			body:         attributes(CredentialsAttributes{Username: "user1", Password: "password1\x00password1"}),
			expectedCode: http.StatusUnauthorized,
			expectedErr:  NewUnauthorizedError(detailInvalidCredentials),
		},
		{
			name:         "raw NUL escape in body",
			body:         `{"data":{"type":"users","attributes":{"username":"user1","password":"password1\u0000password1"}}}`,
			expectedCode: http.StatusUnauthorized,
			expectedErr:  NewUnauthorizedError(detailInvalidCredentials),
		},
		{
			name:         "unknown user",
			body:         attributes(CredentialsAttributes{Username: "user3", Password: "password3"}),
			expectedCode: http.StatusUnauthorized,
			expectedErr:  NewUnauthorizedError(detailInvalidCredentials),
		},
		{
			name:         "malformed body",
			body:         "{not json",
			expectedCode: http.StatusBadRequest,
			expectedErr:  NewBadRequestError("Malformed request body"),
		},
		{
			name:         "missing attributes",
			body:         map[string]any{"data": map[string]any{"type": "users"}},
			expectedCode: http.StatusBadRequest,
			expectedErr:  NewBadRequestError("Missing data.attributes"),
		},
	}

	app := newTestApp(t, appOptions{})
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(apiRequest(t, http.MethodPost, "/authenticate", "", tc.body))

			if tc.expectedErr != nil {
				assertError(t, rr, tc.expectedCode, tc.expectedErr.Title, tc.expectedErr.Detail)
				return
			}

			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.Equal(t, jsonapi.MediaType, rr.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedToken, decode[tokenBody](t, rr).Meta.Token, "expected the token to equal the user id")
		})
	}
}

func TestAuthenticate_ChecksContentNegotiation(t *testing.T) {
	app := newTestApp(t, appOptions{})

	req := apiRequest(t, http.MethodPost, "/authenticate", "", attributes(CredentialsAttributes{Username: "user1", Password: "password1"}))
	req.Header.Set("Content-Type", "application/json")

	rr := app.do(req)
	assertError(t, rr, http.StatusUnsupportedMediaType, "Unsupported Content-Type", "Unsupported Content-Type header: application/json")
}

func TestListConversations(t *testing.T) {
	app := newTestApp(t, appOptions{})

	tcases := []struct {
		name     string
		token    string
		expected []string
	}{
		{name: "user1", token: user1, expected: []string{conv1}},
		{name: "user2", token: user2, expected: []string{conv2}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := app.do(apiRequest(t, http.MethodGet, "/conversations", tc.token, nil))
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, jsonapi.MediaType, rr.Header().Get("Content-Type"))

			body := decode[listBody](t, rr)
			var ids []string
			for _, c := range body.Data {
				assert.Equal(t, jsonapi.TypeConversations, c.Type)
				assert.Equal(t, tc.token, c.Attributes.Author, "expected only the caller's conversations")
				assert.NotEmpty(t, c.Attributes.Messages, "expected messages to be embedded")
				ids = append(ids, c.Id)
			}
			assert.ElementsMatch(t, tc.expected, ids)
		})
	}

	t.Run("includes created conversations", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPost, "/conversations", user2, attributes(map[string]string{"name": "another"})))
		require.Equal(t, http.StatusCreated, rr.Code)
		created := decode[conversationBody](t, rr).Data.Id

		rr = app.do(apiRequest(t, http.MethodGet, "/conversations", user2, nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var ids []string
		for _, c := range decode[listBody](t, rr).Data {
			ids = append(ids, c.Id)
		}
		assert.ElementsMatch(t, []string{conv2, created}, ids)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetUserById", user1).Return(types.User{Id: user1}, nil)
		db.On("ListConversations", user1).Return([]types.Conversation{}, nil).Once()

		empty := newTestApp(t, appOptions{db: db})
		rr := empty.do(apiRequest(t, http.MethodGet, "/conversations", user1, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"data":[]}`, rr.Body.String())
	})
}

func TestGetConversation(t *testing.T) {
	app := newTestApp(t, appOptions{})

	t.Run("owned conversation", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodGet, "/conversations/"+conv1, user1, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))

		body := decode[conversationBody](t, rr)
		stored := app.seededConversation(t, conv1)

		assert.Equal(t, jsonapi.TypeConversations, body.Data.Type)
		assert.Equal(t, conv1, body.Data.Id)
		assert.Equal(t, "Conversation #1", body.Data.Attributes.Name)
		assert.Equal(t, user1, body.Data.Attributes.Author)
		require.Len(t, body.Data.Attributes.Messages, 1)
		assert.Equal(t, "How can I help you today?", body.Data.Attributes.Messages[0].Text)
		assert.Equal(t, types.AIAuthor, body.Data.Attributes.Messages[0].Author)
		assert.True(t, stored.LastActivity().Equal(body.Data.Attributes.UpdatedAt.Time), "expected updatedAt to follow the latest message")
	})

	t.Run("missing conversation", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodGet, "/conversations/missing", user1, nil))
		assertError(t, rr, http.StatusNotFound, "Not Found", "Conversation not found")
	})

	t.Run("foreign conversation", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodGet, "/conversations/"+conv2, user1, nil))
		assertError(t, rr, http.StatusForbidden, "Forbidden", "You do not have access to this conversation")
	})
}

// Requests against someone else's conversation fail with 403 whatever the
// body holds.
func TestForeignConversation_Forbidden(t *testing.T) {
	bodies := map[string]any{
		"valid":     attributes(map[string]string{"name": "mine now", "text": "hi"}),
		"malformed": "{not json",
		"empty":     nil,
	}
	methods := []string{http.MethodGet, http.MethodPut, http.MethodPost}

	app := newTestApp(t, appOptions{})
	before := app.seededConversation(t, conv2)

	for _, method := range methods {
		for name, body := range bodies {
			t.Run(method+" "+name, func(t *testing.T) {
				rr := app.do(apiRequest(t, method, "/conversations/"+conv2, user1, body))
				assertError(t, rr, http.StatusForbidden, "Forbidden", "You do not have access to this conversation")
			})
		}
	}

	assert.Equal(t, before, app.seededConversation(t, conv2), "expected the conversation to be untouched")
}

func TestCreateConversation(t *testing.T) {
	app := newTestApp(t, appOptions{})

	t.Run("seeds a greeting", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPost, "/conversations", user1, attributes(map[string]string{"name": "New chat"})))
		require.Equal(t, http.StatusCreated, rr.Code)

		body := decode[conversationBody](t, rr)
		assert.Equal(t, jsonapi.TypeConversations, body.Data.Type)
		assert.NotEmpty(t, body.Data.Id)
		assert.Equal(t, "New chat", body.Data.Attributes.Name)
		assert.Equal(t, user1, body.Data.Attributes.Author)
		require.Len(t, body.Data.Attributes.Messages, 1, "expected exactly one seeded message")
		assert.Equal(t, types.AIAuthor, body.Data.Attributes.Messages[0].Author)
		assert.Equal(t, database.DefaultGreeting, body.Data.Attributes.Messages[0].Text)
		assert.False(t, body.Data.Attributes.CreatedAt.IsZero())
		assert.True(t, body.Data.Attributes.CreatedAt.Equal(body.Data.Attributes.UpdatedAt.Time))

		stored := app.seededConversation(t, body.Data.Id)
		assert.Len(t, stored.Messages, 1)
	})

	t.Run("missing name", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPost, "/conversations", user1, attributes(map[string]string{})))
		assertError(t, rr, http.StatusBadRequest, "Bad Request", "Conversation name is required")
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPost, "/conversations", user1, "[]"))
		assertError(t, rr, http.StatusBadRequest, "Bad Request", "Malformed request body")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPost, "/conversations", "", attributes(map[string]string{"name": "x"})))
		assertError(t, rr, http.StatusUnauthorized, "Unauthorized", detailNoToken)
	})
}

func TestRenameConversation(t *testing.T) {
	app := newTestApp(t, appOptions{})

	t.Run("renames", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPut, "/conversations/"+conv1, user1, attributes(map[string]string{"name": "Renamed"})))
		require.Equal(t, http.StatusOK, rr.Code)

		body := decode[conversationBody](t, rr)
		assert.Equal(t, conv1, body.Data.Id)
		assert.Equal(t, "Renamed", body.Data.Attributes.Name)
		assert.Len(t, body.Data.Attributes.Messages, 1, "expected messages to be unchanged")

		assert.Equal(t, "Renamed", app.seededConversation(t, conv1).Name)
	})

	t.Run("missing conversation", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPut, "/conversations/missing", user1, attributes(map[string]string{"name": "x"})))
		assertError(t, rr, http.StatusNotFound, "Not Found", "Conversation not found")
	})

	t.Run("missing name", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPut, "/conversations/"+conv1, user1, attributes(map[string]string{"name": ""})))
		assertError(t, rr, http.StatusBadRequest, "Bad Request", "Conversation name is required")
	})
}

func TestPostMessage(t *testing.T) {
	app := newTestApp(t, appOptions{})

	before := app.seededConversation(t, conv1)

	rr := app.do(apiRequest(t, http.MethodPost, "/conversations/"+conv1, user1, attributes(MessageRequestAttributes{Text: "hi"})))
	require.Equal(t, http.StatusCreated, rr.Code)

	body := decode[messageBody](t, rr)
	assert.Equal(t, jsonapi.TypeMessages, body.Data.Type)
	assert.NotEmpty(t, body.Data.Id)
	assert.Equal(t, "hi", body.Data.Attributes.Text)
	assert.Equal(t, user1, body.Data.Attributes.Author)

	after := app.seededConversation(t, conv1)
	require.Len(t, after.Messages, len(before.Messages)+1, "expected exactly one message appended")
	last, _ := after.LastMessage()
	assert.Equal(t, body.Data.Id, last.Id)
	assert.True(t, after.UpdatedAt.Equal(body.Data.Attributes.CreatedAt.Time), "expected updatedAt to match the message")
	assert.True(t, app.responder.Pending(conv1), "expected a reply to be scheduled")

	t.Run("missing text", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPost, "/conversations/"+conv1, user1, attributes(map[string]string{})))
		assertError(t, rr, http.StatusBadRequest, "Bad Request", "Message text is required")
	})

	t.Run("missing conversation", func(t *testing.T) {
		rr := app.do(apiRequest(t, http.MethodPost, "/conversations/missing", user1, attributes(MessageRequestAttributes{Text: "hi"})))
		assertError(t, rr, http.StatusNotFound, "Not Found", "Conversation not found")
	})
}

func TestStoreFailures(t *testing.T) {
	storeErr := errors.New("connection reset")

	tcases := []struct {
		name   string
		method string
		target string
		body   any
		setup  func(db *database.MockChatRepository)
	}{
		{
			name:   "authenticate",
			method: http.MethodPost,
			target: "/authenticate",
			body:   attributes(CredentialsAttributes{Username: "user1", Password: "password1"}),
			setup: func(db *database.MockChatRepository) {
				db.On("GetUserByCredentials", "user1", "password1").Return(types.User{}, storeErr).Once()
			},
		},
		{
			name:   "list",
			method: http.MethodGet,
			target: "/conversations",
			setup: func(db *database.MockChatRepository) {
				db.On("ListConversations", user1).Return([]types.Conversation(nil), storeErr).Once()
			},
		},
		{
			name:   "get",
			method: http.MethodGet,
			target: "/conversations/" + conv1,
			setup: func(db *database.MockChatRepository) {
				db.On("GetConversation", conv1).Return(types.Conversation{}, storeErr).Once()
			},
		},
		{
			name:   "create",
			method: http.MethodPost,
			target: "/conversations",
			body:   attributes(map[string]string{"name": "x"}),
			setup: func(db *database.MockChatRepository) {
				db.On("CreateConversation", mock.Anything).Return(types.Conversation{}, storeErr).Once()
			},
		},
		{
			name:   "post message",
			method: http.MethodPost,
			target: "/conversations/" + conv1,
			body:   attributes(MessageRequestAttributes{Text: "hi"}),
			setup: func(db *database.MockChatRepository) {
				db.On("GetConversation", conv1).Return(types.Conversation{Id: conv1, Author: user1}, nil).Once()
				db.On("CreateMessage", conv1, database.CreateMessageParams{Text: "hi", Author: user1}).Return(types.Message{}, storeErr).Once()
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			db.On("GetUserById", user1).Return(types.User{Id: user1}, nil).Maybe()
			tc.setup(db)

			app := newTestApp(t, appOptions{db: db})
			rr := app.do(apiRequest(t, tc.method, tc.target, user1, tc.body))

			assertError(t, rr, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
			assert.NotContains(t, rr.Body.String(), storeErr.Error(), "expected the cause to stay server-side")
		})
	}
}

// TestUser1Scenario walks the seeded user through authenticate, list, post
// and the scripted reply.
func TestUser1Scenario(t *testing.T) {
	app := newTestApp(t, appOptions{delay: 20 * time.Millisecond})

	rr := app.do(apiRequest(t, http.MethodPost, "/authenticate", "", attributes(CredentialsAttributes{Username: "user1", Password: "password1"})))
	require.Equal(t, http.StatusOK, rr.Code)
	token := decode[tokenBody](t, rr).Meta.Token
	require.Equal(t, user1, token)

	rr = app.do(apiRequest(t, http.MethodGet, "/conversations", token, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	convs := decode[listBody](t, rr).Data
	require.Len(t, convs, 1)
	for _, c := range convs {
		assert.Equal(t, token, c.Attributes.Author)
	}
	convId := convs[0].Id

	rr = app.do(apiRequest(t, http.MethodPost, "/conversations/"+convId, token, attributes(MessageRequestAttributes{Text: "hi"})))
	require.Equal(t, http.StatusCreated, rr.Code)
	msg := decode[messageBody](t, rr)
	assert.Equal(t, "hi", msg.Data.Attributes.Text)
	assert.Equal(t, token, msg.Data.Attributes.Author)

	var conv conversationBody
	require.Eventually(t, func() bool {
		rr := app.do(apiRequest(t, http.MethodGet, "/conversations/"+convId, token, nil))
		if rr.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &conv); err != nil {
			return false
		}
		msgs := conv.Data.Attributes.Messages
		return len(msgs) > 0 && msgs[len(msgs)-1].Author == types.AIAuthor && msgs[len(msgs)-1].Id != msgs[0].Id
	}, 2*time.Second, 10*time.Millisecond, "expected a trailing reply")

	msgs := conv.Data.Attributes.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, msg.Data.Id, msgs[1].Id)
	assert.Equal(t, cannedReply, msgs[2].Text)
	assert.True(t, msgs[2].CreatedAt.Equal(conv.Data.Attributes.UpdatedAt.Time))
}
