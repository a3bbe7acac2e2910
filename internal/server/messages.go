package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatapp/internal/jsonapi"
	"github.com/npezzotti/go-chatapp/internal/types"
)

// Close reasons sent to clients whose handshake is rejected.
const (
	ReasonMissingToken          = "Missing token"
	ReasonUnauthorized          = "Unauthorized"
	ReasonMissingConversationId = "Missing conversationId"
	ReasonInvalidConversation   = "Unauthorized or invalid conversation"
	ReasonUnexpectedError       = "Unexpected error"
	ReasonShuttingDown          = "Server shutting down"
)

// Subscription selects which broadcasts a socket receives.
type Subscription struct {
	// UserWide sockets receive events for every conversation the user owns.
	UserWide       bool
	ConversationId string
}

func encodeMessageCreated(conversationId string, msg types.Message) ([]byte, error) {
	return json.Marshal(jsonapi.NewMessageCreatedEvent(conversationId, msg))
}

// CloseConn sends a close frame with the given code and reason, then closes
// the underlying connection.
func CloseConn(conn *websocket.Conn, code int, reason string) error {
	deadline := time.Now().Add(writeWait)
	err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	return err
}
