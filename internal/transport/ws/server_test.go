package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/supportchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/hub"
	"github.com/xiaot623/gogo/supportchat/internal/protocol"
	"github.com/xiaot623/gogo/supportchat/internal/service"
	"github.com/xiaot623/gogo/supportchat/tests/helpers"
)

const testSecret = "ws-secret"

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	SessionID string          `json:"session_id"`
	OwnerID   string          `json:"owner_id"`
	Code      string          `json:"code"`
	Message   json.RawMessage `json:"message"`
	Session   json.RawMessage `json:"session"`
	Result    json.RawMessage `json:"result"`
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.LLMTimeoutMS = 1000

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub()
	go h.Run(ctx)

	responder := service.NewResponder(llm.NewMockClient(), cfg)
	svc := service.New(helpers.NewTestSQLiteStore(t), responder, nil, cfg, service.WithNotifier(h))

	e := echo.New()
	e.GET("/api/chat/ws", NewServer(cfg, h, svc, auth.NewJWTValidator(testSecret)).HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == want {
			return f
		}
	}
}

func hello(t *testing.T, conn *websocket.Conn, owner string) {
	t.Helper()
	token, err := auth.Sign(testSecret, owner, time.Hour)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeHello},
		Token:       token,
	}))
	ack := readUntil(t, conn, protocol.TypeHelloAck)
	require.Equal(t, owner, ack.OwnerID)
}

func TestHelloRequired(t *testing.T) {
	conn := dial(t, startServer(t))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": protocol.TypeSendMessage, "request_id": "r1"}))
	f := readUntil(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeHelloRequired, f.Code)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": protocol.TypeHello, "token": "garbage"}))
	f = readUntil(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeUnauthorized, f.Code)
}

func TestCreateAndSendOverWebSocket(t *testing.T) {
	url := startServer(t)
	conn := dial(t, url)
	watcher := dial(t, url)
	hello(t, conn, "u1")
	hello(t, watcher, "u1")

	require.NoError(t, conn.WriteJSON(protocol.CreateSessionMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeCreateSession, RequestID: "c1"},
	}))
	created := readUntil(t, conn, protocol.TypeSessionResult)
	require.NotEmpty(t, created.SessionID)
	event := readUntil(t, watcher, "session_created")
	assert.Equal(t, created.SessionID, event.SessionID)

	require.NoError(t, conn.WriteJSON(protocol.SendMessageMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSendMessage, RequestID: "m1", SessionID: created.SessionID},
		Message:     "Hi there",
	}))
	result := readUntil(t, conn, protocol.TypeMessageResult)
	assert.Equal(t, "m1", result.RequestID)

	var sendResult struct {
		Chat struct {
			Title        string `json:"title"`
			MessageCount int    `json:"message_count"`
		} `json:"chat"`
	}
	require.NoError(t, json.Unmarshal(result.Result, &sendResult))
	assert.Equal(t, "Hi there", sendResult.Chat.Title)
	assert.Equal(t, 2, sendResult.Chat.MessageCount)

	updated := readUntil(t, watcher, "session_updated")
	assert.Equal(t, created.SessionID, updated.SessionID)

	require.NoError(t, conn.WriteJSON(protocol.SendMessageMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSendMessage, RequestID: "m2", SessionID: created.SessionID},
		Message:     "   ",
	}))
	f := readUntil(t, conn, protocol.TypeError)
	assert.Equal(t, protocol.ErrorCodeValidation, f.Code)
	assert.Equal(t, "m2", f.RequestID)
}
