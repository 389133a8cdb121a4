package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/supportchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/service"
	"github.com/xiaot623/gogo/supportchat/policy"
	"github.com/xiaot623/gogo/supportchat/tests/helpers"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := config.Default()
	cfg.LLMTimeoutMS = 1000
	db := helpers.NewTestSQLiteStore(t)
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	responder := service.NewResponder(llm.NewMockClient(), cfg, service.WithPicker(service.NewSeededPicker(1)))
	svc := service.New(db, responder, policyEngine, cfg)

	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/chat", auth.Middleware(auth.NewJWTValidator(testSecret))))
	return e
}

func doRequest(t *testing.T, e *echo.Echo, method, path, owner, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if owner != "" {
		token, err := auth.Sign(testSecret, owner, time.Hour)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func createChat(t *testing.T, e *echo.Echo, owner string) string {
	t.Helper()
	rec, env := doRequest(t, e, http.MethodPost, "/api/chat", owner, `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	return chat.ID
}

func TestCreateChat(t *testing.T) {
	e := newTestServer(t)

	rec, env := doRequest(t, e, http.MethodPost, "/api/chat", "u1", `{"title":"Billing"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Chat created successfully", env.Message)

	var chat map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	assert.Equal(t, "Billing", chat["title"])
	assert.EqualValues(t, 0, chat["message_count"])
	assert.Equal(t, []interface{}{}, chat["messages"])

	rec, env = doRequest(t, e, http.MethodPost, "/api/chat", "u1", `{"title":"`+strings.Repeat("t", 101)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestChatRequiresToken(t *testing.T) {
	e := newTestServer(t)

	rec, env := doRequest(t, e, http.MethodGet, "/api/chat", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgTokenRequired, env.Message)
}

func TestSendMessageFlow(t *testing.T) {
	e := newTestServer(t)
	id := createChat(t, e, "u1")

	rec, env := doRequest(t, e, http.MethodPost, "/api/chat/"+id+"/messages", "u1", `{"message":"  Hi there  "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Message sent successfully", env.Message)

	var result struct {
		UserMessage struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"user_message"`
		AIResponse struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"ai_response"`
		Chat struct {
			Title        string `json:"title"`
			MessageCount int    `json:"message_count"`
		} `json:"chat"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "Hi there", result.UserMessage.Content)
	assert.Equal(t, "assistant", result.AIResponse.Role)
	assert.NotEmpty(t, result.AIResponse.Content)
	assert.Equal(t, "Hi there", result.Chat.Title)
	assert.Equal(t, 2, result.Chat.MessageCount)

	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		message string
	}{
		{"empty", "/api/chat/" + id + "/messages", `{"message":"   "}`, http.StatusBadRequest, "Message content is required"},
		{"too long", "/api/chat/" + id + "/messages", `{"message":"` + strings.Repeat("x", 2000) + `"}`, http.StatusBadRequest, "Message too long (max 1000 characters)"},
		{"bad id", "/api/chat/64f0c2a9e4b0a1b2c3d4e5f6/messages", `{"message":"hi"}`, http.StatusBadRequest, "Invalid chat ID"},
		{"unknown id", "/api/chat/7b0e2a55-9f2c-4a8e-9c1e-2f1f0d3b6a11/messages", `{"message":"hi"}`, http.StatusNotFound, "Chat not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doRequest(t, e, http.MethodPost, tt.path, "u1", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
		})
	}

	rec, env = doRequest(t, e, http.MethodGet, "/api/chat/"+id, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var chat struct {
		MessageCount int `json:"message_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	assert.Equal(t, 2, chat.MessageCount, "rejected messages must not be stored")
}

func TestListChatsPagination(t *testing.T) {
	e := newTestServer(t)
	for i := 0; i < 15; i++ {
		createChat(t, e, "u1")
	}

	rec, env := doRequest(t, e, http.MethodGet, "/api/chat?page=2&limit=10", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Sessions   []json.RawMessage `json:"sessions"`
		Pagination struct {
			CurrentPage int  `json:"current_page"`
			TotalPages  int  `json:"total_pages"`
			TotalCount  int  `json:"total_count"`
			HasNext     bool `json:"has_next"`
			HasPrev     bool `json:"has_prev"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Sessions, 5)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.Equal(t, 15, page.Pagination.TotalCount)
	assert.False(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrev)

	rec, _ = doRequest(t, e, http.MethodGet, "/api/chat?page=abc&limit=0", "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code, "unparsable values fall back to defaults")

	rec, env = doRequest(t, e, http.MethodGet, "/api/chat?limit=51", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid pagination parameters", env.Message)

	rec, _ = doRequest(t, e, http.MethodGet, "/api/chat?page=-1", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteChatAndStats(t *testing.T) {
	e := newTestServer(t)
	keep := createChat(t, e, "u1")
	drop := createChat(t, e, "u1")

	rec, _ := doRequest(t, e, http.MethodPost, "/api/chat/"+keep+"/messages", "u1", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, e, http.MethodDelete, "/api/chat/"+drop, "u2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "foreign owner must not delete")

	rec, env := doRequest(t, e, http.MethodDelete, "/api/chat/"+drop, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Chat deleted successfully", env.Message)

	rec, _ = doRequest(t, e, http.MethodGet, "/api/chat/"+drop, "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = doRequest(t, e, http.MethodGet, "/api/chat/stats", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TotalSessions  int `json:"total_sessions"`
		TotalMessages  int `json:"total_messages"`
		RecentActivity []struct {
			ID string `json:"id"`
		} `json:"recent_activity"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 2, stats.TotalMessages)
	require.Len(t, stats.RecentActivity, 1)
	assert.Equal(t, keep, stats.RecentActivity[0].ID)
}
