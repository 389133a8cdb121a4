// Package protocol defines the WebSocket message protocol between chat clients and the server.
package protocol

import "github.com/xiaot623/gogo/supportchat/internal/domain"

// Message types from client to server
const (
	TypeHello         = "hello"
	TypeCreateSession = "create_session"
	TypeSendMessage   = "send_message"
)

// Message types from server to client. Session events reuse the
// domain.EventType values.
const (
	TypeHelloAck      = "hello_ack"
	TypeSessionResult = "session_result"
	TypeMessageResult = "message_result"
	TypeError         = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage is sent by the client to authenticate the connection.
type HelloMessage struct {
	BaseMessage
	Token string `json:"token"`
}

// HelloAckMessage is sent by the server after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	OwnerID string `json:"owner_id"`
}

// CreateSessionMessage asks the server to start a session.
type CreateSessionMessage struct {
	BaseMessage
	Title string `json:"title,omitempty"`
}

// SessionResultMessage answers create_session.
type SessionResultMessage struct {
	BaseMessage
	Session *domain.Session `json:"session"`
}

// SendMessageMessage carries one user message for SessionID.
type SendMessageMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// MessageResultMessage answers send_message.
type MessageResultMessage struct {
	BaseMessage
	Result *domain.SendResult `json:"result"`
}

// ErrorMessage is sent by the server when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeUnauthorized   = "unauthorized"
	ErrorCodeHelloRequired  = "hello_required"
	ErrorCodeValidation     = "validation_error"
	ErrorCodeNotFound       = "not_found"
	ErrorCodeInternalError  = "internal_error"
)
