package domain

// CreateSessionRequest is the body of a create-session call.
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// SendMessageRequest is the body of a send-message call.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// SendResult is what a send-message operation produces: the updated session
// and the two turns appended by it.
type SendResult struct {
	UserMessage Turn     `json:"user_message"`
	AIResponse  Turn     `json:"ai_response"`
	Session     *Session `json:"chat"`
	// Fallback is set when the assistant turn is a canned apology.
	Fallback bool `json:"fallback"`
}

// SessionEvent is pushed to an owner's live connections after a mutation.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	// MessageCount is omitted for deletions.
	MessageCount int   `json:"message_count,omitempty"`
	Ts           int64 `json:"ts"`
}

// Envelope wraps every HTTP response body.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
