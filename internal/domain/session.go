package domain

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTitle is assigned to sessions created without a title.
	DefaultTitle = "New Chat"
	// MaxTitleLength is the longest title a session may carry, in characters.
	MaxTitleLength = 100
	// TitlePreviewLength is how much of the first user message becomes the title.
	TitlePreviewLength = 50
)

// Turn is one message within a session.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a persisted conversation between one owner and the assistant.
type Session struct {
	SessionID string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Title     string       `json:"title"`
	Turns     []Turn       `json:"messages"`
	State     SessionState `json:"state"`
	Version   int64        `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// MessageCount is derived from the turn sequence and never stored.
func (s *Session) MessageCount() int {
	return len(s.Turns)
}

// IsActive reports whether the session is visible to read paths.
func (s *Session) IsActive() bool {
	return s.State == SessionStateActive
}

// MarshalJSON adds the derived message_count field.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	turns := s.Turns
	if turns == nil {
		turns = []Turn{}
	}
	a := alias(s)
	a.Turns = turns
	return json.Marshal(struct {
		alias
		MessageCount int `json:"message_count"`
	}{
		alias:        a,
		MessageCount: len(turns),
	})
}

// DeriveTitle builds a session title from the first user message: the first
// TitlePreviewLength characters, with "..." appended only when the message
// was longer than that.
func DeriveTitle(firstMessage string) string {
	if utf8.RuneCountInString(firstMessage) <= TitlePreviewLength {
		return firstMessage
	}
	runes := []rune(firstMessage)
	return string(runes[:TitlePreviewLength]) + "..."
}
