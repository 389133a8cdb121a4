package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultMaxMessageLength bounds user-submitted turn content, in characters.
	DefaultMaxMessageLength = 1000
	// DefaultPageLimit is used when a list request carries no limit.
	DefaultPageLimit = 10
	// MaxPageLimit is the largest page a caller may request.
	MaxPageLimit = 50
)

// NormalizeMessage trims text and checks it against the message rules.
func NormalizeMessage(text string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", NewValidationError("message", "Message content is required")
	}
	if utf8.RuneCountInString(text) > maxLength {
		return "", NewValidationError("message", fmt.Sprintf("Message too long (max %d characters)", maxLength))
	}
	return trimmed, nil
}

// NormalizeTitle trims a caller-supplied title, falling back to DefaultTitle.
func NormalizeTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return DefaultTitle, nil
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		return "", NewValidationError("title", fmt.Sprintf("Title cannot exceed %d characters", MaxTitleLength))
	}
	return trimmed, nil
}

// ValidateSessionID checks that id is a well-formed session identifier.
func ValidateSessionID(id string) error {
	if id == "" {
		return NewValidationError("session id", "Invalid chat ID")
	}
	if _, err := uuid.Parse(id); err != nil {
		return NewValidationError("session id", "Invalid chat ID")
	}
	return nil
}

// ValidatePage checks list pagination bounds.
func ValidatePage(page, limit int) error {
	if page < 1 || limit < 1 || limit > MaxPageLimit {
		return NewValidationError("pagination", "Invalid pagination parameters")
	}
	return nil
}
