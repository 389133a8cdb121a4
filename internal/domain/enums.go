// Package domain defines the core domain models for the support chat service.
package domain

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is only ever sent upstream, never stored.
	RoleSystem Role = "system"
)

// Valid reports whether r may be stored on a session.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	SessionStateActive  SessionState = "active"
	SessionStateDeleted SessionState = "deleted"
)

// EventType represents the type of a session event pushed to live clients.
type EventType string

const (
	EventTypeSessionCreated EventType = "session_created"
	EventTypeSessionUpdated EventType = "session_updated"
	EventTypeSessionDeleted EventType = "session_deleted"
)
