// Package store defines the session storage interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

// Store persists sessions and their turns.
//
// Reads only ever see active sessions owned by the caller. Writes that change
// an existing session take the version the caller last observed and fail
// with domain.ErrConflict when the stored version moved on.
type Store interface {
	// CreateSession inserts a new session. Version is set to 1.
	CreateSession(ctx context.Context, session *domain.Session) error
	// GetSession returns the active session with its turns, or a NotFoundError.
	GetSession(ctx context.Context, sessionID, ownerID string) (*domain.Session, error)
	// FindSessions returns one page of active sessions ordered by updated time
	// descending, together with the total number of active sessions.
	FindSessions(ctx context.Context, ownerID string, page, limit int) ([]domain.Session, int, error)

	// AppendTurn appends turn to the session and refreshes its updated time.
	AppendTurn(ctx context.Context, sessionID string, expectedVersion int64, turn domain.Turn) (*domain.Session, error)
	// SetTitle replaces the session title.
	SetTitle(ctx context.Context, sessionID string, expectedVersion int64, title string, at time.Time) (*domain.Session, error)
	// SoftDelete marks an active session deleted; turns are retained.
	SoftDelete(ctx context.Context, sessionID, ownerID string, at time.Time) error

	// CountActive returns the number of active sessions and the total number
	// of turns across them.
	CountActive(ctx context.Context, ownerID string) (sessions int, turns int, err error)

	// Lifecycle
	Close() error
}
