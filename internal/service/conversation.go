package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"github.com/xiaot623/gogo/supportchat/policy"
)

// CreateSession starts an empty session for ownerID.
func (s *Service) CreateSession(ctx context.Context, ownerID, title string) (*domain.Session, error) {
	title, err := domain.NormalizeTitle(title)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &domain.Session{
		SessionID: uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		Turns:     []domain.Turn{},
		State:     domain.SessionStateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.sessionCreated()
	s.publish(ownerID, domain.EventTypeSessionCreated, session)
	return session, nil
}

// ListSessions returns one page of the owner's active sessions.
func (s *Service) ListSessions(ctx context.Context, ownerID string, page, limit int) (*domain.SessionPage, error) {
	if err := domain.ValidatePage(page, limit); err != nil {
		return nil, err
	}
	sessions, total, err := s.store.FindSessions(ctx, ownerID, page, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return &domain.SessionPage{
		Sessions:   sessions,
		Pagination: domain.NewPagination(page, limit, total),
	}, nil
}

// GetSession returns an active session owned by ownerID.
func (s *Service) GetSession(ctx context.Context, sessionID, ownerID string) (*domain.Session, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	return s.store.GetSession(ctx, sessionID, ownerID)
}

// SendMessage appends the user's message, asks the assistant for a reply and
// appends it. A backend failure still produces a reply; see Responder.
// Once validation passes the operation runs to completion even if ctx is
// cancelled.
func (s *Service) SendMessage(ctx context.Context, sessionID, ownerID, text string) (*domain.SendResult, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	content, err := domain.NormalizeMessage(text, s.config.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	session, err := s.store.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.admit(ctx, session, ownerID, content); err != nil {
		return nil, err
	}

	userTurn := domain.Turn{Role: domain.RoleUser, Content: content, Timestamp: s.now().UTC()}
	session, err = s.appendTurn(ctx, session, ownerID, userTurn)
	if err != nil {
		return nil, err
	}
	// Versioned appends give exactly one request the first slot, and that
	// request derives the title.
	firstExchange := session.MessageCount() == 1

	window := ContextWindow(session.Turns, s.config.ContextWindowSize)
	reply := s.responder.Generate(ctx, window, ownerID)

	assistantTurn := domain.Turn{Role: domain.RoleAssistant, Content: reply.Content, Timestamp: s.now().UTC()}
	session, err = s.appendTurn(ctx, session, ownerID, assistantTurn)
	if err != nil {
		return nil, err
	}

	if firstExchange {
		session, err = s.setTitle(ctx, session, ownerID, domain.DeriveTitle(content))
		if err != nil {
			return nil, err
		}
	}

	s.metrics.messageSent()
	s.publish(ownerID, domain.EventTypeSessionUpdated, session)

	return &domain.SendResult{
		UserMessage: userTurn,
		AIResponse:  assistantTurn,
		Session:     session,
		Fallback:    !reply.Success,
	}, nil
}

// DeleteSession soft-deletes an active session owned by ownerID.
func (s *Service) DeleteSession(ctx context.Context, sessionID, ownerID string) error {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, sessionID, ownerID, s.now().UTC()); err != nil {
		return err
	}
	s.metrics.sessionDeleted()
	s.publish(ownerID, domain.EventTypeSessionDeleted, &domain.Session{SessionID: sessionID})
	return nil
}

// admit runs the message policy. A block becomes a ValidationError.
func (s *Service) admit(ctx context.Context, session *domain.Session, ownerID, content string) error {
	if s.policyEngine == nil {
		return nil
	}
	decision, reason, err := s.policyEngine.Evaluate(ctx, policy.Input{
		OwnerID:   ownerID,
		SessionID: session.SessionID,
		Length:    utf8.RuneCountInString(content),
		MaxLength: s.config.MaxMessageLength,
		TurnCount: session.MessageCount(),
		MaxTurns:  s.config.MaxTurnsPerSession,
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate message policy: %w", err)
	}
	if decision == policy.DecisionBlock {
		if reason == "" {
			reason = "message rejected by policy"
		}
		return domain.NewValidationError("message", reason)
	}
	return nil
}

// appendTurn retries a versioned append after reloading on conflict.
func (s *Service) appendTurn(ctx context.Context, session *domain.Session, ownerID string, turn domain.Turn) (*domain.Session, error) {
	current := session
	for attempt := 1; ; attempt++ {
		updated, err := s.store.AppendTurn(ctx, current.SessionID, current.Version, turn)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxWriteAttempts {
			return nil, err
		}
		s.metrics.conflict()
		log.Printf("WARN: append to session %s conflicted (attempt %d), reloading", current.SessionID, attempt)
		if current, err = s.store.GetSession(ctx, current.SessionID, ownerID); err != nil {
			return nil, err
		}
		// The reloaded session may have reached its cap in the meantime.
		if turn.Role == domain.RoleUser {
			if err := s.admit(ctx, current, ownerID, turn.Content); err != nil {
				return nil, err
			}
		}
	}
}

func (s *Service) setTitle(ctx context.Context, session *domain.Session, ownerID, title string) (*domain.Session, error) {
	current := session
	for attempt := 1; ; attempt++ {
		updated, err := s.store.SetTitle(ctx, current.SessionID, current.Version, title, s.now().UTC())
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxWriteAttempts {
			return nil, err
		}
		s.metrics.conflict()
		if current, err = s.store.GetSession(ctx, current.SessionID, ownerID); err != nil {
			return nil, err
		}
	}
}
