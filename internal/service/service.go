// Package service implements the conversation orchestration engine.
package service

import (
	"time"

	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"github.com/xiaot623/gogo/supportchat/internal/repository"
	"github.com/xiaot623/gogo/supportchat/policy"
)

// maxWriteAttempts bounds how often a versioned write is retried after a conflict.
const maxWriteAttempts = 5

// Notifier receives session events after successful mutations.
type Notifier interface {
	Publish(ownerID string, event domain.SessionEvent)
}

type Service struct {
	store        store.Store
	responder    *Responder
	policyEngine *policy.Engine
	config       *config.Config
	notifier     Notifier
	metrics      *Metrics
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier sets the event sink for live connections.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics records operation counters into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service. policyEngine may be nil, in which case every
// message is admitted.
func New(store store.Store, responder *Responder, policyEngine *policy.Engine, cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		store:        store,
		responder:    responder,
		policyEngine: policyEngine,
		config:       cfg,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(ownerID string, eventType domain.EventType, session *domain.Session) {
	if s.notifier == nil {
		return
	}
	event := domain.SessionEvent{
		Type:      eventType,
		SessionID: session.SessionID,
		Title:     session.Title,
		Ts:        s.now().UnixMilli(),
	}
	if eventType != domain.EventTypeSessionDeleted {
		event.MessageCount = session.MessageCount()
	}
	s.notifier.Publish(ownerID, event)
}
