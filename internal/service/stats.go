package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

// recentActivityLimit is how many sessions the stats rollup summarizes.
const recentActivityLimit = 5

// GetStats rolls up the owner's active sessions.
func (s *Service) GetStats(ctx context.Context, ownerID string) (*domain.Stats, error) {
	var (
		totalSessions int
		totalTurns    int
		recent        []domain.Session
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totalSessions, totalTurns, err = s.store.CountActive(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, _, err = s.store.FindSessions(gctx, ownerID, 1, recentActivityLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &domain.Stats{
		TotalSessions:  totalSessions,
		TotalMessages:  totalTurns,
		RecentActivity: make([]domain.ActivitySummary, 0, len(recent)),
	}
	for _, session := range recent {
		stats.RecentActivity = append(stats.RecentActivity, domain.ActivitySummary{
			SessionID:    session.SessionID,
			Title:        session.Title,
			UpdatedAt:    session.UpdatedAt,
			MessageCount: session.MessageCount(),
		})
	}
	return stats, nil
}
