package service

import (
	"context"

	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/stats"
)

// Stats recomputes the dashboard snapshot from the store on every call,
// restricted to what actor can see.
func (s *RequestService) Stats(ctx context.Context, actor models.Actor) (stats.Snapshot, error) {
	scope, err := s.scope(ctx, actor)
	if err != nil {
		return stats.Snapshot{}, err
	}
	items, _, err := s.Repo.ListRequests(ctx, db.RequestFilter{Scope: scope})
	if err != nil {
		return stats.Snapshot{}, storeError(err, "requests")
	}
	if actor.Role == models.RoleClient {
		for i := range items {
			items[i] = redactForActor(actor, items[i])
		}
	}
	return stats.Compute(items, s.Clock.now()), nil
}
