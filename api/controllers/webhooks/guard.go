package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/atelierworks/atelier-backend/pkg/redis"
)

const defaultReplayTTL = 24 * time.Hour

// ReplayGuard marks processed webhook deliveries in Redis so retries become
// no-ops. Marks are released when handling fails so the gateway's retry can
// land.
type ReplayGuard struct {
	store redis.ReplayStore
	ttl   time.Duration
}

// NewReplayGuard builds a guard on the shared Redis client.
func NewReplayGuard(store redis.ReplayStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("replay store required")
	}
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark claims the event ID. It reports true when the event was
// already processed.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	claimed, err := g.store.SetNX(ctx, g.store.WebhookEventKey(eventID), "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete releases a claimed event ID.
func (g *ReplayGuard) Delete(ctx context.Context, eventID string) error {
	return g.store.Del(ctx, g.store.WebhookEventKey(eventID))
}
