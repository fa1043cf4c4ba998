package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"livehooks/internal/domain/event"
	"livehooks/internal/infrastructure/postgres"
)

// GetEvent reads a single admitted event for the admin API, with a
// redis read-through cache. Event rows are immutable, so a short TTL is
// only there to bound the cache, not to chase updates.
type GetEvent struct {
	redisClient *redis.Client
	eventRepo   *postgres.EventRepository
}

func NewGetEvent(redisClient *redis.Client, eventRepo *postgres.EventRepository) *GetEvent {
	return &GetEvent{
		redisClient: redisClient,
		eventRepo:   eventRepo,
	}
}

func (uc *GetEvent) Execute(ctx context.Context, eventID string) (*event.InboundEvent, error) {
	cacheKey := fmt.Sprintf("webhook_event:%s", eventID)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var e event.InboundEvent
			if err := json.Unmarshal([]byte(val), &e); err == nil {
				return &e, nil
			}
		}
	}

	e, err := uc.eventRepo.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	if uc.redisClient != nil {
		data, _ := json.Marshal(e)
		uc.redisClient.Set(ctx, cacheKey, data, 5*time.Minute)
	}

	return e, nil
}
