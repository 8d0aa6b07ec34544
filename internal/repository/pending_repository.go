package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/exam-market-api/internal/models"
)

// PendingCountRepository tracks items whose cached registration count is
// stale, as one durable deduplicating Redis set per item type.
type PendingCountRepository struct {
	client *redis.Client
}

// NewPendingCountRepository constructs the repository.
func NewPendingCountRepository(client *redis.Client) *PendingCountRepository {
	return &PendingCountRepository{client: client}
}

func pendingSetKey(t models.ItemType) string {
	if t == models.ItemTypeCourse {
		return "course:updated_ids"
	}
	return "test:updated_ids"
}

// Add marks an item as touched. Re-adding before the next reconciliation is
// a no-op thanks to set semantics.
func (r *PendingCountRepository) Add(ctx context.Context, itemType models.ItemType, itemID string) error {
	key := pendingSetKey(itemType)
	if err := r.client.SAdd(ctx, key, itemID).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// Members returns every pending item ID for the type.
func (r *PendingCountRepository) Members(ctx context.Context, itemType models.ItemType) ([]string, error) {
	key := pendingSetKey(itemType)
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return ids, nil
}

// Clear drops the pending set after a reconciliation pass.
func (r *PendingCountRepository) Clear(ctx context.Context, itemType models.ItemType) error {
	key := pendingSetKey(itemType)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}
