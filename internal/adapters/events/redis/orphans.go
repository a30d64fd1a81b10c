package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agentdash.server/internal/core/domain"
)

const (
	orphanKey        = "agentdash:orphans"
	orphanMetaPrefix = "agentdash:orphans:meta:"
	orphanMetaTTL    = 24 * time.Hour
)

// OrphanTracker implements ports.OrphanTracker. Query tasks whose waiter
// timed out keep running on the pool; this ledger records them so operators
// can see where worker slots went. A task that eventually completes removes
// its own entry.
type OrphanTracker struct {
	client *redis.Client
}

func NewOrphanTracker(client *redis.Client) *OrphanTracker {
	return &OrphanTracker{client: client}
}

func (t *OrphanTracker) Add(ctx context.Context, task domain.OrphanTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal orphan entry: %w", err)
	}

	// Sorted set scored by orphan time, metadata alongside with a TTL so
	// entries for crashed tasks eventually age out.
	score := float64(task.OrphanedAt.Unix())
	if err := t.client.ZAdd(ctx, orphanKey, redis.Z{
		Score:  score,
		Member: task.TaskID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to record orphan: %w", err)
	}

	metaKey := orphanMetaPrefix + task.TaskID
	if err := t.client.Set(ctx, metaKey, data, orphanMetaTTL).Err(); err != nil {
		return fmt.Errorf("failed to store orphan metadata: %w", err)
	}
	return nil
}

func (t *OrphanTracker) Remove(ctx context.Context, taskID string) error {
	if err := t.client.ZRem(ctx, orphanKey, taskID).Err(); err != nil {
		return fmt.Errorf("failed to remove orphan: %w", err)
	}
	metaKey := orphanMetaPrefix + taskID
	if err := t.client.Del(ctx, metaKey).Err(); err != nil {
		return fmt.Errorf("failed to remove orphan metadata: %w", err)
	}
	return nil
}

// List returns orphan entries newest first. Entries whose metadata has
// expired are skipped.
func (t *OrphanTracker) List(ctx context.Context, offset, limit int64) ([]*domain.OrphanTask, error) {
	taskIDs, err := t.client.ZRevRange(ctx, orphanKey, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}

	tasks := make([]*domain.OrphanTask, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		data, err := t.client.Get(ctx, orphanMetaPrefix+taskID).Bytes()
		if err != nil {
			continue
		}
		var task domain.OrphanTask
		if err := json.Unmarshal(data, &task); err != nil {
			continue
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

func (t *OrphanTracker) Count(ctx context.Context) (int64, error) {
	count, err := t.client.ZCard(ctx, orphanKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count orphans: %w", err)
	}
	return count, nil
}
