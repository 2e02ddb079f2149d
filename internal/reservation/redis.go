package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// holdTTL bounds how long an abandoned checkout attempt keeps its hold.
const holdTTL = 30 * time.Minute

// RedisStore keeps holds in redis so they survive process restarts and are
// visible to every instance behind the load balancer.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisStore) Hold(ctx context.Context, userID string, items []Reservation) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode reservations: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), payload, holdTTL).Err(); err != nil {
		return fmt.Errorf("store reservation for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("release reservation for %s: %w", userID, err)
	}
	return nil
}

// Held returns the current hold for a user, or nil if none exists.
func (s *RedisStore) Held(ctx context.Context, userID string) ([]Reservation, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reservation for %s: %w", userID, err)
	}
	var items []Reservation
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode reservation for %s: %w", userID, err)
	}
	return items, nil
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf("checkout:reservation:%s", userID)
}
