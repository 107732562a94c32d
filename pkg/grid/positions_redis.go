package grid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/redis/go-redis/v9"
)

// positionData is the JSON form of a Position in redis.
type positionData struct {
	Room int `json:"room"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// RedisPositions keeps positions in redis so several server processes (or a
// restarted one within the TTL) see the same transient table.
type RedisPositions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPositions creates a redis-backed table. A zero ttl keeps keys forever.
func NewRedisPositions(client *redis.Client, ttl time.Duration) *RedisPositions {
	return &RedisPositions{client: client, ttl: ttl}
}

func positionKey(nav gamedb.DBRef) string {
	return fmt.Sprintf("gridpos:%d", nav)
}

func (r *RedisPositions) Get(ctx context.Context, nav gamedb.DBRef) (Position, bool, error) {
	raw, err := r.client.Get(ctx, positionKey(nav)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("failed to get position for #%d: %w", nav, err)
	}
	var data positionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Position{}, false, fmt.Errorf("failed to unmarshal position for #%d: %w", nav, err)
	}
	return Position{Room: gamedb.DBRef(data.Room), Coord: Coord{X: data.X, Y: data.Y}}, true, nil
}

func (r *RedisPositions) Set(ctx context.Context, nav gamedb.DBRef, pos Position) error {
	raw, err := json.Marshal(positionData{Room: int(pos.Room), X: pos.Coord.X, Y: pos.Coord.Y})
	if err != nil {
		return fmt.Errorf("failed to marshal position for #%d: %w", nav, err)
	}
	if err := r.client.Set(ctx, positionKey(nav), string(raw), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set position for #%d: %w", nav, err)
	}
	return nil
}

func (r *RedisPositions) Clear(ctx context.Context, nav gamedb.DBRef) error {
	if err := r.client.Del(ctx, positionKey(nav)).Err(); err != nil {
		return fmt.Errorf("failed to clear position for #%d: %w", nav, err)
	}
	return nil
}

var _ PositionTable = (*RedisPositions)(nil)
