package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HsiangNianian/gamehub/internal/protocol"
)

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore accepts a host:port address or a redis:// URL.
func NewRedisStore(addr string) (*RedisStore, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url failed: %w", err)
		}
		opts = parsed
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Favorites(ctx context.Context, userID string) ([]string, error) {
	favs, err := r.client.ZRange(ctx, "fav:"+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if favs == nil {
		favs = []string{}
	}
	return favs, nil
}

func (r *RedisStore) IsFavorite(ctx context.Context, userID, gameID string) (bool, error) {
	_, err := r.client.ZScore(ctx, "fav:"+userID, gameID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisStore) ToggleFavorite(ctx context.Context, userID, gameID string) (bool, error) {
	if userID == "" || gameID == "" {
		return false, ErrMissingID
	}
	key := "fav:" + userID
	added, err := r.client.ZAddNX(ctx, key, redis.Z{Score: float64(time.Now().UnixNano()), Member: gameID}).Result()
	if err != nil {
		return false, err
	}
	if added == 1 {
		return true, nil
	}
	if err := r.client.ZRem(ctx, key, gameID).Err(); err != nil {
		return false, err
	}
	return false, nil
}

func (r *RedisStore) Rating(ctx context.Context, userID, gameID string) (int, error) {
	n, err := r.client.HGet(ctx, "rating:"+userID, gameID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *RedisStore) Ratings(ctx context.Context, userID string) (map[string]int, error) {
	raw, err := r.client.HGetAll(ctx, "rating:"+userID).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(raw))
	for gameID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[gameID] = n
	}
	return out, nil
}

func (r *RedisStore) SetRating(ctx context.Context, userID, gameID string, rating int) error {
	if userID == "" || gameID == "" {
		return ErrMissingID
	}
	if !validRating(rating) {
		return ErrInvalidRating
	}
	return r.client.HSet(ctx, "rating:"+userID, gameID, rating).Err()
}

// addAchievement appends the achievement and marks its id seen in one
// step. The id is only marked after the push succeeds.
var addAchievement = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
  return 0
end
redis.call("RPUSH", KEYS[2], ARGV[2])
redis.call("HSET", KEYS[1], ARGV[1], 1)
return 1
`)

func (r *RedisStore) AddAchievement(ctx context.Context, userID, gameID string, a protocol.GameAchievement) (bool, error) {
	if userID == "" || gameID == "" {
		return false, ErrMissingID
	}
	data, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	key := gameKey(userID, gameID)
	added, err := addAchievement.Run(ctx, r.client, []string{"achid:" + key, "ach:" + key}, a.ID, data).Int()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (r *RedisStore) Achievements(ctx context.Context, userID, gameID string) ([]protocol.GameAchievement, error) {
	raw, err := r.client.LRange(ctx, "ach:"+gameKey(userID, gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.GameAchievement, 0, len(raw))
	for _, item := range raw {
		var a protocol.GameAchievement
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, fmt.Errorf("decode achievement failed: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *RedisStore) SetProgress(ctx context.Context, userID, gameID string, snapshot json.RawMessage) error {
	if userID == "" || gameID == "" {
		return ErrMissingID
	}
	return r.client.Set(ctx, "progress:"+gameKey(userID, gameID), []byte(snapshot), 0).Err()
}

func (r *RedisStore) Progress(ctx context.Context, userID, gameID string) (json.RawMessage, error) {
	data, err := r.client.Get(ctx, "progress:"+gameKey(userID, gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (r *RedisStore) SetUserInfo(ctx context.Context, info protocol.UserInfo) error {
	if info.ID == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, "user:"+info.ID, data, 0).Err()
}

func (r *RedisStore) UserInfo(ctx context.Context, userID string) (*protocol.UserInfo, error) {
	data, err := r.client.Get(ctx, "user:"+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info protocol.UserInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode user info failed: %w", err)
	}
	return &info, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
