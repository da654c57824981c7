package refreshtokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "refresh:token:"
	userKeyPrefix  = "refresh:user:"

	// Keys outlive the token by this much so expired tokens stay visible to
	// the validator, which purges them itself.
	redisRetention = 24 * time.Hour
)

// RedisRepository keeps each token as a JSON value under refresh:token:<token>
// and indexes the tokens of a user in the sorted set refresh:user:<id>,
// scored by creation time.
type RedisRepository struct {
	client redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

type redisToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Expires   time.Time `json:"expires_at"`
	Origin    string    `json:"created_by_ip"`
	CreatedAt time.Time `json:"created_at"`
}

func tokenKey(token string) string { return tokenKeyPrefix + token }
func userKey(userID string) string { return userKeyPrefix + userID }

func (r *RedisRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	b, err := json.Marshal(redisToken(*token))
	if err != nil {
		return fmt.Errorf("encode refresh token: %w", err)
	}

	keepUntil := token.Expires.Add(redisRetention)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(token.Token), b, 0)
		pipe.ExpireAt(ctx, tokenKey(token.Token), keepUntil)
		pipe.ZAdd(ctx, userKey(token.UserID), redis.Z{Score: float64(token.CreatedAt.UnixNano()), Member: token.Token})
		pipe.ExpireAt(ctx, userKey(token.UserID), keepUntil)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	b, err := r.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var t redisToken
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	m := models.RefreshToken(t)
	return &m, nil
}

func (r *RedisRepository) FindLatestByUser(ctx context.Context, userID string) (*models.RefreshToken, error) {
	members, err := r.client.ZRevRange(ctx, userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	for _, member := range members {
		t, err := r.Find(ctx, member)
		if errors.Is(err, common.ErrorNotFound) {
			// evicted by redis, drop the dangling index entry
			r.client.ZRem(ctx, userKey(userID), member)
			continue
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, common.ErrorNotFound
}

func (r *RedisRepository) Delete(ctx context.Context, token string) (int64, error) {
	t, err := r.Find(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	// DEL decides the count: of two concurrent deletes only one sees 1.
	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, tokenKey(token))
		pipe.ZRem(ctx, userKey(t.UserID), token)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return del.Val(), nil
}

func (r *RedisRepository) DeleteExpiredByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, userID, func(t *models.RefreshToken) bool { return t.Expired(now) })
}

func (r *RedisRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.deleteWhere(ctx, userID, func(*models.RefreshToken) bool { return true })
}

// DeleteExpired walks every user index with SCAN, so it is meant for the
// periodic sweeper, not for request paths.
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	iter := r.client.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := r.DeleteExpiredByUser(ctx, iter.Val()[len(userKeyPrefix):], now)
		if err != nil {
			return total, err
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return total, fmt.Errorf("redis error: %w", err)
	}
	return total, nil
}

func (r *RedisRepository) deleteWhere(ctx context.Context, userID string, match func(*models.RefreshToken) bool) (int64, error) {
	members, err := r.client.ZRange(ctx, userKey(userID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	var deleted int64
	var stale []any
	var keys []string
	for _, member := range members {
		t, err := r.Find(ctx, member)
		if errors.Is(err, common.ErrorNotFound) {
			stale = append(stale, member)
			continue
		}
		if err != nil {
			return 0, err
		}
		if match(t) {
			stale = append(stale, member)
			keys = append(keys, tokenKey(member))
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.ZRem(ctx, userKey(userID), stale...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	deleted = int64(len(keys))
	return deleted, nil
}
