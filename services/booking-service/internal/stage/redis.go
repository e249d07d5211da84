package stage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	codePrefix = "stage:code:"
	regPrefix  = "stage:reg:"
)

type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) PutCode(ctx context.Context, codeID string) (string, error) {
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, codePrefix+token, codeID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Code(ctx context.Context, token string) (string, error) {
	v, err := s.rdb.Get(ctx, codePrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) ClearCode(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, codePrefix+token).Err()
}

func (s *RedisStore) PutRegistration(ctx context.Context, reg model.ExpandedRegistration) (string, error) {
	raw, err := json.Marshal(reg)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, regPrefix+token, raw, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) TakeRegistration(ctx context.Context, token string) (model.ExpandedRegistration, error) {
	raw, err := s.rdb.GetDel(ctx, regPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ExpandedRegistration{}, ErrNotFound
	}
	if err != nil {
		return model.ExpandedRegistration{}, err
	}
	var reg model.ExpandedRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return model.ExpandedRegistration{}, err
	}
	return reg, nil
}

func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
