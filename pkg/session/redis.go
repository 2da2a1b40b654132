package session

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// RedisStore keeps sessions as JSON blobs under session:<id> keys with
// a rolling TTL. Compare-and-update runs as an optimistic WATCH
// transaction, so a concurrent write aborts the exec and surfaces
// as ErrConflict.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

func NewRedisStore(client *redis.Client, ttl, opTimeout time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, opTimeout: opTimeout}
}

func key(id string) string { return "session:" + id }

func (s *RedisStore) Mode() string { return "redis" }

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sess.CreatedAt = now()
	sess.UpdatedAt = sess.CreatedAt
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, key(sess.Id), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, expected int64, mutate func(*Session)) (*Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var updated *Session
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key(id)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}
		if sess.Version != expected {
			return ErrConflict
		}
		mutate(&sess)
		sess.Version++
		sess.UpdatedAt = now()
		blob, err := json.Marshal(&sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), blob, s.ttl)
			return nil
		})
		if err == nil {
			updated = &sess
		}
		return err
	}, key(id))
	if err == redis.TxFailedErr {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Del(ctx, key(id)).Err()
}

func (s *RedisStore) Refresh(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	ok, err := s.client.Expire(ctx, key(id), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}
