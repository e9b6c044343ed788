package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisWatchAttempts = 3

// RedisStore keeps records as JSON values whose Redis TTL matches the record expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a store on client. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

type redisRecord struct {
	Key             string              `json:"key"`
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte              `json:"responseBody,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := s.redisKey(key)
	record := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	payload, err := encodeRecord(record)
	if err != nil {
		return Reservation{}, err
	}

	for attempt := 0; attempt < redisWatchAttempts; attempt++ {
		created, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: redis reserve: %w", err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}
		existing, err := s.load(ctx, s.client, redisKey)
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return Reservation{}, err
		}
		return classify(existing, fingerprint)
	}
	return Reservation{}, fmt.Errorf("idempotency: redis reserve for %s did not settle", key)
}

func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := s.redisKey(key)
	return s.watch(ctx, redisKey, func(tx *redis.Tx) error {
		record, err := s.load(ctx, tx, redisKey)
		switch {
		case errors.Is(err, redis.Nil):
			record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		case err != nil:
			return err
		case record.Fingerprint != fingerprint:
			return ErrFingerprintMismatch
		}
		payload, err := encodeRecord(completeRecord(record, resp, now, ttl))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, ttl)
			return nil
		})
		return err
	})
}

func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	redisKey := s.redisKey(key)
	return s.watch(ctx, redisKey, func(tx *redis.Tx) error {
		record, err := s.load(ctx, tx, redisKey)
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.Fingerprint != fingerprint {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		return err
	})
}

// CleanupExpired is a no-op: Redis expires keys on its own.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + storageKey(key)
}

func (s *RedisStore) watch(ctx context.Context, redisKey string, fn func(tx *redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < redisWatchAttempts; attempt++ {
		err = s.client.Watch(ctx, fn, redisKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil && !errors.Is(err, ErrFingerprintMismatch) {
		return fmt.Errorf("idempotency: redis update: %w", err)
	}
	return err
}

func (s *RedisStore) load(ctx context.Context, client redis.Cmdable, redisKey string) (Record, error) {
	data, err := client.Get(ctx, redisKey).Bytes()
	if err != nil {
		return Record{}, err
	}
	var stored redisRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return Record(stored), nil
}

func encodeRecord(record Record) (string, error) {
	data, err := json.Marshal(redisRecord(record))
	if err != nil {
		return "", fmt.Errorf("idempotency: encode record: %w", err)
	}
	return string(data), nil
}
