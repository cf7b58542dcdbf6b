package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voto-alerts/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultStateKeyPrefix namespaces every key written by RedisStateStore.
const DefaultStateKeyPrefix = "voto-alerts:"

// RedisStateStore keeps run state in Redis so several hosts can share it.
// Keys never expire.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStateStore creates the store. An empty prefix means DefaultStateKeyPrefix.
func NewRedisStateStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStateStore {
	if prefix == "" {
		prefix = DefaultStateKeyPrefix
	}
	return &RedisStateStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisStateStore) key(name string) string {
	return s.prefix + name
}

// get returns ok=false for a missing key.
func (s *RedisStateStore) get(ctx context.Context, name string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %s: %w", s.key(name), err)
	}
	return val, true, nil
}

func (s *RedisStateStore) set(ctx context.Context, name string, value interface{}) error {
	if err := s.client.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", s.key(name), err)
	}
	return nil
}

func (s *RedisStateStore) LoadMailAlarms(ctx context.Context) (map[string]models.MailAlarmState, error) {
	alarms := make(map[string]models.MailAlarmState)
	val, ok, err := s.get(ctx, "mail_alarms")
	if err != nil || !ok {
		return alarms, err
	}
	if err := json.Unmarshal([]byte(val), &alarms); err != nil {
		return nil, fmt.Errorf("failed to decode mail alarms: %w", err)
	}
	return alarms, nil
}

func (s *RedisStateStore) SaveMailAlarms(ctx context.Context, alarms map[string]models.MailAlarmState) error {
	data, err := json.Marshal(alarms)
	if err != nil {
		return fmt.Errorf("failed to encode mail alarms: %w", err)
	}
	return s.set(ctx, "mail_alarms", data)
}

func (s *RedisStateStore) LoadSurfacingCursor(ctx context.Context) (time.Time, error) {
	val, ok, err := s.get(ctx, "surfacing_cursor")
	if err != nil || !ok {
		return time.Time{}, err
	}
	return parseCursor(val)
}

func (s *RedisStateStore) SaveSurfacingCursor(ctx context.Context, cursor time.Time) error {
	return s.set(ctx, "surfacing_cursor", cursor.Format(cursorTimeLayout))
}

func (s *RedisStateStore) LoadMailSentinel(ctx context.Context) (string, bool, error) {
	return s.get(ctx, "mail_sentinel")
}

func (s *RedisStateStore) SaveMailSentinel(ctx context.Context, subject string) error {
	return s.set(ctx, "mail_sentinel", subject)
}

func (s *RedisStateStore) LoadFailCount(ctx context.Context) (int, error) {
	count, err := s.client.Get(ctx, s.key("fail_count")).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get fail count: %w", err)
	}
	return count, nil
}

func (s *RedisStateStore) SaveFailCount(ctx context.Context, count int) error {
	return s.set(ctx, "fail_count", count)
}

// LoadRedials reads the ledger hash: original call id -> JSON record.
func (s *RedisStateStore) LoadRedials(ctx context.Context) (map[string]models.RedialRecord, error) {
	entries, err := s.client.HGetAll(ctx, s.key("redials")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redial ledger: %w", err)
	}
	ledger := make(map[string]models.RedialRecord, len(entries))
	for id, raw := range entries {
		var rec models.RedialRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("Skipping malformed redial record",
				zap.String("original_id", id),
				zap.Error(err),
			)
			continue
		}
		ledger[id] = rec
	}
	return ledger, nil
}

func (s *RedisStateStore) AppendRedial(ctx context.Context, record models.RedialRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode redial record: %w", err)
	}
	if err := s.client.HSet(ctx, s.key("redials"), record.OriginalID, data).Err(); err != nil {
		return fmt.Errorf("failed to write redial record: %w", err)
	}
	return nil
}
