package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"lifesignal/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisContactStore 在 Redis 中以单个 JSON 值保存联系人
// 键：{prefix}{user_id}，如 lifesignal:contacts:u-1
type RedisContactStore struct {
	redisClient redis.Cmdable
	key         string
	logger      *zap.Logger
}

// NewRedisContactStore 创建 Redis 联系人存储
func NewRedisContactStore(redisClient redis.Cmdable, keyPrefix, userID string, logger *zap.Logger) *RedisContactStore {
	return &RedisContactStore{
		redisClient: redisClient,
		key:         keyPrefix + userID,
		logger:      logger,
	}
}

// Key 存储键
func (s *RedisContactStore) Key() string {
	return s.key
}

// Save 整体写入（无 TTL）
func (s *RedisContactStore) Save(ctx context.Context, contacts []models.EmergencyContact) error {
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	jsonData, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("failed to marshal contacts: %w", err)
	}

	if err := s.redisClient.Set(ctx, s.key, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to save contacts to redis: %w", err)
	}
	return nil
}

// Load 读取；键不存在返回空
func (s *RedisContactStore) Load(ctx context.Context) ([]models.EmergencyContact, error) {
	val, err := s.redisClient.Get(ctx, s.key).Result()
	if err != nil {
		if err == redis.Nil {
			s.logger.Debug("No contacts stored in redis", zap.String("key", s.key))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load contacts from redis: %w", err)
	}

	var contacts []models.EmergencyContact
	if err := json.Unmarshal([]byte(val), &contacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contacts: %w", err)
	}
	return contacts, nil
}
