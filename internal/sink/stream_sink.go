package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"lifesignal/internal/models"
	"lifesignal/internal/transport"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 报警流消息类型
const (
	StreamTypeAlert        = "alert"
	StreamTypeNotification = "notification"
)

// StreamSink 把报警记录和通知写入 Redis Streams，供下游网关消费
type StreamSink struct {
	redisClient redis.Cmdable
	stream      string
	userID      string
	logger      *zap.Logger
}

// NewStreamSink 创建 Redis Streams sink
func NewStreamSink(redisClient redis.Cmdable, stream, userID string, logger *zap.Logger) *StreamSink {
	return &StreamSink{
		redisClient: redisClient,
		stream:      stream,
		userID:      userID,
		logger:      logger,
	}
}

// Deliver 写入一条联系人报警
func (s *StreamSink) Deliver(ctx context.Context, rec models.AlertRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal alert record: %w", err)
	}

	id, err := transport.PublishToStream(ctx, s.redisClient, s.stream, map[string]interface{}{
		"type":       StreamTypeAlert,
		"user_id":    s.userID,
		"episode_id": rec.EpisodeID,
		"contact_id": rec.ContactID,
		"channel":    string(rec.Channel),
		"data":       data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert to stream %s: %w", s.stream, err)
	}

	s.logger.Debug("Alert published to stream",
		zap.String("stream", s.stream),
		zap.String("message_id", id),
		zap.String("record_id", rec.ID),
	)
	return nil
}

// Send 写入一条本机通知
func (s *StreamSink) Send(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = transport.PublishToStream(ctx, s.redisClient, s.stream, map[string]interface{}{
		"type":     StreamTypeNotification,
		"user_id":  s.userID,
		"category": n.Category,
		"data":     data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification to stream %s: %w", s.stream, err)
	}
	return nil
}
