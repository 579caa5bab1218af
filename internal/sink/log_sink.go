package sink

import (
	"context"

	"lifesignal/internal/models"

	"go.uber.org/zap"
)

// LogSink 把通知和报警记录写入日志
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志 sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send 记录本机通知
func (s *LogSink) Send(_ context.Context, n models.Notification) error {
	s.logger.Info("Notification",
		zap.String("category", n.Category),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Strings("actions", n.Actions),
	)
	return nil
}

// Deliver 记录联系人报警
func (s *LogSink) Deliver(_ context.Context, rec models.AlertRecord) error {
	s.logger.Warn("Emergency alert",
		zap.String("record_id", rec.ID),
		zap.String("episode_id", rec.EpisodeID),
		zap.String("contact_id", rec.ContactID),
		zap.String("contact_name", rec.ContactName),
		zap.String("channel", string(rec.Channel)),
		zap.String("message", rec.Message),
	)
	return nil
}
