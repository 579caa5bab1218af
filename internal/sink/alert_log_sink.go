package sink

import (
	"context"

	"lifesignal/internal/models"
)

// AlertRecordWriter 报警记录持久化
type AlertRecordWriter interface {
	CreateAlertRecord(ctx context.Context, userID string, rec models.AlertRecord) error
}

// AlertLogSink 把联系人报警写入 alert_records 表
type AlertLogSink struct {
	repo   AlertRecordWriter
	userID string
}

// NewAlertLogSink 创建审计 sink
func NewAlertLogSink(repo AlertRecordWriter, userID string) *AlertLogSink {
	return &AlertLogSink{repo: repo, userID: userID}
}

// Deliver 写入记录
func (s *AlertLogSink) Deliver(ctx context.Context, rec models.AlertRecord) error {
	return s.repo.CreateAlertRecord(ctx, s.userID, rec)
}
