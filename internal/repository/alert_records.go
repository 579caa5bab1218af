package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lifesignal/internal/models"

	"go.uber.org/zap"
)

// AlertRecordRepository 报警下发记录仓库（alert_records 表）
type AlertRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRecordRepository 创建报警下发记录仓库
func NewAlertRecordRepository(db *sql.DB, logger *zap.Logger) *AlertRecordRepository {
	return &AlertRecordRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlertRecord 写入一条下发记录（record_id 重复时忽略）
func (r *AlertRecordRepository) CreateAlertRecord(ctx context.Context, userID string, rec models.AlertRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record_id is required")
	}

	triggerData, err := json.Marshal(rec.TriggeringEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal triggering event: %w", err)
	}

	query := `
		INSERT INTO alert_records (
			record_id, user_id, episode_id, contact_id, contact_name,
			phone_number, channel, message, trigger_data, dispatched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (record_id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		userID,
		rec.EpisodeID,
		rec.ContactID,
		rec.ContactName,
		rec.PhoneNumber,
		string(rec.Channel),
		rec.Message,
		triggerData,
		rec.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert record: %w", err)
	}

	r.logger.Debug("Alert record created",
		zap.String("record_id", rec.ID),
		zap.String("episode_id", rec.EpisodeID),
		zap.String("contact_id", rec.ContactID),
	)
	return nil
}

// ListAlertRecords 查询某用户在 since 之后的下发记录（按时间倒序）
func (r *AlertRecordRepository) ListAlertRecords(ctx context.Context, userID string, since time.Time, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT record_id, episode_id, contact_id, contact_name,
		       phone_number, channel, message, trigger_data, dispatched_at
		FROM alert_records
		WHERE user_id = $1
		  AND dispatched_at >= $2
		ORDER BY dispatched_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert records: %w", err)
	}
	defer rows.Close()

	var records []models.AlertRecord
	for rows.Next() {
		var rec models.AlertRecord
		var channel string
		var triggerData []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.EpisodeID,
			&rec.ContactID,
			&rec.ContactName,
			&rec.PhoneNumber,
			&channel,
			&rec.Message,
			&triggerData,
			&rec.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert record: %w", err)
		}
		rec.Channel = models.Channel(channel)
		if len(triggerData) > 0 {
			if err := json.Unmarshal(triggerData, &rec.TriggeringEvent); err != nil {
				r.logger.Warn("Failed to unmarshal trigger_data",
					zap.String("record_id", rec.ID),
					zap.Error(err),
				)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert records: %w", err)
	}
	return records, nil
}
