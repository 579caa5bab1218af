package repository

import (
	"context"
	"database/sql"
	"fmt"

	"lifesignal/internal/models"

	"go.uber.org/zap"
)

// PostgresContactStore 在 PostgreSQL 中保存联系人
// 表结构：
//
//	emergency_contacts(user_id, contact_id, name, phone_number, relationship,
//	                   notification_preference, is_active, position)
//
// position 保存添加顺序
type PostgresContactStore struct {
	db     *sql.DB
	userID string
	logger *zap.Logger
}

// NewPostgresContactStore 创建 PostgreSQL 联系人存储
func NewPostgresContactStore(db *sql.DB, userID string, logger *zap.Logger) *PostgresContactStore {
	return &PostgresContactStore{
		db:     db,
		userID: userID,
		logger: logger,
	}
}

// Save 在一个事务内替换该用户的全部联系人
func (s *PostgresContactStore) Save(ctx context.Context, contacts []models.EmergencyContact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM emergency_contacts WHERE user_id = $1`, s.userID); err != nil {
		return fmt.Errorf("failed to clear contacts: %w", err)
	}

	query := `
		INSERT INTO emergency_contacts (
			user_id, contact_id, name, phone_number, relationship,
			notification_preference, is_active, position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, c := range contacts {
		_, err := tx.ExecContext(ctx, query,
			s.userID,
			c.ID,
			c.Name,
			c.PhoneNumber,
			c.Relationship,
			c.NotificationPreference.String(),
			c.IsActive,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert contact %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contacts: %w", err)
	}
	return nil
}

// Load 按添加顺序读取联系人
func (s *PostgresContactStore) Load(ctx context.Context) ([]models.EmergencyContact, error) {
	query := `
		SELECT contact_id, name, phone_number, relationship,
		       notification_preference, is_active
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, s.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.EmergencyContact
	for rows.Next() {
		var c models.EmergencyContact
		var relationship sql.NullString
		var preference string
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneNumber, &relationship, &preference, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.Relationship = relationship.String

		pref, err := models.ParsePreference(preference)
		if err != nil {
			// 无法确定偏好的联系人不参与下发
			s.logger.Error("Unknown notification preference, skipping contact",
				zap.String("contact_id", c.ID),
				zap.String("preference", preference),
			)
			continue
		}
		c.NotificationPreference = pref
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}
	return contacts, nil
}
