package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"lifesignal/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertRecordsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertRecordRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewAlertRecordRepository(db, zap.NewNop())
}

func TestCreateAlertRecord_Success(t *testing.T) {
	db, mock, repo := setupMockAlertRecordsDB(t)
	defer db.Close()

	rec := models.AlertRecord{
		ID:          uuid.New().String(),
		ContactID:   "1",
		ContactName: "Alice",
		PhoneNumber: "+15550001",
		Channel:     models.ChannelSMS,
		Message:     "EMERGENCY ALERT from LifeSignal",
		EpisodeID:   "ep-1",
		TriggeringEvent: models.AnomalyEvent{
			ID:         "ep-1",
			Kind:       models.KindHeartRate,
			Value:      models.Float64(130),
			IsAbnormal: true,
		},
		DispatchedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO alert_records`).
		WithArgs(rec.ID, "u-1", "ep-1", "1", "Alice", "+15550001", "sms",
			rec.Message, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateAlertRecord(context.Background(), "u-1", rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertRecord_RequiresID(t *testing.T) {
	db, mock, repo := setupMockAlertRecordsDB(t)
	defer db.Close()

	err := repo.CreateAlertRecord(context.Background(), "u-1", models.AlertRecord{})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlertRecords(t *testing.T) {
	db, mock, repo := setupMockAlertRecordsDB(t)
	defer db.Close()

	since := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	dispatchedAt := since.Add(10 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"record_id", "episode_id", "contact_id", "contact_name",
		"phone_number", "channel", "message", "trigger_data", "dispatched_at",
	}).AddRow(
		"r-1", "ep-1", "1", "Alice",
		"+15550001", "sms", "EMERGENCY ALERT", `{"id":"ep-1","kind":"heart_rate","value":130,"is_abnormal":true}`, dispatchedAt,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("u-1", since, 50).
		WillReturnRows(rows)

	records, err := repo.ListAlertRecords(context.Background(), "u-1", since, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ChannelSMS, records[0].Channel)
	assert.Equal(t, models.KindHeartRate, records[0].TriggeringEvent.Kind)
	require.NotNil(t, records[0].TriggeringEvent.Value)
	assert.Equal(t, 130.0, *records[0].TriggeringEvent.Value)
	assert.Equal(t, dispatchedAt, records[0].DispatchedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}
