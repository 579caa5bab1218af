package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lifesignal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnalyze_Success(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze_health_data", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"timestamp":"2026-03-08T10:00:00","is_anomaly":true,"risk_score":0.87,"recommendations":["Contact your doctor"]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/api", time.Second, 0, zap.NewNop())
	result, err := client.Analyze(context.Background(), models.Vitals{
		HeartRate:   models.Float64(130),
		BloodOxygen: models.Float64(97),
	})
	require.NoError(t, err)
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, 0.87, result.RiskScore)
	assert.Equal(t, []string{"Contact your doctor"}, result.Recommendations)

	require.NotNil(t, got.HeartRate)
	assert.Equal(t, 130.0, *got.HeartRate)
	require.NotNil(t, got.BloodOxygen)
	assert.Equal(t, 97.0, *got.BloodOxygen)
}

func TestAnalyze_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, 0, zap.NewNop())
	_, err := client.Analyze(context.Background(), models.Vitals{HeartRate: models.Float64(130)})
	assert.Error(t, err)
}

func TestAnalyze_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, 20*time.Millisecond, 0, zap.NewNop())
	_, err := client.Analyze(context.Background(), models.Vitals{HeartRate: models.Float64(130)})
	assert.Error(t, err)
}

func TestAnalyze_NoVitals(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, 0, zap.NewNop())
	_, err := client.Analyze(context.Background(), models.Vitals{})
	assert.Error(t, err)
}
