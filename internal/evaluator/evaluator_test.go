package evaluator

import (
	"testing"
	"time"

	"lifesignal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_HeartRateBounds(t *testing.T) {
	e := NewEvaluator(DefaultPolicy)
	now := time.Now()

	cases := []struct {
		value    float64
		abnormal bool
	}{
		{-5, true}, // 越界输入按异常处理
		{0, true},
		{39.9, true},
		{40, false}, // 边界值正常
		{72, false},
		{120, false}, // 边界值正常
		{120.1, true},
		{130, true},
	}

	for _, c := range cases {
		event, err := e.Evaluate(models.NewReading(models.KindHeartRate, c.value, now))
		require.NoError(t, err)
		assert.Equal(t, c.abnormal, event.IsAbnormal, "heart rate %v", c.value)
		assert.Equal(t, models.KindHeartRate, event.Kind)
		assert.NotEmpty(t, event.ID)
	}
}

func TestEvaluate_BloodOxygenBounds(t *testing.T) {
	e := NewEvaluator(DefaultPolicy)
	now := time.Now()

	cases := []struct {
		value    float64
		abnormal bool
	}{
		{-1, true},
		{92.0, true},
		{94.99, true},
		{95.0, false}, // 边界值正常
		{100, false},
		{150, false}, // 无上限
	}

	for _, c := range cases {
		event, err := e.Evaluate(models.NewReading(models.KindBloodOxygen, c.value, now))
		require.NoError(t, err)
		assert.Equal(t, c.abnormal, event.IsAbnormal, "blood oxygen %v", c.value)
	}
}

func TestEvaluate_Fall(t *testing.T) {
	e := NewEvaluator(DefaultPolicy)
	loc := &models.Location{Latitude: 31.2, Longitude: 121.5}

	event, err := e.Evaluate(models.NewFallReading(true, loc, time.Now()))
	require.NoError(t, err)
	assert.True(t, event.IsAbnormal)
	assert.Equal(t, loc, event.Location)

	event, err = e.Evaluate(models.NewFallReading(false, nil, time.Now()))
	require.NoError(t, err)
	assert.False(t, event.IsAbnormal)
}

func TestEvaluate_MissingValueHasNoVerdict(t *testing.T) {
	e := NewEvaluator(DefaultPolicy)

	_, err := e.Evaluate(models.Reading{Kind: models.KindHeartRate, Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrNoVerdict)

	_, err = e.Evaluate(models.Reading{Kind: models.KindBloodOxygen, Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrNoVerdict)

	_, err = e.Evaluate(models.Reading{Kind: "temperature", Value: models.Float64(37)})
	assert.ErrorIs(t, err, ErrNoVerdict)
}

func TestEvaluate_DuplicateReadingsSameVerdict(t *testing.T) {
	e := NewEvaluator(DefaultPolicy)
	r := models.NewReading(models.KindHeartRate, 130, time.Now())

	first, err := e.Evaluate(r)
	require.NoError(t, err)
	second, err := e.Evaluate(r)
	require.NoError(t, err)

	assert.Equal(t, first.IsAbnormal, second.IsAbnormal)
	// 同一采样得到同一事件ID
	assert.Equal(t, first.ID, second.ID)
}

func TestPolicy_Critical(t *testing.T) {
	p := DefaultPolicy
	assert.False(t, p.Critical(models.Vitals{}))
	assert.False(t, p.Critical(models.Vitals{HeartRate: models.Float64(72), BloodOxygen: models.Float64(98)}))
	assert.True(t, p.Critical(models.Vitals{HeartRate: models.Float64(130)}))
	assert.True(t, p.Critical(models.Vitals{BloodOxygen: models.Float64(92)}))
	assert.True(t, p.Critical(models.Vitals{FallDetected: true}))
}
