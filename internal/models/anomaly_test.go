package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadingEventID_SameSampleSameID(t *testing.T) {
	ts := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	r := NewReading(KindHeartRate, 130, ts)
	r.DeviceID = "watch-1"

	// 手机和手表各自从读数主题收到同一条采样
	onPhone := NewAnomalyEvent(r, true)
	onWatch := NewAnomalyEvent(r, true)
	assert.Equal(t, onPhone.ID, onWatch.ID)

	other := r
	other.DeviceID = "watch-2"
	assert.NotEqual(t, onPhone.ID, ReadingEventID(other))

	later := r
	later.Timestamp = ts.Add(time.Second)
	assert.NotEqual(t, onPhone.ID, ReadingEventID(later))

	changed := r
	changed.Value = Float64(131)
	assert.NotEqual(t, onPhone.ID, ReadingEventID(changed))
}

func TestReadingEventID_NoTimestamp(t *testing.T) {
	r := Reading{Kind: KindFall, Fall: true}
	assert.NotEqual(t, ReadingEventID(r), ReadingEventID(r))
}
