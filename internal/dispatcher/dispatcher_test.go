package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifesignal/internal/analysis"
	"lifesignal/internal/evaluator"
	"lifesignal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu            sync.Mutex
	notifications []models.Notification
	records       []models.AlertRecord
	err           error
	release       chan struct{}
}

func (s *recordingSink) Send(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return s.err
}

func (s *recordingSink) Deliver(_ context.Context, rec models.AlertRecord) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *recordingSink) categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, n := range s.notifications {
		out = append(out, n.Category)
	}
	return out
}

type stubAnalyzer struct {
	result *analysis.Result
	err    error
}

func (a stubAnalyzer) Analyze(context.Context, models.Vitals) (*analysis.Result, error) {
	return a.result, a.err
}

func heartRateDecision(v float64) models.EscalationDecision {
	event := models.AnomalyEvent{
		ID:         "ep-hr",
		Kind:       models.KindHeartRate,
		Value:      models.Float64(v),
		IsAbnormal: true,
		Timestamp:  t0,
	}
	return models.EscalationDecision{
		EpisodeID:   event.ID,
		Kind:        event.Kind,
		Source:      models.SourceCountdown,
		Event:       event,
		Vitals:      models.Vitals{}.Apply(event),
		EscalatedAt: t0.Add(30 * time.Second),
	}
}

func testContacts() []models.EmergencyContact {
	return []models.EmergencyContact{
		{ID: "all", Name: "Alice", PhoneNumber: "+15550001", NotificationPreference: models.PreferenceAll, IsActive: true},
		{ID: "critical", Name: "Carol", PhoneNumber: "+15550002", NotificationPreference: models.PreferenceCriticalOnly, IsActive: true},
		{ID: "none", Name: "Nina", PhoneNumber: "+15550003", NotificationPreference: models.PreferenceNone, IsActive: true},
		{ID: "inactive", Name: "Ivan", PhoneNumber: "+15550004", NotificationPreference: models.PreferenceAll, IsActive: false},
	}
}

func contactIDs(records []models.AlertRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ContactID)
	}
	return ids
}

func TestDispatch_HeartRateReachesAllAndCriticalOnly(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(evaluator.DefaultPolicy, zap.NewNop(),
		WithNotificationSinks(sink),
		WithContactChannels(sink),
		WithClock(func() time.Time { return t0 }),
	)

	records := d.Dispatch(context.Background(), heartRateDecision(130), testContacts())
	d.Wait()

	assert.Equal(t, []string{"all", "critical"}, contactIDs(records))
	for _, rec := range records {
		assert.Contains(t, rec.Message, "130")
		assert.Contains(t, rec.Message, "BPM")
		assert.Equal(t, models.ChannelSMS, rec.Channel)
		assert.Equal(t, "ep-hr", rec.EpisodeID)
		assert.Equal(t, t0, rec.DispatchedAt)
		assert.NotEmpty(t, rec.ID)
	}

	assert.Len(t, sink.records, 2)
	assert.ElementsMatch(t,
		[]string{CategoryHeartRate, CategoryContactAlert, CategoryContactAlert},
		sink.categories(),
	)
}

func TestShouldNotify(t *testing.T) {
	d := NewDispatcher(evaluator.DefaultPolicy, zap.NewNop())
	critical := heartRateDecision(130)
	informational := models.EscalationDecision{
		Kind:   models.KindManual,
		Source: models.SourceManual,
		Vitals: models.Vitals{HeartRate: models.Float64(72), BloodOxygen: models.Float64(98)},
	}

	tests := []struct {
		name     string
		contact  models.EmergencyContact
		decision models.EscalationDecision
		want     bool
	}{
		{"all", models.EmergencyContact{NotificationPreference: models.PreferenceAll, IsActive: true}, informational, true},
		{"critical on breach", models.EmergencyContact{NotificationPreference: models.PreferenceCriticalOnly, IsActive: true}, critical, true},
		{"critical on normal vitals", models.EmergencyContact{NotificationPreference: models.PreferenceCriticalOnly, IsActive: true}, informational, false},
		{"none", models.EmergencyContact{NotificationPreference: models.PreferenceNone, IsActive: true}, critical, false},
		{"inactive", models.EmergencyContact{NotificationPreference: models.PreferenceAll, IsActive: false}, critical, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.ShouldNotify(tt.contact, tt.decision))
		})
	}
}

func TestDispatch_FallReachesCriticalOnly(t *testing.T) {
	d := NewDispatcher(evaluator.DefaultPolicy, zap.NewNop())
	loc := &models.Location{Latitude: 37.7749, Longitude: -122.4194}
	event := models.AnomalyEvent{ID: "ep-fall", Kind: models.KindFall, Location: loc, IsAbnormal: true, Timestamp: t0}
	decision := models.EscalationDecision{
		EpisodeID: event.ID,
		Kind:      models.KindFall,
		Source:    models.SourceFall,
		Event:     event,
		Vitals:    models.Vitals{HeartRate: models.Float64(80)}.Apply(event),
	}

	records := d.Dispatch(context.Background(), decision, testContacts())
	d.Wait()

	require.Len(t, records, 2)
	assert.Contains(t, records[0].Message, "Fall Detected!")
	assert.Contains(t, records[0].Message, "https://maps.google.com/?q=37.7749,-122.4194")
	assert.Contains(t, records[0].Message, "Heart Rate: 80 BPM")
}

func TestDispatch_SinkFailureStillReturnsRecords(t *testing.T) {
	notifier := &recordingSink{}
	failing := &recordingSink{err: errors.New("gateway down")}
	d := NewDispatcher(evaluator.DefaultPolicy, zap.NewNop(),
		WithNotificationSinks(notifier),
		WithContactChannels(failing),
	)

	records := d.Dispatch(context.Background(), heartRateDecision(130), testContacts())
	d.Wait()

	assert.Len(t, records, 2)
	assert.Len(t, failing.records, 2)
	// 没有任何通道成功，不发确认通知
	assert.Equal(t, []string{CategoryHeartRate}, notifier.categories())
}

func TestDispatch_DoesNotBlockOnChannels(t *testing.T) {
	slow := &recordingSink{release: make(chan struct{})}
	d := NewDispatcher(evaluator.DefaultPolicy, zap.NewNop(), WithContactChannels(slow))

	done := make(chan []models.AlertRecord, 1)
	go func() {
		done <- d.Dispatch(context.Background(), heartRateDecision(130), testContacts())
	}()

	select {
	case records := <-done:
		assert.Len(t, records, 2)
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow channel")
	}

	close(slow.release)
	d.Wait()
	assert.Len(t, slow.records, 2)
}

func TestDispatch_RiskAnalysis(t *testing.T) {
	t.Run("appended when available", func(t *testing.T) {
		d := NewDispatcher(evaluator.DefaultPolicy, zap.NewNop(),
			WithAnalyzer(stubAnalyzer{result: &analysis.Result{
				IsAnomaly:       true,
				RiskScore:       0.87,
				Recommendations: []string{"Sit down and rest"},
			}}, time.Second),
		)
		records := d.Dispatch(context.Background(), heartRateDecision(130), testContacts())
		require.NotEmpty(t, records)
		assert.Contains(t, records[0].Message, "Risk score: 0.87")
		assert.Contains(t, records[0].Message, "- Sit down and rest")
	})

	t.Run("failure does not block dispatch", func(t *testing.T) {
		d := NewDispatcher(evaluator.DefaultPolicy, zap.NewNop(),
			WithAnalyzer(stubAnalyzer{err: errors.New("timeout")}, time.Second),
		)
		records := d.Dispatch(context.Background(), heartRateDecision(130), testContacts())
		require.Len(t, records, 2)
		assert.NotContains(t, records[0].Message, "Risk score")
	})
}

func TestComposeMessage(t *testing.T) {
	msg := ComposeMessage(models.Vitals{
		HeartRate:    models.Float64(130.9),
		BloodOxygen:  models.Float64(92),
		FallDetected: true,
		Location:     &models.Location{Latitude: 1.5, Longitude: 2.25},
	}, nil)

	want := "EMERGENCY ALERT from LifeSignal\n\n" +
		"Heart Rate: 130 BPM\n" +
		"Blood Oxygen: 92.0%\n" +
		"Fall Detected!\n" +
		"\nLocation: https://maps.google.com/?q=1.5,2.25"
	assert.Equal(t, want, msg)

	assert.Equal(t, "EMERGENCY ALERT from LifeSignal\n\n", ComposeMessage(models.Vitals{}, nil))
}

func TestNotificationFor(t *testing.T) {
	hr := NotificationFor(heartRateDecision(130))
	assert.Equal(t, CategoryHeartRate, hr.Category)
	assert.Equal(t, "Heart rate is 130 BPM, which is outside the normal range.", hr.Body)
	assert.Equal(t, []string{ActionCheckDetails, ActionCallEmergency, ActionDismiss}, hr.Actions)

	spo2Event := models.AnomalyEvent{Kind: models.KindBloodOxygen, Value: models.Float64(92), IsAbnormal: true}
	spo2 := NotificationFor(models.EscalationDecision{Kind: models.KindBloodOxygen, Event: spo2Event})
	assert.Equal(t, CategoryBloodOxygen, spo2.Category)
	assert.Equal(t, "Blood oxygen is 92.0%, which is below the recommended level.", spo2.Body)

	fall := NotificationFor(models.EscalationDecision{
		Kind:   models.KindFall,
		Vitals: models.Vitals{FallDetected: true, Location: &models.Location{Latitude: 1, Longitude: 2}},
	})
	assert.Equal(t, CategoryFall, fall.Category)
	assert.Equal(t, "A fall was detected. Location data is available.", fall.Body)
	assert.Equal(t, []string{ActionCallEmergency, ActionDismiss}, fall.Actions)

	sos := NotificationFor(models.EscalationDecision{Kind: models.KindManual})
	assert.Equal(t, CategoryEmergency, sos.Category)
	assert.Equal(t, "Emergency Alert Triggered", sos.Title)

	confirm := ContactConfirmation(models.AlertRecord{ContactName: "Alice"})
	assert.Equal(t, "Emergency alert was sent to Alice", confirm.Body)
	assert.Empty(t, confirm.Actions)
}
