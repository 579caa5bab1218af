package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"lifesignal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func startCoordinator(t *testing.T, listeners ...func(Transition)) (*Coordinator, *fakeClock) {
	clock := &fakeClock{now: t0}
	c := NewCoordinator(Options{
		Countdown: DefaultCountdown,
		Tick:      2 * time.Millisecond,
		Now:       clock.Now,
	}, zap.NewNop(), listeners...)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return c, clock
}

func waitDecision(t *testing.T, c *Coordinator) models.EscalationDecision {
	t.Helper()
	select {
	case d := <-c.Decisions():
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for escalation decision")
	}
	return models.EscalationDecision{}
}

func assertNoDecision(t *testing.T, c *Coordinator) {
	t.Helper()
	select {
	case d := <-c.Decisions():
		t.Fatalf("unexpected decision: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinator_CountdownEscalatesOnce(t *testing.T) {
	c, clock := startCoordinator(t)
	ctx := context.Background()

	event := abnormalHR(130)
	require.NoError(t, c.Observe(ctx, event))

	state, err := c.State(ctx, models.KindHeartRate)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCountingDown, state.Phase)
	assert.Equal(t, 30*time.Second, state.Remaining)

	// 重复投递同一事件
	require.NoError(t, c.Observe(ctx, event))
	clock.Advance(30 * time.Second)

	d := waitDecision(t, c)
	assert.Equal(t, event.ID, d.EpisodeID)
	assertNoDecision(t, c)

	require.NoError(t, c.Complete(ctx, d.Kind, d.EpisodeID))
	state, err = c.State(ctx, models.KindHeartRate)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, state.Phase)
}

func TestCoordinator_NormalReadingCancels(t *testing.T) {
	c, clock := startCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Observe(ctx, abnormalHR(130)))
	clock.Advance(10 * time.Second)
	require.NoError(t, c.Observe(ctx, abnormalHR(90)))
	clock.Advance(time.Minute)

	assertNoDecision(t, c)
}

func TestCoordinator_ManualSOSRacesTimer(t *testing.T) {
	c, clock := startCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Observe(ctx, abnormalHR(130)))
	clock.Advance(29 * time.Second)

	triggered, err := c.TriggerSOS(ctx, "")
	require.NoError(t, err)
	assert.True(t, triggered)
	clock.Advance(10 * time.Second)

	d := waitDecision(t, c)
	assert.Equal(t, models.KindManual, d.Kind)
	assertNoDecision(t, c)
}

func TestCoordinator_UserCancelNotifiesListeners(t *testing.T) {
	var mu sync.Mutex
	var seen []Transition
	c, clock := startCoordinator(t, func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr)
	})
	ctx := context.Background()

	require.NoError(t, c.Observe(ctx, spo2(92.0)))
	cancelled, err := c.Cancel(ctx, models.KindBloodOxygen)
	require.NoError(t, err)
	assert.True(t, cancelled)
	clock.Advance(time.Minute)
	assertNoDecision(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, models.PhaseCancelled, seen[1].To)
	assert.Equal(t, models.PhaseIdle, seen[2].To)
}

func TestCoordinator_FallDispatchesImmediately(t *testing.T) {
	c, _ := startCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Observe(ctx, fall(nil)))
	d := waitDecision(t, c)
	assert.Equal(t, models.SourceFall, d.Source)
	assert.Equal(t, t0, d.EscalatedAt)
}

func TestCoordinator_StoppedReturnsError(t *testing.T) {
	c := NewCoordinator(Options{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))

	err := c.Observe(context.Background(), abnormalHR(130))
	assert.ErrorIs(t, err, ErrStopped)
}
