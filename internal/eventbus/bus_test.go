package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"lifesignal/internal/models"
	"lifesignal/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collector struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 100)}
}

func (c *collector) handle(_ context.Context, e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func hrEvent(id string) models.AnomalyEvent {
	return models.AnomalyEvent{ID: id, Kind: models.KindHeartRate, Value: models.Float64(130), IsAbnormal: true}
}

func TestLocalBus_FiltersByName(t *testing.T) {
	bus := NewLocalBus(8, zap.NewNop())
	defer bus.Close()

	all := newCollector()
	emergencies := newCollector()
	bus.Subscribe(all.handle)
	bus.Subscribe(emergencies.handle, EmergencyTriggered)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewAnomalyDetected("a", hrEvent("e1"))))
	require.NoError(t, bus.Publish(ctx, NewEmergencyTriggered("a", models.EscalationDecision{EpisodeID: "e1", Kind: models.KindHeartRate})))

	assert.Len(t, all.wait(t, 2), 2)
	got := emergencies.wait(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, EmergencyTriggered, got[0].Name)
	assert.Equal(t, "e1", got[0].Decision.EpisodeID)
}

func TestLocalBus_DeduplicatesByID(t *testing.T) {
	bus := NewLocalBus(8, zap.NewNop())
	defer bus.Close()

	c := newCollector()
	bus.Subscribe(c.handle)

	ctx := context.Background()
	event := NewAnomalyDetected("a", hrEvent("e1"))
	require.NoError(t, bus.Publish(ctx, event))
	require.NoError(t, bus.Publish(ctx, event))
	require.NoError(t, bus.Publish(ctx, NewAnomalyDetected("b", hrEvent("e1"))))

	c.wait(t, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestLocalBus_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	bus := NewLocalBus(1, zap.NewNop())

	release := make(chan struct{})
	bus.Subscribe(func(context.Context, Event) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range []string{"e1", "e2", "e3", "e4"} {
			_ = bus.Publish(context.Background(), NewAnomalyDetected("a", hrEvent(id)))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
	bus.Close()
}

func TestLocalBus_Closed(t *testing.T) {
	bus := NewLocalBus(1, zap.NewNop())
	bus.Close()
	bus.Close()

	err := bus.Publish(context.Background(), NewAnomalyDetected("a", hrEvent("e1")))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLocalBus_Unsubscribe(t *testing.T) {
	bus := NewLocalBus(8, zap.NewNop())
	defer bus.Close()

	c := newCollector()
	unsubscribe := bus.Subscribe(c.handle)
	require.NoError(t, bus.Publish(context.Background(), NewAnomalyDetected("a", hrEvent("e1"))))
	c.wait(t, 1)

	unsubscribe()
	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), NewAnomalyDetected("a", hrEvent("e2"))))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

// memoryBroker 同步的内存 MQTT broker
type memoryBroker struct {
	mu       sync.Mutex
	handlers map[string][]transport.MessageHandler
}

func newMemoryBroker() *memoryBroker {
	return &memoryBroker{handlers: make(map[string][]transport.MessageHandler)}
}

type brokerClient struct {
	broker *memoryBroker
}

func (c brokerClient) Publish(topic string, _ byte, _ bool, payload []byte) error {
	c.broker.mu.Lock()
	handlers := append([]transport.MessageHandler(nil), c.broker.handlers[topic]...)
	c.broker.mu.Unlock()
	for _, h := range handlers {
		_ = h(topic, payload)
	}
	return nil
}

func (c brokerClient) Subscribe(topic string, _ byte, handler transport.MessageHandler) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.handlers[topic] = append(c.broker.handlers[topic], handler)
	return nil
}

func (c brokerClient) Unsubscribe(...string) error { return nil }

func TestMQTTBridge_ConnectsTwoDevices(t *testing.T) {
	broker := newMemoryBroker()
	const topic = "lifesignal/u-1/events"

	phoneBus := NewLocalBus(8, zap.NewNop())
	watchBus := NewLocalBus(8, zap.NewNop())
	defer phoneBus.Close()
	defer watchBus.Close()

	phone := NewMQTTBridge(phoneBus, brokerClient{broker}, topic, "phone", 1, zap.NewNop())
	watch := NewMQTTBridge(watchBus, brokerClient{broker}, topic, "watch", 1, zap.NewNop())
	require.NoError(t, phone.Start())
	require.NoError(t, watch.Start())
	defer phone.Stop()
	defer watch.Stop()

	onPhone := newCollector()
	phoneBus.Subscribe(onPhone.handle, EmergencyTriggered)
	onWatch := newCollector()
	watchBus.Subscribe(onWatch.handle, EmergencyTriggered)

	decision := models.EscalationDecision{EpisodeID: "ep-1", Kind: models.KindFall, Source: models.SourceFall}
	require.NoError(t, watchBus.Publish(context.Background(), NewEmergencyTriggered("watch", decision)))

	got := onPhone.wait(t, 1)
	assert.Equal(t, "watch", got[0].Origin)
	assert.Equal(t, "ep-1", got[0].Decision.EpisodeID)

	// 本地订阅者收到一次，不会被回声重复投递
	onWatch.wait(t, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, onWatch.count())
	assert.Equal(t, 1, onPhone.count())
}

func TestMQTTBridge_IgnoresOwnOriginAndGarbage(t *testing.T) {
	bus := NewLocalBus(8, zap.NewNop())
	defer bus.Close()
	bridge := NewMQTTBridge(bus, brokerClient{newMemoryBroker()}, "t", "phone", 1, zap.NewNop())

	c := newCollector()
	bus.Subscribe(c.handle)

	assert.Error(t, bridge.handleInbound("t", []byte("{garbage")))
	require.NoError(t, bridge.handleInbound("t", []byte(`{"id":"x","name":"anomalyDetected","origin":"phone"}`)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, c.count())
}
