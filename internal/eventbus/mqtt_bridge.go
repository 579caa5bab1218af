package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"lifesignal/internal/transport"

	"go.uber.org/zap"
)

// MQTTBridge 通过 MQTT 把本地总线与对端设备连接
// 只转发本设备产生的事件；收到的对端事件重新发布到本地总线（本设备 origin 的回声被忽略）
type MQTTBridge struct {
	bus    *LocalBus
	client transport.PubSub
	topic  string
	origin string
	qos    byte
	logger *zap.Logger

	unsubscribe func()
}

// NewMQTTBridge 创建 MQTT 桥
func NewMQTTBridge(bus *LocalBus, client transport.PubSub, topic, origin string, qos byte, logger *zap.Logger) *MQTTBridge {
	return &MQTTBridge{
		bus:    bus,
		client: client,
		topic:  topic,
		origin: origin,
		qos:    qos,
		logger: logger,
	}
}

// Start 开始双向转发
func (m *MQTTBridge) Start() error {
	if err := m.client.Subscribe(m.topic, m.qos, m.handleInbound); err != nil {
		return fmt.Errorf("failed to subscribe event topic: %w", err)
	}
	m.unsubscribe = m.bus.Subscribe(m.forward)

	m.logger.Info("Event bus bridged over MQTT",
		zap.String("topic", m.topic),
		zap.String("origin", m.origin),
	)
	return nil
}

// Stop 停止转发
func (m *MQTTBridge) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if err := m.client.Unsubscribe(m.topic); err != nil {
		m.logger.Warn("Failed to unsubscribe event topic", zap.Error(err))
	}
}

func (m *MQTTBridge) forward(_ context.Context, e Event) {
	if e.Origin != m.origin {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		m.logger.Error("Failed to marshal bus event", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	if err := m.client.Publish(m.topic, m.qos, false, payload); err != nil {
		// 尽力投递，不重试
		m.logger.Warn("Failed to publish bus event",
			zap.String("event_id", e.ID),
			zap.String("name", string(e.Name)),
			zap.Error(err),
		)
	}
}

func (m *MQTTBridge) handleInbound(_ string, payload []byte) error {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("failed to unmarshal bus event: %w", err)
	}
	if e.Origin == m.origin {
		return nil
	}
	if err := m.bus.Publish(context.Background(), e); err != nil {
		return fmt.Errorf("failed to publish inbound event %s: %w", e.ID, err)
	}
	return nil
}
