package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"lifesignal/internal/models"
	"lifesignal/internal/transport"

	"go.uber.org/zap"
)

// MQTTConn MQTTSource 需要的连接能力
type MQTTConn interface {
	transport.Subscriber
	IsConnected() bool
}

// MQTTSource 从 MQTT 订阅读数
// 主题形如 {prefix}/{user_id}/readings/{device_id}，载荷为 JSON Reading
type MQTTSource struct {
	conn   MQTTConn
	topic  string
	qos    byte
	logger *zap.Logger

	mu         sync.Mutex
	readings   chan models.Reading
	subscribed bool
	closed     bool
}

// NewMQTTSource 创建 MQTT 读数来源
func NewMQTTSource(conn MQTTConn, topic string, qos byte, buffer int, logger *zap.Logger) *MQTTSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &MQTTSource{
		conn:     conn,
		topic:    topic,
		qos:      qos,
		logger:   logger,
		readings: make(chan models.Reading, buffer),
	}
}

// Authorize broker 已连接且订阅被接受即视为授权成功，可重复调用
func (s *MQTTSource) Authorize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.conn == nil || !s.conn.IsConnected() {
		return ErrNotAvailable
	}
	if s.subscribed {
		return nil
	}
	if err := s.conn.Subscribe(s.topic, s.qos, s.handleMessage); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorizationDenied, err)
	}
	s.subscribed = true
	return nil
}

// Readings 读数通道
func (s *MQTTSource) Readings() <-chan models.Reading {
	return s.readings
}

// Close 取消订阅并关闭通道
func (s *MQTTSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.subscribed {
		err = s.conn.Unsubscribe(s.topic)
	}
	close(s.readings)
	return err
}

func (s *MQTTSource) handleMessage(topic string, payload []byte) error {
	var r models.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("failed to unmarshal reading: %w", err)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unsupported reading kind %q", r.Kind)
	}
	if r.DeviceID == "" {
		r.DeviceID = deviceFromTopic(topic)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.readings <- r:
	default:
		s.logger.Warn("Readings buffer full, dropping reading",
			zap.String("kind", string(r.Kind)),
			zap.String("device_id", r.DeviceID),
		)
	}
	return nil
}

func deviceFromTopic(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return ""
}
