package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"lifesignal/internal/models"
	"lifesignal/internal/transport"
)

// SMSRequest 交给短信网关的请求
type SMSRequest struct {
	RecordID    string `json:"record_id"`
	EpisodeID   string `json:"episode_id"`
	To          string `json:"to"`
	ContactName string `json:"contact_name"`
	Body        string `json:"body"`
}

// MQTTSink 通过 MQTT 把短信请求发布给手机网关
type MQTTSink struct {
	publisher transport.Publisher
	topic     string
	qos       byte
}

// NewMQTTSink 创建 MQTT 短信 sink
func NewMQTTSink(publisher transport.Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{publisher: publisher, topic: topic, qos: qos}
}

// Deliver 只处理短信通道
func (s *MQTTSink) Deliver(_ context.Context, rec models.AlertRecord) error {
	if rec.Channel != models.ChannelSMS {
		return nil
	}

	payload, err := json.Marshal(SMSRequest{
		RecordID:    rec.ID,
		EpisodeID:   rec.EpisodeID,
		To:          rec.PhoneNumber,
		ContactName: rec.ContactName,
		Body:        rec.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms request: %w", err)
	}
	return s.publisher.Publish(s.topic, s.qos, false, payload)
}
