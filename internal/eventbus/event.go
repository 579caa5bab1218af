package eventbus

import (
	"time"

	"lifesignal/internal/models"
)

// Name 跨设备事件名称
type Name string

const (
	AnomalyDetected     Name = "anomalyDetected"
	FallDetected        Name = "fallDetected"
	EmergencyTriggered  Name = "emergencyTriggered"
	EscalationCancelled Name = "escalationCancelled"
)

// Event 总线事件
// ID 由载荷确定，同一异常/回合在各设备上得到相同 ID，接收方据此去重
type Event struct {
	ID        string    `json:"id"`
	Name      Name      `json:"name"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`

	Anomaly  *models.AnomalyEvent       `json:"anomaly,omitempty"`  // anomalyDetected / fallDetected
	Location *models.Location           `json:"location,omitempty"` // fallDetected
	Decision *models.EscalationDecision `json:"decision,omitempty"` // emergencyTriggered

	// escalationCancelled
	Kind      models.Kind `json:"kind,omitempty"`
	EpisodeID string      `json:"episode_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// NewAnomalyDetected 数值型异常事件；跌倒使用 NewFallDetected
func NewAnomalyDetected(origin string, e models.AnomalyEvent) Event {
	return Event{
		ID:        string(AnomalyDetected) + ":" + e.ID,
		Name:      AnomalyDetected,
		Origin:    origin,
		Timestamp: e.Timestamp,
		Anomaly:   &e,
	}
}

// NewFallDetected 跌倒事件
func NewFallDetected(origin string, e models.AnomalyEvent) Event {
	return Event{
		ID:        string(FallDetected) + ":" + e.ID,
		Name:      FallDetected,
		Origin:    origin,
		Timestamp: e.Timestamp,
		Anomaly:   &e,
		Location:  e.Location,
	}
}

// NewEmergencyTriggered 升级决定
func NewEmergencyTriggered(origin string, d models.EscalationDecision) Event {
	return Event{
		ID:        string(EmergencyTriggered) + ":" + d.EpisodeID,
		Name:      EmergencyTriggered,
		Origin:    origin,
		Timestamp: d.EscalatedAt,
		Decision:  &d,
	}
}

// NewEscalationCancelled 倒计时被取消（恢复正常或用户取消）
func NewEscalationCancelled(origin string, kind models.Kind, episodeID, reason string, at time.Time) Event {
	return Event{
		ID:        string(EscalationCancelled) + ":" + episodeID,
		Name:      EscalationCancelled,
		Origin:    origin,
		Timestamp: at,
		Kind:      kind,
		EpisodeID: episodeID,
		Reason:    reason,
	}
}
