package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnomalyEvent 阈值评估结果（每次评估新建，不持久化）
type AnomalyEvent struct {
	ID         string    `json:"id"`               // 事件ID，跨设备去重和升级回合标识
	Origin     string    `json:"origin,omitempty"` // 产生事件的设备ID
	Kind       Kind      `json:"kind"`
	Value      *float64  `json:"value,omitempty"`
	Location   *Location `json:"location,omitempty"`
	IsAbnormal bool      `json:"is_abnormal"`
	Timestamp  time.Time `json:"timestamp"`
}

// readingNamespace 读数事件ID命名空间（UUID v5）
var readingNamespace = uuid.MustParse("6f1c2a44-8d0e-5b7a-9c3e-2f4d6a8b0c1e")

// ReadingEventID 由读数内容生成事件ID
// 同一采样（类型、采样设备、采样时间、数值）在每台设备上得到同一个ID，配对设备因此落在同一回合；
// 没有采样时间的读数无法识别为同一采样，分配随机ID
func ReadingEventID(r Reading) string {
	if r.Timestamp.IsZero() {
		return uuid.New().String()
	}
	value := "-"
	if r.Value != nil {
		value = fmt.Sprintf("%g", *r.Value)
	}
	key := fmt.Sprintf("%s|%s|%d|%s|%t", r.Kind, r.DeviceID, r.Timestamp.UnixNano(), value, r.Fall)
	return uuid.NewSHA1(readingNamespace, []byte(key)).String()
}

// NewAnomalyEvent 创建异常事件
func NewAnomalyEvent(r Reading, abnormal bool) AnomalyEvent {
	return AnomalyEvent{
		ID:         ReadingEventID(r),
		Origin:     r.DeviceID,
		Kind:       r.Kind,
		Value:      r.Value,
		Location:   r.Location,
		IsAbnormal: abnormal,
		Timestamp:  r.Timestamp,
	}
}

// Vitals 最近一次已知生命体征快照（用于组装报警消息）
type Vitals struct {
	HeartRate    *float64  `json:"heart_rate,omitempty"`
	BloodOxygen  *float64  `json:"blood_oxygen,omitempty"`
	FallDetected bool      `json:"fall_detected,omitempty"`
	Location     *Location `json:"location,omitempty"`
}

// Apply 用事件值覆盖快照中的对应字段
func (v Vitals) Apply(e AnomalyEvent) Vitals {
	switch e.Kind {
	case KindHeartRate:
		if e.Value != nil {
			v.HeartRate = Float64(*e.Value)
		}
	case KindBloodOxygen:
		if e.Value != nil {
			v.BloodOxygen = Float64(*e.Value)
		}
	case KindFall:
		v.FallDetected = e.IsAbnormal
	}
	if e.Location != nil {
		loc := *e.Location
		v.Location = &loc
	}
	return v
}
