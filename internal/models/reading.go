package models

import (
	"fmt"
	"time"
)

// Kind 读数/异常类型
type Kind string

const (
	KindHeartRate   Kind = "heart_rate"   // 心率（BPM）
	KindBloodOxygen Kind = "blood_oxygen" // 血氧（%）
	KindFall        Kind = "fall"         // 跌倒事件（布尔）
	KindManual      Kind = "manual_sos"   // 手动 SOS（只作为升级触发源，不来自传感器）
)

// SensorKinds 传感器产生的读数类型
var SensorKinds = []Kind{KindHeartRate, KindBloodOxygen, KindFall}

// Valid 是否为传感器读数类型
func (k Kind) Valid() bool {
	switch k {
	case KindHeartRate, KindBloodOxygen, KindFall:
		return true
	}
	return false
}

// ParseKind 解析类型字符串
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if k.Valid() || k == KindManual {
		return k, nil
	}
	return "", fmt.Errorf("unknown kind: %q", s)
}

// Location 位置（纬度、经度）
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MapsURL 地图链接
func (l Location) MapsURL() string {
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", l.Latitude, l.Longitude)
}

// Reading 单次采样读数（不可变）
// Fall 类型使用 Fall 字段，HeartRate/BloodOxygen 使用 Value 字段
type Reading struct {
	Kind      Kind      `json:"kind"`
	Value     *float64  `json:"value,omitempty"`     // 心率/血氧数值，可能缺失
	Fall      bool      `json:"fall,omitempty"`      // 跌倒标志
	Location  *Location `json:"location,omitempty"`  // 可选位置
	DeviceID  string    `json:"device_id,omitempty"` // 采样设备
	Timestamp time.Time `json:"timestamp"`
}

// NewReading 创建数值型读数
func NewReading(kind Kind, value float64, ts time.Time) Reading {
	return Reading{Kind: kind, Value: Float64(value), Timestamp: ts}
}

// NewFallReading 创建跌倒读数
func NewFallReading(fall bool, loc *Location, ts time.Time) Reading {
	return Reading{Kind: KindFall, Fall: fall, Location: loc, Timestamp: ts}
}

// Float64 返回指针
func Float64(v float64) *float64 {
	return &v
}
