package models

import (
	"encoding/json"
	"fmt"
)

// NotificationPreference 联系人通知偏好
type NotificationPreference int

const (
	PreferenceAll NotificationPreference = iota
	PreferenceCriticalOnly
	PreferenceNone
)

var preferenceNames = map[NotificationPreference]string{
	PreferenceAll:          "All Alerts",
	PreferenceCriticalOnly: "Critical Only",
	PreferenceNone:         "None",
}

// String 持久化名称
func (p NotificationPreference) String() string {
	if name, ok := preferenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("NotificationPreference(%d)", int(p))
}

// ParsePreference 解析偏好名称（同时接受 all/critical/none 简写，便于命令行）
func ParsePreference(s string) (NotificationPreference, error) {
	switch s {
	case "All Alerts", "all":
		return PreferenceAll, nil
	case "Critical Only", "critical":
		return PreferenceCriticalOnly, nil
	case "None", "none":
		return PreferenceNone, nil
	}
	return PreferenceAll, fmt.Errorf("unknown notification preference: %q", s)
}

// MarshalJSON 编码为持久化名称
func (p NotificationPreference) MarshalJSON() ([]byte, error) {
	name, ok := preferenceNames[p]
	if !ok {
		return nil, fmt.Errorf("invalid notification preference: %d", int(p))
	}
	return json.Marshal(name)
}

// UnmarshalJSON 从持久化名称解码
func (p *NotificationPreference) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePreference(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// EmergencyContact 紧急联系人（id 唯一）
type EmergencyContact struct {
	ID                     string                 `json:"id"`
	Name                   string                 `json:"name"`
	PhoneNumber            string                 `json:"phoneNumber"`
	Relationship           string                 `json:"relationship"`
	NotificationPreference NotificationPreference `json:"notificationPreference"`
	IsActive               bool                   `json:"isActive"`
}
