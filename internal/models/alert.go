package models

import "time"

// Channel 报警通道
type Channel string

const (
	ChannelSMS          Channel = "sms"          // 发给紧急联系人的短信
	ChannelNotification Channel = "notification" // 本机系统通知
)

// AlertRecord 单条报警下发记录（交给外部 sink，core 不保留）
type AlertRecord struct {
	ID              string       `json:"id"`
	ContactID       string       `json:"contact_id"`
	ContactName     string       `json:"contact_name"`
	PhoneNumber     string       `json:"phone_number"`
	Channel         Channel      `json:"channel"`
	Message         string       `json:"message"`
	EpisodeID       string       `json:"episode_id"`
	TriggeringEvent AnomalyEvent `json:"triggering_event"`
	DispatchedAt    time.Time    `json:"dispatched_at"`
}

// Notification 系统通知（send(title, body, category, actionSet, payload)）
type Notification struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Category string         `json:"category"`
	Actions  []string       `json:"actions,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}
