package models

import "time"

// CommandType 设备命令类型
type CommandType string

const (
	CommandSOS       CommandType = "sos"        // 手动 SOS
	CommandCancel    CommandType = "cancel"     // 取消某类型倒计时
	CommandCancelAll CommandType = "cancel_all" // 取消全部倒计时
)

// Command 发给运行中设备的命令（MQTT commands 主题）
type Command struct {
	ID       string      `json:"id,omitempty"` // 命令ID，SOS 用作升级回合ID
	Type     CommandType `json:"type"`
	Kind     Kind        `json:"kind,omitempty"` // cancel 使用
	IssuedBy string      `json:"issued_by,omitempty"`
	IssuedAt time.Time   `json:"issued_at"`
}
