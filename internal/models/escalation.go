package models

import "time"

// Phase 升级状态阶段
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCountingDown Phase = "counting_down"
	PhaseEscalated    Phase = "escalated"
	PhaseCancelled    Phase = "cancelled"
)

// EscalationState 某一类型的升级状态快照
type EscalationState struct {
	Kind      Kind          `json:"kind"`
	Phase     Phase         `json:"phase"`
	EpisodeID string        `json:"episode_id,omitempty"` // 打开本回合的事件ID
	Remaining time.Duration `json:"remaining,omitempty"`  // 仅 CountingDown 有效
	StartedAt time.Time     `json:"started_at,omitempty"`
}

// DecisionSource 升级来源
type DecisionSource string

const (
	SourceCountdown DecisionSource = "countdown" // 倒计时结束
	SourceFall      DecisionSource = "fall"      // 跌倒立即升级
	SourceManual    DecisionSource = "manual"    // 手动 SOS
	SourcePeer      DecisionSource = "peer"      // 对端设备已升级
)

// EscalationDecision 升级决定（交给 AlertDispatcher）
type EscalationDecision struct {
	EpisodeID   string         `json:"episode_id"`
	Kind        Kind           `json:"kind"`
	Source      DecisionSource `json:"source"`
	Event       AnomalyEvent   `json:"event"`  // 触发事件
	Vitals      Vitals         `json:"vitals"` // 最近读数快照（触发值已覆盖）
	EscalatedAt time.Time      `json:"escalated_at"`
	Dispatched  bool           `json:"dispatched,omitempty"` // 产生决定的设备已下发给联系人
}
