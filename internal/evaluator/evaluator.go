package evaluator

import (
	"errors"
	"fmt"

	"lifesignal/internal/models"
)

// ErrNoVerdict 读数缺少必需数值，无法给出正常/异常结论
var ErrNoVerdict = errors.New("no verdict")

// ThresholdPolicy 各类型阈值（进程级配置，启动后只读）
type ThresholdPolicy struct {
	MinHeartRate   float64 // 心率下限（含）
	MaxHeartRate   float64 // 心率上限（含）
	MinBloodOxygen float64 // 血氧下限（含），无上限
}

// DefaultPolicy 默认阈值：心率 [40,120] BPM，血氧 >= 95%
var DefaultPolicy = ThresholdPolicy{
	MinHeartRate:   40,
	MaxHeartRate:   120,
	MinBloodOxygen: 95,
}

// HeartRateAbnormal 心率是否越界
func (p ThresholdPolicy) HeartRateAbnormal(v float64) bool {
	return v < p.MinHeartRate || v > p.MaxHeartRate
}

// BloodOxygenAbnormal 血氧是否过低
func (p ThresholdPolicy) BloodOxygenAbnormal(v float64) bool {
	return v < p.MinBloodOxygen
}

// Critical 快照是否按阈值构成危急（心率/血氧越界或跌倒）
func (p ThresholdPolicy) Critical(v models.Vitals) bool {
	if v.HeartRate != nil && p.HeartRateAbnormal(*v.HeartRate) {
		return true
	}
	if v.BloodOxygen != nil && p.BloodOxygenAbnormal(*v.BloodOxygen) {
		return true
	}
	return v.FallDetected
}

// Evaluator 阈值评估器（无状态，可并发调用）
type Evaluator struct {
	policy ThresholdPolicy
}

// NewEvaluator 创建评估器
func NewEvaluator(policy ThresholdPolicy) *Evaluator {
	return &Evaluator{policy: policy}
}

// Evaluate 评估单条读数
// 负数等越界值按同一边界判断（偏向多报警），数值缺失返回 ErrNoVerdict
func (e *Evaluator) Evaluate(r models.Reading) (models.AnomalyEvent, error) {
	switch r.Kind {
	case models.KindHeartRate:
		if r.Value == nil {
			return models.AnomalyEvent{}, fmt.Errorf("heart rate reading without value: %w", ErrNoVerdict)
		}
		return models.NewAnomalyEvent(r, e.policy.HeartRateAbnormal(*r.Value)), nil
	case models.KindBloodOxygen:
		if r.Value == nil {
			return models.AnomalyEvent{}, fmt.Errorf("blood oxygen reading without value: %w", ErrNoVerdict)
		}
		return models.NewAnomalyEvent(r, e.policy.BloodOxygenAbnormal(*r.Value)), nil
	case models.KindFall:
		return models.NewAnomalyEvent(r, r.Fall), nil
	default:
		return models.AnomalyEvent{}, fmt.Errorf("unsupported reading kind %q: %w", r.Kind, ErrNoVerdict)
	}
}
