package dispatcher

import (
	"context"
	"sync"
	"time"

	"lifesignal/internal/analysis"
	"lifesignal/internal/evaluator"
	"lifesignal/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationSink 本机通知出口
type NotificationSink interface {
	Send(ctx context.Context, n models.Notification) error
}

// ContactChannel 联系人报警出口（短信网关、报警流、审计表）
type ContactChannel interface {
	Deliver(ctx context.Context, rec models.AlertRecord) error
}

// Analyzer 可选的远程风险分析
type Analyzer interface {
	Analyze(ctx context.Context, vitals models.Vitals) (*analysis.Result, error)
}

// Option 调度器选项
type Option func(*Dispatcher)

// WithNotificationSinks 注册通知出口
func WithNotificationSinks(sinks ...NotificationSink) Option {
	return func(d *Dispatcher) { d.notifiers = append(d.notifiers, sinks...) }
}

// WithContactChannels 注册联系人通道
func WithContactChannels(channels ...ContactChannel) Option {
	return func(d *Dispatcher) { d.channels = append(d.channels, channels...) }
}

// WithAnalyzer 启用风险分析（超时后按无结果处理）
func WithAnalyzer(a Analyzer, timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.analyzer = a
		d.analysisTimeout = timeout
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher 报警调度器
// Dispatch 立即返回本次尝试下发的全部记录，出口调用在后台进行，失败只记日志
type Dispatcher struct {
	policy          evaluator.ThresholdPolicy
	notifiers       []NotificationSink
	channels        []ContactChannel
	analyzer        Analyzer
	analysisTimeout time.Duration
	now             func() time.Time
	logger          *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher 创建调度器
func NewDispatcher(policy evaluator.ThresholdPolicy, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		policy:          policy,
		analysisTimeout: 2 * time.Second,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ShouldNotify 按偏好过滤联系人；停用的联系人永不包含
func (d *Dispatcher) ShouldNotify(c models.EmergencyContact, decision models.EscalationDecision) bool {
	if !c.IsActive {
		return false
	}
	switch c.NotificationPreference {
	case models.PreferenceAll:
		return true
	case models.PreferenceCriticalOnly:
		return d.policy.Critical(decision.Vitals)
	default:
		return false
	}
}

// Dispatch 生成并下发报警记录
func (d *Dispatcher) Dispatch(ctx context.Context, decision models.EscalationDecision, contacts []models.EmergencyContact) []models.AlertRecord {
	risk := d.assess(ctx, decision)
	message := ComposeMessage(decision.Vitals, risk)
	dispatchedAt := d.now()

	d.send(ctx, NotificationFor(decision))

	var records []models.AlertRecord
	for _, c := range contacts {
		if !d.ShouldNotify(c, decision) {
			continue
		}
		rec := models.AlertRecord{
			ID:              uuid.New().String(),
			ContactID:       c.ID,
			ContactName:     c.Name,
			PhoneNumber:     c.PhoneNumber,
			Channel:         models.ChannelSMS,
			Message:         message,
			EpisodeID:       decision.EpisodeID,
			TriggeringEvent: decision.Event,
			DispatchedAt:    dispatchedAt,
		}
		records = append(records, rec)
		d.deliver(ctx, rec)
	}

	d.logger.Info("Alert dispatched",
		zap.String("episode_id", decision.EpisodeID),
		zap.String("kind", string(decision.Kind)),
		zap.String("source", string(decision.Source)),
		zap.Int("contact_count", len(contacts)),
		zap.Int("record_count", len(records)),
	)
	return records
}

// Wait 等待后台下发完成（测试、退出时使用）
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) assess(ctx context.Context, decision models.EscalationDecision) *analysis.Result {
	if d.analyzer == nil {
		return nil
	}
	actx, cancel := context.WithTimeout(ctx, d.analysisTimeout)
	defer cancel()

	result, err := d.analyzer.Analyze(actx, decision.Vitals)
	if err != nil {
		d.logger.Warn("Risk analysis unavailable, dispatching without it",
			zap.String("episode_id", decision.EpisodeID),
			zap.Error(err),
		)
		return nil
	}
	return result
}

func (d *Dispatcher) send(ctx context.Context, n models.Notification) {
	ctx = context.WithoutCancel(ctx)
	for _, sink := range d.notifiers {
		d.wg.Add(1)
		go func(sink NotificationSink) {
			defer d.wg.Done()
			if err := sink.Send(ctx, n); err != nil {
				d.logger.Error("Failed to send notification",
					zap.String("category", n.Category),
					zap.Error(err),
				)
			}
		}(sink)
	}
}

// deliver 依次交给各联系人通道，至少一个成功后发确认通知
func (d *Dispatcher) deliver(ctx context.Context, rec models.AlertRecord) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		delivered := len(d.channels) == 0
		for _, ch := range d.channels {
			if err := ch.Deliver(ctx, rec); err != nil {
				d.logger.Error("Failed to deliver alert",
					zap.String("record_id", rec.ID),
					zap.String("episode_id", rec.EpisodeID),
					zap.String("contact_id", rec.ContactID),
					zap.Error(err),
				)
				continue
			}
			delivered = true
		}
		if delivered {
			d.send(ctx, ContactConfirmation(rec))
		}
	}()
}
