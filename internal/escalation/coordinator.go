package escalation

import (
	"context"
	"errors"
	"time"

	"lifesignal/internal/models"

	"go.uber.org/zap"
)

// ErrStopped 协调循环未运行
var ErrStopped = errors.New("escalation coordinator stopped")

// Options 协调器配置
type Options struct {
	Countdown      time.Duration    // 宽限期，默认 30s
	Tick           time.Duration    // 节拍，默认 1s
	DecisionBuffer int              // 决定输出缓冲
	Now            func() time.Time // 时钟（测试注入）
}

// Coordinator 升级协调器
// 读数、节拍、取消、手动 SOS 全部串行在 Run 的单个 goroutine 上执行
type Coordinator struct {
	machine   *Machine
	tick      time.Duration
	now       func() time.Time
	cmds      chan func(now time.Time)
	decisions chan models.EscalationDecision
	done      chan struct{}
	logger    *zap.Logger

	listeners []func(Transition)
}

// NewCoordinator 创建协调器
// listeners 在协调循环内被同步调用，不能回调 Coordinator
func NewCoordinator(opts Options, logger *zap.Logger, listeners ...func(Transition)) *Coordinator {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.DecisionBuffer <= 0 {
		opts.DecisionBuffer = 16
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		tick:      opts.Tick,
		now:       opts.Now,
		cmds:      make(chan func(now time.Time)),
		decisions: make(chan models.EscalationDecision, opts.DecisionBuffer),
		done:      make(chan struct{}),
		logger:    logger,
		listeners: listeners,
	}
	c.machine = NewMachine(opts.Countdown, c.onTransition)
	return c
}

// Decisions 升级决定输出（每个回合最多一个）
func (c *Coordinator) Decisions() <-chan models.EscalationDecision {
	return c.decisions
}

// Run 运行协调循环，直到 ctx 取消
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Escalation coordinator started",
		zap.Duration("countdown", c.machine.countdown),
		zap.Duration("tick", c.tick),
	)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Escalation coordinator stopped")
			return nil
		case <-ticker.C:
			for _, d := range c.machine.Tick(c.now()) {
				c.emit(ctx, &d)
			}
		case cmd := <-c.cmds:
			cmd(c.now())
		}
	}
}

func (c *Coordinator) emit(ctx context.Context, d *models.EscalationDecision) {
	if d == nil {
		return
	}
	c.logger.Warn("Escalated",
		zap.String("kind", string(d.Kind)),
		zap.String("episode_id", d.EpisodeID),
		zap.String("source", string(d.Source)),
	)
	select {
	case c.decisions <- *d:
	case <-ctx.Done():
	}
}

func (c *Coordinator) onTransition(t Transition) {
	c.logger.Debug("Escalation transition",
		zap.String("kind", string(t.Kind)),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("episode_id", t.EpisodeID),
		zap.String("reason", t.Reason),
	)
	for _, l := range c.listeners {
		l(t)
	}
}

// do 在协调循环中执行 fn 并等待完成
func (c *Coordinator) do(ctx context.Context, fn func(ctx context.Context, now time.Time)) error {
	finished := make(chan struct{})
	cmd := func(now time.Time) {
		defer close(finished)
		fn(ctx, now)
	}

	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Observe 输入一个评估结果
func (c *Coordinator) Observe(ctx context.Context, e models.AnomalyEvent) error {
	return c.do(ctx, func(ctx context.Context, now time.Time) {
		c.emit(ctx, c.machine.Observe(e, now))
	})
}

// Cancel 用户取消某类型的倒计时
func (c *Coordinator) Cancel(ctx context.Context, kind models.Kind) (bool, error) {
	var cancelled bool
	err := c.do(ctx, func(_ context.Context, now time.Time) {
		cancelled = c.machine.Cancel(kind, now)
	})
	return cancelled, err
}

// CancelAll 用户取消所有倒计时
func (c *Coordinator) CancelAll(ctx context.Context) ([]models.Kind, error) {
	var kinds []models.Kind
	err := c.do(ctx, func(_ context.Context, now time.Time) {
		kinds = c.machine.CancelAll(now)
	})
	return kinds, err
}

// TriggerSOS 手动 SOS，返回是否产生了新的升级；episodeID 可为空
func (c *Coordinator) TriggerSOS(ctx context.Context, episodeID string) (bool, error) {
	var triggered bool
	err := c.do(ctx, func(ctx context.Context, now time.Time) {
		d := c.machine.TriggerSOS(episodeID, now)
		triggered = d != nil
		c.emit(ctx, d)
	})
	return triggered, err
}

// EscalateFromPeer 对端设备已升级
func (c *Coordinator) EscalateFromPeer(ctx context.Context, d models.EscalationDecision) error {
	return c.do(ctx, func(ctx context.Context, now time.Time) {
		c.emit(ctx, c.machine.EscalateFromPeer(d, now))
	})
}

// PeerCancelled 对端取消了同一回合
func (c *Coordinator) PeerCancelled(ctx context.Context, kind models.Kind, episodeID string) error {
	return c.do(ctx, func(_ context.Context, now time.Time) {
		c.machine.PeerCancelled(kind, episodeID, now)
	})
}

// Complete 回合下发完成
func (c *Coordinator) Complete(ctx context.Context, kind models.Kind, episodeID string) error {
	return c.do(ctx, func(_ context.Context, now time.Time) {
		c.machine.Complete(kind, episodeID, now)
	})
}

// State 某类型状态（含剩余秒数，供界面显示）
func (c *Coordinator) State(ctx context.Context, kind models.Kind) (models.EscalationState, error) {
	var state models.EscalationState
	err := c.do(ctx, func(_ context.Context, now time.Time) {
		state = c.machine.State(kind, now)
	})
	return state, err
}

// States 所有类型状态
func (c *Coordinator) States(ctx context.Context) ([]models.EscalationState, error) {
	var states []models.EscalationState
	err := c.do(ctx, func(_ context.Context, now time.Time) {
		states = c.machine.States(now)
	})
	return states, err
}

// Vitals 最近读数快照
func (c *Coordinator) Vitals(ctx context.Context) (models.Vitals, error) {
	var v models.Vitals
	err := c.do(ctx, func(_ context.Context, _ time.Time) {
		v = c.machine.Vitals()
	})
	return v, err
}
