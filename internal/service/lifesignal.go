package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lifesignal/internal/contacts"
	"lifesignal/internal/dispatcher"
	"lifesignal/internal/escalation"
	"lifesignal/internal/evaluator"
	"lifesignal/internal/eventbus"
	"lifesignal/internal/models"
	"lifesignal/internal/sensor"
	"lifesignal/internal/transport"

	"go.uber.org/zap"
)

// ErrAlreadyStarted 服务已启动（停止后不能再次启动）
var ErrAlreadyStarted = errors.New("service already started")

// Dependencies 服务依赖（由 NewLifeSignalService 按配置组装，测试直接注入）
type Dependencies struct {
	DeviceID   string
	Source     sensor.Source
	Registry   *contacts.Registry
	Dispatcher *dispatcher.Dispatcher
	Bus        eventbus.Bus
	Policy     evaluator.ThresholdPolicy

	// DispatchEnabled 本设备是否负责向联系人下发；否则只发布 emergencyTriggered 交给对端
	DispatchEnabled bool

	Escalation escalation.Options

	// 可选：命令主题（手动 SOS、取消倒计时）
	Commands      transport.Subscriber
	CommandsTopic string
	CommandsQoS   byte
}

// LifeSignalService 检测与升级服务（整合各层）
type LifeSignalService struct {
	deviceID        string
	dispatchEnabled bool
	logger          *zap.Logger

	// 各层组件
	source      sensor.Source
	evaluator   *evaluator.Evaluator
	coordinator *escalation.Coordinator
	registry    *contacts.Registry
	dispatcher  *dispatcher.Dispatcher
	bus         eventbus.Bus
	commands    *commandListener

	mu           sync.Mutex
	started      bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	unsubscribes []func()
	closers      []func() error
}

// New 用已组装的依赖创建服务
func New(deps Dependencies, logger *zap.Logger) *LifeSignalService {
	s := &LifeSignalService{
		deviceID:        deps.DeviceID,
		dispatchEnabled: deps.DispatchEnabled,
		logger:          logger,
		source:          deps.Source,
		evaluator:       evaluator.NewEvaluator(deps.Policy),
		registry:        deps.Registry,
		dispatcher:      deps.Dispatcher,
		bus:             deps.Bus,
	}
	if deps.Commands != nil {
		s.commands = &commandListener{
			service: s,
			sub:     deps.Commands,
			topic:   deps.CommandsTopic,
			qos:     deps.CommandsQoS,
			timeout: 5 * time.Second,
		}
	}
	s.coordinator = escalation.NewCoordinator(deps.Escalation, logger, s.onTransition)
	return s
}

// Start 启动服务
// 传感器未授权时返回错误（ErrAuthorizationDenied / ErrNotAvailable），调用方可重试
func (s *LifeSignalService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.source.Authorize(ctx); err != nil {
		s.logger.Warn("Sensor authorization failed, monitoring not started", zap.Error(err))
		return fmt.Errorf("failed to authorize sensor source: %w", err)
	}

	s.logger.Info("Starting LifeSignal service",
		zap.String("device_id", s.deviceID),
		zap.Bool("dispatch_enabled", s.dispatchEnabled),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.coordinator.Run(runCtx); err != nil {
			s.logger.Error("Escalation coordinator exited", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.consumeDecisions(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.consumeReadings(runCtx)
	}()

	if s.bus != nil {
		s.unsubscribes = append(s.unsubscribes,
			s.bus.Subscribe(s.handlePeerAnomaly, eventbus.AnomalyDetected, eventbus.FallDetected),
			s.bus.Subscribe(s.handlePeerEmergency, eventbus.EmergencyTriggered),
			s.bus.Subscribe(s.handlePeerCancel, eventbus.EscalationCancelled),
		)
	}

	if s.commands != nil {
		if err := s.commands.start(); err != nil {
			// 命令通道不可用不影响自动检测
			s.logger.Error("Failed to listen for commands", zap.Error(err))
		} else {
			s.unsubscribes = append(s.unsubscribes, s.commands.stop)
		}
	}
	return nil
}

// Stop 停止服务，等待后台下发结束
func (s *LifeSignalService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Stopping LifeSignal service")

	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
	s.unsubscribes = nil

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	if s.dispatcher != nil {
		s.dispatcher.Wait()
	}

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("Failed to close resource", zap.Error(err))
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Ingest 处理一条读数：评估、广播异常、推进状态机
func (s *LifeSignalService) Ingest(ctx context.Context, r models.Reading) error {
	if r.DeviceID == "" {
		r.DeviceID = s.deviceID
	}

	event, err := s.evaluator.Evaluate(r)
	if err != nil {
		s.logger.Debug("Reading skipped",
			zap.String("kind", string(r.Kind)),
			zap.Error(err),
		)
		return err
	}

	if event.IsAbnormal {
		s.logger.Info("Anomaly detected",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Float64p("value", event.Value),
		)
		s.publish(ctx, anomalyBusEvent(s.deviceID, event))
	}

	return s.coordinator.Observe(ctx, event)
}

// TriggerSOS 手动 SOS（跳过倒计时）；已在升级中或同一 episodeID 已处理过返回 false
// 来自命令主题的 SOS 以命令ID作为 episodeID，配对设备收到同一命令只会下发一次
func (s *LifeSignalService) TriggerSOS(ctx context.Context, episodeID string) (bool, error) {
	s.logger.Warn("Manual SOS requested", zap.String("episode_id", episodeID))
	return s.coordinator.TriggerSOS(ctx, episodeID)
}

// CancelCountdown 用户取消某类型倒计时
func (s *LifeSignalService) CancelCountdown(ctx context.Context, kind models.Kind) (bool, error) {
	return s.coordinator.Cancel(ctx, kind)
}

// CancelAll 用户取消全部倒计时
func (s *LifeSignalService) CancelAll(ctx context.Context) ([]models.Kind, error) {
	return s.coordinator.CancelAll(ctx)
}

// State 某类型状态（含剩余秒数）
func (s *LifeSignalService) State(ctx context.Context, kind models.Kind) (models.EscalationState, error) {
	return s.coordinator.State(ctx, kind)
}

// States 所有类型状态
func (s *LifeSignalService) States(ctx context.Context) ([]models.EscalationState, error) {
	return s.coordinator.States(ctx)
}

// Vitals 最近读数快照
func (s *LifeSignalService) Vitals(ctx context.Context) (models.Vitals, error) {
	return s.coordinator.Vitals(ctx)
}

// Contacts 联系人注册表
func (s *LifeSignalService) Contacts() *contacts.Registry {
	return s.registry
}

func (s *LifeSignalService) consumeReadings(ctx context.Context) {
	readings := s.source.Readings()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-readings:
			if !ok {
				s.logger.Info("Sensor source closed")
				return
			}
			if err := s.Ingest(ctx, r); err != nil && !errors.Is(err, evaluator.ErrNoVerdict) {
				s.logger.Warn("Failed to ingest reading",
					zap.String("kind", string(r.Kind)),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *LifeSignalService) consumeDecisions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.coordinator.Decisions():
			s.handleDecision(ctx, d)
		}
	}
}

// handleDecision 每个回合只会到达一次；无论 sink 成败都结束回合
func (s *LifeSignalService) handleDecision(ctx context.Context, d models.EscalationDecision) {
	switch {
	case d.Dispatched:
		s.logger.Info("Episode already dispatched by peer",
			zap.String("episode_id", d.EpisodeID),
		)
	case s.dispatchEnabled && s.dispatcher != nil:
		records := s.dispatcher.Dispatch(ctx, d, s.activeContacts(ctx))
		d.Dispatched = true
		s.logger.Warn("Emergency contacts alerted",
			zap.String("episode_id", d.EpisodeID),
			zap.String("kind", string(d.Kind)),
			zap.Int("record_count", len(records)),
		)
	default:
		s.logger.Info("Dispatch disabled on this device, handing off to peer",
			zap.String("episode_id", d.EpisodeID),
		)
	}

	if d.Source != models.SourcePeer {
		s.publish(ctx, eventbus.NewEmergencyTriggered(s.deviceID, d))
	}

	if err := s.coordinator.Complete(ctx, d.Kind, d.EpisodeID); err != nil {
		s.logger.Warn("Failed to complete episode",
			zap.String("episode_id", d.EpisodeID),
			zap.Error(err),
		)
	}
}

// activeContacts 下发前从存储重新读取，命令行对联系人的修改立即生效
func (s *LifeSignalService) activeContacts(ctx context.Context) []models.EmergencyContact {
	if err := s.registry.Reload(ctx); err != nil {
		s.logger.Warn("Failed to reload contacts, using cached list", zap.Error(err))
	}
	return s.registry.List(true)
}

// onTransition 在协调循环内调用：倒计时被取消时通知对端
func (s *LifeSignalService) onTransition(t escalation.Transition) {
	if t.To != models.PhaseIdle || t.From != models.PhaseCancelled && t.From != models.PhaseCountingDown {
		return
	}
	if t.Reason != escalation.ReasonNormal && t.Reason != escalation.ReasonUserCancel {
		return
	}
	s.publish(context.Background(), eventbus.NewEscalationCancelled(s.deviceID, t.Kind, t.EpisodeID, t.Reason, t.At))
}

func (s *LifeSignalService) handlePeerAnomaly(ctx context.Context, e eventbus.Event) {
	if e.Origin == s.deviceID || e.Anomaly == nil {
		return
	}
	if err := s.coordinator.Observe(ctx, *e.Anomaly); err != nil {
		s.logger.Warn("Failed to observe peer anomaly", zap.String("event_id", e.ID), zap.Error(err))
	}
}

func (s *LifeSignalService) handlePeerEmergency(ctx context.Context, e eventbus.Event) {
	if e.Origin == s.deviceID || e.Decision == nil {
		return
	}
	s.logger.Info("Peer escalated",
		zap.String("origin", e.Origin),
		zap.String("episode_id", e.Decision.EpisodeID),
		zap.Bool("dispatched", e.Decision.Dispatched),
	)
	if err := s.coordinator.EscalateFromPeer(ctx, *e.Decision); err != nil {
		s.logger.Warn("Failed to apply peer escalation", zap.String("event_id", e.ID), zap.Error(err))
	}
}

func (s *LifeSignalService) handlePeerCancel(ctx context.Context, e eventbus.Event) {
	if e.Origin == s.deviceID {
		return
	}
	if err := s.coordinator.PeerCancelled(ctx, e.Kind, e.EpisodeID); err != nil {
		s.logger.Warn("Failed to apply peer cancel", zap.String("event_id", e.ID), zap.Error(err))
	}
}

func (s *LifeSignalService) publish(ctx context.Context, e eventbus.Event) {
	if s.bus == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		s.logger.Warn("Failed to publish bus event",
			zap.String("name", string(e.Name)),
			zap.Error(err),
		)
	}
}

func anomalyBusEvent(origin string, e models.AnomalyEvent) eventbus.Event {
	if e.Kind == models.KindFall {
		return eventbus.NewFallDetected(origin, e)
	}
	return eventbus.NewAnomalyDetected(origin, e)
}
