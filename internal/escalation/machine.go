package escalation

import (
	"time"

	"lifesignal/internal/models"

	"github.com/google/uuid"
)

// DefaultCountdown 默认宽限期
const DefaultCountdown = 30 * time.Second

// 已结束回合记忆容量（跨设备去重用）
const closedCapacity = 128

// 状态迁移原因
const (
	ReasonAbnormal      = "abnormal_reading"
	ReasonNormal        = "normal_reading"
	ReasonUserCancel    = "user_cancel"
	ReasonTimerExpired  = "timer_expired"
	ReasonFall          = "fall_detected"
	ReasonManualSOS     = "manual_sos"
	ReasonPeerEscalated = "peer_escalated"
	ReasonPeerCancelled = "peer_cancelled"
	ReasonCompleted     = "dispatch_completed"
)

// Transition 一次状态迁移
type Transition struct {
	Kind      models.Kind
	From      models.Phase
	To        models.Phase
	EpisodeID string
	Reason    string
	At        time.Time
}

type episode struct {
	phase     models.Phase
	id        string
	trigger   models.AnomalyEvent
	startedAt time.Time
	deadline  time.Time
}

// Machine 升级状态机（每个类型独立），非并发安全，由 Coordinator 串行驱动
type Machine struct {
	countdown time.Duration
	episodes  map[models.Kind]*episode
	vitals    models.Vitals
	closed    *recentSet
	observer  func(Transition)
}

// NewMachine 创建状态机
func NewMachine(countdown time.Duration, observer func(Transition)) *Machine {
	if countdown <= 0 {
		countdown = DefaultCountdown
	}
	if observer == nil {
		observer = func(Transition) {}
	}
	return &Machine{
		countdown: countdown,
		episodes:  make(map[models.Kind]*episode),
		closed:    newRecentSet(closedCapacity),
		observer:  observer,
	}
}

func (m *Machine) episode(kind models.Kind) *episode {
	ep, ok := m.episodes[kind]
	if !ok {
		ep = &episode{phase: models.PhaseIdle}
		m.episodes[kind] = ep
	}
	return ep
}

func (m *Machine) move(kind models.Kind, ep *episode, to models.Phase, reason string, now time.Time) {
	from := ep.phase
	ep.phase = to
	m.observer(Transition{
		Kind:      kind,
		From:      from,
		To:        to,
		EpisodeID: ep.id,
		Reason:    reason,
		At:        now,
	})
	if to == models.PhaseIdle {
		ep.id = ""
		ep.trigger = models.AnomalyEvent{}
		ep.startedAt = time.Time{}
		ep.deadline = time.Time{}
	}
}

func (m *Machine) escalate(kind models.Kind, ep *episode, source models.DecisionSource, reason string, now time.Time) *models.EscalationDecision {
	m.move(kind, ep, models.PhaseEscalated, reason, now)
	m.closed.add(ep.id)

	vitals := m.vitals.Apply(ep.trigger)
	return &models.EscalationDecision{
		EpisodeID:   ep.id,
		Kind:        kind,
		Source:      source,
		Event:       ep.trigger,
		Vitals:      vitals,
		EscalatedAt: now,
	}
}

// remember 记录最近读数（跌倒标志不进入快照，只在跌倒决定中出现）
func (m *Machine) remember(e models.AnomalyEvent) {
	if e.Kind == models.KindFall {
		if e.Location != nil {
			loc := *e.Location
			m.vitals.Location = &loc
		}
		return
	}
	fall := m.vitals.FallDetected
	m.vitals = m.vitals.Apply(e)
	m.vitals.FallDetected = fall
}

// Observe 处理一个评估结果；跌倒立即升级返回决定，其余类型只会启动/取消倒计时
func (m *Machine) Observe(e models.AnomalyEvent, now time.Time) *models.EscalationDecision {
	if e.ID != "" && m.closed.has(e.ID) {
		return nil
	}
	m.remember(e)

	ep := m.episode(e.Kind)

	if e.Kind == models.KindFall {
		if !e.IsAbnormal || ep.phase == models.PhaseEscalated {
			return nil
		}
		// 跌倒跳过倒计时（若异常处于其他阶段直接覆盖）
		ep.id = episodeID(e)
		ep.trigger = e
		ep.startedAt = now
		return m.escalate(e.Kind, ep, models.SourceFall, ReasonFall, now)
	}

	switch ep.phase {
	case models.PhaseIdle:
		if e.IsAbnormal {
			ep.id = episodeID(e)
			ep.trigger = e
			ep.startedAt = now
			ep.deadline = now.Add(m.countdown)
			m.move(e.Kind, ep, models.PhaseCountingDown, ReasonAbnormal, now)
		}
	case models.PhaseCountingDown:
		if !e.IsAbnormal {
			m.closed.add(ep.id)
			m.move(e.Kind, ep, models.PhaseIdle, ReasonNormal, now)
		}
		// 倒计时期间的重复异常读数不重置计时
	}
	return nil
}

// Tick 推进时间，到期的倒计时升级
func (m *Machine) Tick(now time.Time) []models.EscalationDecision {
	var decisions []models.EscalationDecision
	for _, kind := range kindOrder(m.episodes) {
		ep := m.episodes[kind]
		if ep.phase != models.PhaseCountingDown || now.Before(ep.deadline) {
			continue
		}
		if d := m.escalate(kind, ep, models.SourceCountdown, ReasonTimerExpired, now); d != nil {
			decisions = append(decisions, *d)
		}
	}
	return decisions
}

// Cancel 用户手动取消倒计时：CountingDown → Cancelled → Idle
func (m *Machine) Cancel(kind models.Kind, now time.Time) bool {
	ep, ok := m.episodes[kind]
	if !ok || ep.phase != models.PhaseCountingDown {
		return false
	}
	id := ep.id
	m.move(kind, ep, models.PhaseCancelled, ReasonUserCancel, now)
	m.move(kind, ep, models.PhaseIdle, ReasonUserCancel, now)
	// 被用户取消的回合不应被对端重新升级
	m.closed.add(id)
	return true
}

// CancelAll 取消所有倒计时，返回被取消的类型
func (m *Machine) CancelAll(now time.Time) []models.Kind {
	var cancelled []models.Kind
	for _, kind := range kindOrder(m.episodes) {
		if m.Cancel(kind, now) {
			cancelled = append(cancelled, kind)
		}
	}
	return cancelled
}

// TriggerSOS 手动 SOS：跳过倒计时立即升级，使用最近一次读数
// 正在进行的倒计时被并入本次升级，不会再单独下发
// episodeID 为命令ID：配对设备收到同一条命令时落在同一回合；为空时生成新ID
func (m *Machine) TriggerSOS(episodeID string, now time.Time) *models.EscalationDecision {
	if episodeID != "" && m.closed.has(episodeID) {
		return nil
	}
	ep := m.episode(models.KindManual)
	if ep.phase == models.PhaseEscalated {
		return nil
	}
	if episodeID == "" {
		episodeID = uuid.New().String()
	}

	for _, kind := range kindOrder(m.episodes) {
		other := m.episodes[kind]
		if other.phase == models.PhaseCountingDown {
			m.closed.add(other.id)
			m.move(kind, other, models.PhaseIdle, ReasonManualSOS, now)
		}
	}

	trigger := models.AnomalyEvent{
		ID:        episodeID,
		Kind:      models.KindManual,
		Location:  m.vitals.Location,
		Timestamp: now,
	}
	ep.id = trigger.ID
	ep.trigger = trigger
	ep.startedAt = now
	return m.escalate(models.KindManual, ep, models.SourceManual, ReasonManualSOS, now)
}

// EscalateFromPeer 对端设备已升级：同一回合只升级一次
func (m *Machine) EscalateFromPeer(d models.EscalationDecision, now time.Time) *models.EscalationDecision {
	if d.EpisodeID == "" || m.closed.has(d.EpisodeID) {
		return nil
	}
	ep := m.episode(d.Kind)
	if ep.phase == models.PhaseEscalated {
		return nil
	}

	ep.id = d.EpisodeID
	ep.trigger = d.Event
	if ep.startedAt.IsZero() {
		ep.startedAt = now
	}
	m.move(d.Kind, ep, models.PhaseEscalated, ReasonPeerEscalated, now)
	m.closed.add(ep.id)

	return &models.EscalationDecision{
		EpisodeID:   d.EpisodeID,
		Kind:        d.Kind,
		Source:      models.SourcePeer,
		Event:       d.Event,
		Vitals:      d.Vitals,
		EscalatedAt: now,
		Dispatched:  d.Dispatched,
	}
}

// PeerCancelled 对端取消了同一回合的倒计时
func (m *Machine) PeerCancelled(kind models.Kind, episodeID string, now time.Time) bool {
	ep, ok := m.episodes[kind]
	if !ok || ep.phase != models.PhaseCountingDown || ep.id != episodeID {
		return false
	}
	m.closed.add(episodeID)
	m.move(kind, ep, models.PhaseIdle, ReasonPeerCancelled, now)
	return true
}

// Complete 本回合下发完成（无论 sink 成败）：Escalated → Idle
func (m *Machine) Complete(kind models.Kind, episodeID string, now time.Time) bool {
	ep, ok := m.episodes[kind]
	if !ok || ep.phase != models.PhaseEscalated || ep.id != episodeID {
		return false
	}
	m.move(kind, ep, models.PhaseIdle, ReasonCompleted, now)
	return true
}

// State 某类型的状态快照，剩余时间按秒向上取整
func (m *Machine) State(kind models.Kind, now time.Time) models.EscalationState {
	ep, ok := m.episodes[kind]
	if !ok {
		return models.EscalationState{Kind: kind, Phase: models.PhaseIdle}
	}
	state := models.EscalationState{
		Kind:      kind,
		Phase:     ep.phase,
		EpisodeID: ep.id,
		StartedAt: ep.startedAt,
	}
	if ep.phase == models.PhaseCountingDown {
		state.Remaining = remaining(ep.deadline, now)
	}
	return state
}

// States 所有类型的状态快照
func (m *Machine) States(now time.Time) []models.EscalationState {
	kinds := append([]models.Kind{}, models.SensorKinds...)
	kinds = append(kinds, models.KindManual)
	states := make([]models.EscalationState, 0, len(kinds))
	for _, kind := range kinds {
		states = append(states, m.State(kind, now))
	}
	return states
}

// Vitals 最近一次读数快照
func (m *Machine) Vitals() models.Vitals {
	return m.vitals
}

func remaining(deadline, now time.Time) time.Duration {
	rem := deadline.Sub(now)
	if rem <= 0 {
		return 0
	}
	whole := rem.Truncate(time.Second)
	if whole < rem {
		whole += time.Second
	}
	return whole
}

func episodeID(e models.AnomalyEvent) string {
	if e.ID != "" {
		return e.ID
	}
	return uuid.New().String()
}

// kindOrder 固定遍历顺序，保证多个倒计时同时到期时决定顺序稳定
func kindOrder(episodes map[models.Kind]*episode) []models.Kind {
	order := []models.Kind{models.KindHeartRate, models.KindBloodOxygen, models.KindFall, models.KindManual}
	kinds := make([]models.Kind, 0, len(episodes))
	for _, k := range order {
		if _, ok := episodes[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// recentSet 有界的最近ID集合（先进先出淘汰）
type recentSet struct {
	capacity int
	order    []string
	items    map[string]struct{}
}

func newRecentSet(capacity int) *recentSet {
	return &recentSet{capacity: capacity, items: make(map[string]struct{}, capacity)}
}

func (s *recentSet) add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.items[id]; ok {
		return
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
	}
	s.order = append(s.order, id)
	s.items[id] = struct{}{}
}

func (s *recentSet) has(id string) bool {
	_, ok := s.items[id]
	return ok
}
