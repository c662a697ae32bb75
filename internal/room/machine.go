package room

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// 状态机事件
const (
	EventRequestPlay    = "request_play"    // 进入出牌
	EventRequestRespond = "request_respond" // 进入响应
	EventRequestReply   = "request_reply"   // 进入对话框询问
	EventReply          = "reply"           // 已回复，回到空闲
	EventCancel         = "cancel"          // 玩家取消并发送了拒绝
	EventCancelRequest  = "cancel_request"  // 服务器强制取消
	EventInactive       = "inactive"        // 进入非活动
	EventResume         = "resume"          // 从非活动恢复
)

// Transition 状态转换定义
type Transition struct {
	From   Mode
	Event  string
	To     Mode
	Action func(ctx context.Context, m *Machine) error
}

// Episode 一次待回复的询问
type Episode struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	RequestID int64     `json:"request_id"`
	Mode      Mode      `json:"mode"`
	Replied   bool      `json:"replied"`
	StartedAt time.Time `json:"started_at"`
}

// StatePersister 状态持久化接口
type StatePersister interface {
	Save(ctx context.Context, sessionID string, state *MachineData) error
	Load(ctx context.Context, sessionID string) (*MachineData, error)
	Delete(ctx context.Context, sessionID string) error
}

// MachineData 状态机数据（用于持久化）
type MachineData struct {
	SessionID   string    `json:"session_id"`
	SelfID      int       `json:"self_id"`
	CurrentMode Mode      `json:"current_mode"`
	Episode     *Episode  `json:"episode,omitempty"`
	Replies     int       `json:"replies"`
	LastUpdate  time.Time `json:"last_update"`
}

// Machine 待回复状态机
//
// 只负责模式与回合（episode）的簿记；界面配置和回复发送由 Room 完成。
type Machine struct {
	mu          sync.RWMutex
	current     Mode
	sessionID   string
	selfID      int
	transitions map[string][]Transition
	logger      *zap.Logger

	episode    *Episode
	handoff    bool // 回复后直接派发缓存消息，跳过空闲
	replies    int
	lastUpdate time.Time

	onStateChange func(from, to Mode, event string)
	persister     StatePersister
}

// NewMachine 创建状态机
func NewMachine(sessionID string, selfID int, logger *zap.Logger, persister StatePersister) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		current:     ModeIdle,
		sessionID:   sessionID,
		selfID:      selfID,
		transitions: make(map[string][]Transition),
		logger:      logger,
		lastUpdate:  time.Now(),
		persister:   persister,
	}

	m.initTransitions()

	return m
}

// initTransitions 初始化状态转换规则
func (m *Machine) initTransitions() {
	requests := map[string]Mode{
		EventRequestPlay:    ModePlaying,
		EventRequestRespond: ModeResponding,
		EventRequestReply:   ModeReplying,
	}
	awaiting := []Mode{ModePlaying, ModeResponding, ModeReplying}

	for event, to := range requests {
		// 空闲/非活动 -> 待回复
		for _, from := range []Mode{ModeIdle, ModeNotActive} {
			m.addTransition(Transition{From: from, Event: event, To: to, Action: beginEpisode})
		}
		// 回复后直接进入下一个缓存的询问
		for _, from := range awaiting {
			m.addTransition(Transition{
				From:  from,
				Event: event,
				To:    to,
				Action: func(ctx context.Context, m *Machine) error {
					if !m.handoff || m.episode == nil || !m.episode.Replied {
						return apperrors.New(apperrors.ErrAlreadyReplied, "上一轮询问尚未回复")
					}
					return beginEpisode(ctx, m)
				},
			})
		}
	}

	for _, from := range awaiting {
		// 待回复 -> 空闲（已回复）
		m.addTransition(Transition{
			From:  from,
			Event: EventReply,
			To:    ModeIdle,
			Action: func(ctx context.Context, m *Machine) error {
				if m.episode == nil || !m.episode.Replied {
					return apperrors.New(apperrors.ErrNotAwaitingReply, "本轮尚未发送回复")
				}
				m.logger.Debug("回合结束",
					zap.String("session_id", m.sessionID),
					zap.String("episode_id", m.episode.ID),
					zap.Duration("duration", time.Since(m.episode.StartedAt)))
				m.episode = nil
				return nil
			},
		})

		// 待回复 -> 空闲（服务器取消）
		m.addTransition(Transition{
			From:   from,
			Event:  EventCancelRequest,
			To:     ModeIdle,
			Action: endEpisode,
		})

		// 待回复 -> 非活动
		m.addTransition(Transition{From: from, Event: EventInactive, To: ModeNotActive, Action: endEpisode})
	}

	// 玩家取消并已发送拒绝
	for _, from := range []Mode{ModeResponding, ModeReplying} {
		m.addTransition(Transition{
			From:  from,
			Event: EventCancel,
			To:    ModeIdle,
			Action: func(ctx context.Context, m *Machine) error {
				if m.episode == nil || !m.episode.Replied {
					return apperrors.New(apperrors.ErrNotAwaitingReply, "取消时未发送拒绝")
				}
				m.episode = nil
				return nil
			},
		})
	}

	// 空闲 <-> 非活动
	m.addTransition(Transition{From: ModeIdle, Event: EventInactive, To: ModeNotActive})
	m.addTransition(Transition{From: ModeNotActive, Event: EventInactive, To: ModeNotActive})
	m.addTransition(Transition{From: ModeNotActive, Event: EventResume, To: ModeIdle})
	m.addTransition(Transition{From: ModeIdle, Event: EventCancelRequest, To: ModeIdle})
	m.addTransition(Transition{From: ModeNotActive, Event: EventCancelRequest, To: ModeIdle})
}

func beginEpisode(ctx context.Context, m *Machine) error {
	m.episode = &Episode{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	m.handoff = false
	return nil
}

func endEpisode(ctx context.Context, m *Machine) error {
	if m.episode != nil && !m.episode.Replied {
		m.logger.Info("询问被放弃",
			zap.String("session_id", m.sessionID),
			zap.String("episode_id", m.episode.ID),
			zap.String("command", m.episode.Command))
	}
	m.episode = nil
	return nil
}

// addTransition 添加状态转换
func (m *Machine) addTransition(t Transition) {
	key := transitionKey(t.From, t.Event)
	m.transitions[key] = append(m.transitions[key], t)
}

// transitionKey 生成转换键
func transitionKey(mode Mode, event string) string {
	return fmt.Sprintf("%s:%s", mode, event)
}

// Trigger 触发事件
func (m *Machine) Trigger(ctx context.Context, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trigger(ctx, event)
}

func (m *Machine) trigger(ctx context.Context, event string) error {
	key := transitionKey(m.current, event)
	transitions, exists := m.transitions[key]
	if !exists || len(transitions) == 0 {
		return apperrors.Newf(apperrors.ErrInvalidTransition, "模式=%s, 事件=%s", m.current, event)
	}

	transition := transitions[0]
	from := m.current

	if transition.Action != nil {
		if err := transition.Action(ctx, m); err != nil {
			// 转换失败，保持原状态
			return apperrors.Wrapf(err, apperrors.ErrInvalidTransition, "模式=%s, 事件=%s", from, event)
		}
	}

	m.current = transition.To
	m.lastUpdate = time.Now()
	if m.episode != nil && m.current.Awaiting() {
		m.episode.Mode = m.current
	}

	if m.onStateChange != nil {
		m.onStateChange(from, m.current, event)
	}

	if m.persister != nil {
		if err := m.persister.Save(ctx, m.sessionID, m.toData()); err != nil {
			m.logger.Error("持久化状态失败",
				zap.Error(err),
				zap.String("session_id", m.sessionID))
		}
	}

	m.logger.Debug("状态转换",
		zap.String("session_id", m.sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(m.current)),
		zap.String("event", event))

	return nil
}

// Begin 开始一次询问，command/requestID 记录在 episode 上
func (m *Machine) Begin(ctx context.Context, mode Mode, command string, requestID int64) error {
	event, ok := requestEvent(mode)
	if !ok {
		return apperrors.Newf(apperrors.ErrInvalidTransition, "无法进入模式 %s", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.trigger(ctx, event); err != nil {
		return err
	}
	m.episode.Command = command
	m.episode.RequestID = requestID
	return nil
}

func requestEvent(mode Mode) (string, bool) {
	switch mode {
	case ModePlaying:
		return EventRequestPlay, true
	case ModeResponding:
		return EventRequestRespond, true
	case ModeReplying:
		return EventRequestReply, true
	}
	return "", false
}

// MarkReplied 登记本轮已回复，每轮只允许一次
func (m *Machine) MarkReplied() (*Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current.Awaiting() || m.episode == nil {
		return nil, apperrors.Newf(apperrors.ErrNotAwaitingReply, "当前模式 %s", m.current)
	}
	if m.episode.Replied {
		return nil, apperrors.New(apperrors.ErrAlreadyReplied, m.episode.ID)
	}
	m.episode.Replied = true
	m.replies++
	ep := *m.episode
	return &ep, nil
}

// SetHandoff 允许下一次询问直接接替已回复的回合
func (m *Machine) SetHandoff(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handoff = on
}

// Mode 获取当前模式
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Episode 获取当前回合副本
func (m *Machine) Episode() *Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.episode == nil {
		return nil
	}
	ep := *m.episode
	return &ep
}

// Replies 已发送的回复数
func (m *Machine) Replies() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replies
}

// OnStateChange 设置状态变更回调
func (m *Machine) OnStateChange(fn func(from, to Mode, event string)) {
	m.onStateChange = fn
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transitions, exists := m.transitions[transitionKey(m.current, event)]
	return exists && len(transitions) > 0
}

// ValidEvents 获取当前模式下的有效事件（已排序）
func (m *Machine) ValidEvents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []string
	prefix := string(m.current) + ":"
	for key := range m.transitions {
		if strings.HasPrefix(key, prefix) {
			events = append(events, key[len(prefix):])
		}
	}
	sort.Strings(events)
	return events
}

// toData 转换为持久化数据
func (m *Machine) toData() *MachineData {
	var ep *Episode
	if m.episode != nil {
		c := *m.episode
		ep = &c
	}
	return &MachineData{
		SessionID:   m.sessionID,
		SelfID:      m.selfID,
		CurrentMode: m.current,
		Episode:     ep,
		Replies:     m.replies,
		LastUpdate:  m.lastUpdate,
	}
}

// LoadFromData 从持久化数据加载
func (m *Machine) LoadFromData(data *MachineData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessionID = data.SessionID
	m.selfID = data.SelfID
	m.current = data.CurrentMode
	m.replies = data.Replies
	m.lastUpdate = data.LastUpdate
	m.episode = nil
	if data.Episode != nil {
		ep := *data.Episode
		m.episode = &ep
	}
}

// SetSelf 视角切换后更新自身id
func (m *Machine) SetSelf(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfID = id
}

// Reset 重置状态机
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = ModeIdle
	m.episode = nil
	m.handoff = false
	m.lastUpdate = time.Now()
}
