package room

import (
	"encoding/json"
)

// Mode 交互模式
type Mode string

const (
	ModeIdle       Mode = "idle"       // 空闲
	ModePlaying    Mode = "playing"    // 出牌阶段
	ModeResponding Mode = "responding" // 使用/打出响应
	ModeReplying   Mode = "replying"   // 对话框类询问
	ModeNotActive  Mode = "notactive"  // 非活动（等待无懈、游戏结束等）
)

// Awaiting 是否欠服务器一次回复
func (m Mode) Awaiting() bool {
	return m == ModePlaying || m == ModeResponding || m == ModeReplying
}

// Session 房间内的交互会话，由事件循环独占
type Session struct {
	Mode         Mode            `json:"mode"`
	Command      string          `json:"command,omitempty"` // 当前询问的命令
	Prompt       Prompt          `json:"prompt"`
	Pattern      string          `json:"pattern,omitempty"`
	RespondPlay  bool            `json:"respond_play"`
	AutoPending  bool            `json:"auto_pending"`
	PendingSkill string          `json:"pending_skill,omitempty"`
	ExtraData    ExtraData       `json:"extra_data"`
	Candidate    Candidate       `json:"candidate"`
	Targets      SelectedTargets `json:"-"`
	Method       string          `json:"method,omitempty"`
	Interaction  json.RawMessage `json:"interaction,omitempty"`
	Modal        *Modal          `json:"modal,omitempty"`
	AG           []int           `json:"ag,omitempty"`

	Selectable     map[int]bool `json:"selectable"`
	ConfirmEnabled bool         `json:"confirm_enabled"`
	CancelEnabled  bool         `json:"cancel_enabled"`
}

// NewSession 创建空闲会话
func NewSession() *Session {
	s := &Session{}
	s.Reset()
	return s
}

// Reset 回到空闲，清空本轮的全部状态
func (s *Session) Reset() {
	s.Mode = ModeIdle
	s.Command = ""
	s.Prompt = Prompt{}
	s.Pattern = ""
	s.RespondPlay = false
	s.AutoPending = false
	s.PendingSkill = ""
	s.ExtraData = ExtraData{}
	s.Modal = nil
	s.ConfirmEnabled = false
	s.CancelEnabled = false
	s.ClearSelection()
}

// ClearSelection 清空候选、目标和技能交互
func (s *Session) ClearSelection() {
	s.Candidate = NoCandidate()
	s.Targets.Clear()
	s.Method = ""
	s.Interaction = nil
	s.Selectable = make(map[int]bool)
}

// SessionView 会话的只读快照
type SessionView struct {
	SessionID      string      `json:"session_id"`
	EpisodeID      string      `json:"episode_id,omitempty"`
	SelfID         int         `json:"self_id"`
	Mode           Mode        `json:"mode"`
	Command        string      `json:"command,omitempty"`
	Prompt         string      `json:"prompt"`
	Pattern        string      `json:"pattern,omitempty"`
	RespondPlay    bool        `json:"respond_play"`
	AutoPending    bool        `json:"auto_pending"`
	PendingSkill   string      `json:"pending_skill,omitempty"`
	MustTargets    []int       `json:"must_targets,omitempty"`
	Candidate      interface{} `json:"candidate"`
	Targets        []int       `json:"targets"`
	Method         string      `json:"method,omitempty"`
	Selectable     []int       `json:"selectable"`
	ConfirmEnabled bool        `json:"confirm_enabled"`
	CancelEnabled  bool        `json:"cancel_enabled"`
	Modal          *Modal      `json:"modal,omitempty"`
	Pending        int         `json:"pending"`
	Swapping       bool        `json:"swapping"`
	Seats          []Seat      `json:"seats"`
	ValidEvents    []string    `json:"valid_events"`
}
