package room

import (
	"sort"
	"sync"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// ErrModalUnavailable 对话框组件不可用
var ErrModalUnavailable = apperrors.New(apperrors.ErrMissingCollaborator, "对话框组件不可用")

// SeatMark 座位标记
type SeatMark struct {
	Selectable bool `json:"selectable"`
	Selected   bool `json:"selected"`
}

// Notice 提示记录
type Notice struct {
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// ViewState 界面状态快照
type ViewState struct {
	Prompt         Prompt           `json:"prompt"`
	ConfirmEnabled bool             `json:"confirm_enabled"`
	CancelEnabled  bool             `json:"cancel_enabled"`
	CardPattern    string           `json:"card_pattern"`
	Seats          map[int]SeatMark `json:"seats"`
	Modal          *Modal           `json:"modal,omitempty"`
	Notices        []Notice         `json:"notices,omitempty"`
}

// View 无界面的展示层，记录核心发出的命令，供控制接口查询
type View struct {
	mu         sync.RWMutex
	state      ViewState
	failModals bool
	maxNotices int
}

// NewView 创建记录器
func NewView() *View {
	return &View{
		state:      ViewState{Seats: make(map[int]SeatMark)},
		maxNotices: 20,
	}
}

// FailModals 模拟对话框组件无法加载
func (v *View) FailModals(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failModals = fail
}

func (v *View) SetPrompt(p Prompt) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Prompt = p
}

func (v *View) SetConfirmEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.ConfirmEnabled = enabled
}

func (v *View) SetCancelEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.CancelEnabled = enabled
}

func (v *View) MarkSeat(id int, selectable, selected bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Seats[id] = SeatMark{Selectable: selectable, Selected: selected}
}

func (v *View) EnableCards(pattern string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.CardPattern = pattern
}

func (v *View) ShowModal(m *Modal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failModals {
		return ErrModalUnavailable
	}
	v.state.Modal = m
	return nil
}

func (v *View) CloseModal() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Modal = nil
}

func (v *View) Notice(message string, blocking bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Notices = append(v.state.Notices, Notice{Message: message, Blocking: blocking})
	if over := len(v.state.Notices) - v.maxNotices; over > 0 {
		v.state.Notices = v.state.Notices[over:]
	}
}

// State 返回副本
func (v *View) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := v.state
	out.Seats = make(map[int]SeatMark, len(v.state.Seats))
	for id, m := range v.state.Seats {
		out.Seats[id] = m
	}
	out.Notices = append([]Notice(nil), v.state.Notices...)
	return out
}

// SelectableSeats 当前可选座位（已排序）
func (v *View) SelectableSeats() []int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var ids []int
	for id, m := range v.state.Seats {
		if m.Selectable {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// LastNotice 最近一条提示
func (v *View) LastNotice() (Notice, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.state.Notices) == 0 {
		return Notice{}, false
	}
	return v.state.Notices[len(v.state.Notices)-1], true
}

// ClearNotices 清空提示（阻塞提示被确认后）
func (v *View) ClearNotices() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Notices = nil
}
