package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/config"
	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/models"
	"github.com/wfunc/room-client/internal/protocol"
)

// Transport 发送回复和推送
type Transport interface {
	Send(ctx context.Context, p *protocol.Packet) error
}

// ReplyJournal 回复记录
type ReplyJournal interface {
	Append(ctx context.Context, rec *models.ReplyRecord) error
}

// Options 房间配置
type Options struct {
	SessionID  string
	SelfID     int
	SeatCount  int
	Oracle     Oracle
	Presenter  Presenter
	Transport  Transport
	Persister  StatePersister
	Journal    ReplyJournal
	Dispatcher *Dispatcher
	Policies   config.RoomConfig
	Logger     *zap.Logger
}

// Room 一个房间的回合协议客户端
//
// 所有方法都应在同一个事件循环中调用，见 Loop。
type Room struct {
	sessionID  string
	selfID     int
	session    *Session
	machine    *Machine
	negotiator *Negotiator
	dispatcher *Dispatcher
	pending    PendingQueue
	seats      *Seats
	swapping   bool

	presenter Presenter
	transport Transport
	journal   ReplyJournal
	policies  config.RoomConfig
	logger    *zap.Logger
}

// New 创建房间
func New(opts Options) (*Room, error) {
	if opts.Oracle == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "缺少规则引擎")
	}
	if opts.Transport == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "缺少传输层")
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.SeatCount <= 0 {
		opts.SeatCount = 8
	}
	if opts.Presenter == nil {
		opts.Presenter = NopPresenter{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDefaultDispatcher()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetModuleLogger(logger.ModuleRoom)
	}

	r := &Room{
		sessionID:  opts.SessionID,
		selfID:     opts.SelfID,
		session:    NewSession(),
		machine:    NewMachine(opts.SessionID, opts.SelfID, opts.Logger, opts.Persister),
		negotiator: NewNegotiator(opts.Oracle, opts.Logger.Named("negotiator")),
		dispatcher: opts.Dispatcher,
		seats:      NewSeats(opts.SeatCount, opts.SelfID),
		presenter:  opts.Presenter,
		transport:  opts.Transport,
		journal:    opts.Journal,
		policies:   opts.Policies,
		logger:     opts.Logger.With(zap.String("session_id", opts.SessionID)),
	}

	r.machine.OnStateChange(func(from, to Mode, event string) {
		logger.LogTransition(r.sessionID, string(from), string(to), event)
	})

	return r, nil
}

// SessionID 会话id
func (r *Room) SessionID() string { return r.sessionID }

// SelfID 当前视角的玩家id
func (r *Room) SelfID() int { return r.selfID }

// Mode 当前模式
func (r *Room) Mode() Mode { return r.machine.Mode() }

// Session 当前会话（仅限事件循环内使用）
func (r *Room) Session() *Session { return r.session }

// Seats 座位表（仅限事件循环内使用）
func (r *Room) Seats() *Seats { return r.seats }

// Presenter 展示层
func (r *Room) Presenter() Presenter { return r.presenter }

// Machine 状态机
func (r *Room) Machine() *Machine { return r.machine }

// PendingLen 缓存消息数
func (r *Room) PendingLen() int { return r.pending.Len() }

// Swapping 是否处于视角切换中
func (r *Room) Swapping() bool { return r.swapping }

// SetPolicies 更新取消策略（配置热加载）
func (r *Room) SetPolicies(p config.RoomConfig) {
	r.policies = p
	r.logger.Info("取消策略已更新", zap.String("default", p.DefaultCancelPolicy))
}

// HandlePacket 处理一条服务器消息
func (r *Room) HandlePacket(ctx context.Context, p *protocol.Packet) error {
	logger.LogProtocolMessage("receive", string(p.Type), p.Command, p.Data)
	return r.ReceiveRequest(ctx, PendingMessage{
		RequestID:  p.ID,
		Command:    p.Command,
		Data:       p.Data,
		ReceivedAt: time.Now(),
	})
}

// ReceiveRequest 接收一条请求
//
// 通知立即处理；处理中的询问之后到达的询问被缓存，回复后再派发；
// 视角切换期间除 ChangeSelf 外全部缓存，只有询问受名额限制。
func (r *Room) ReceiveRequest(ctx context.Context, msg PendingMessage) error {
	h, ok := r.dispatcher.Lookup(msg.Command)
	if !ok {
		err := apperrors.New(apperrors.ErrUnknownRequest, msg.Command)
		r.protocolViolation(ctx, msg.Command, err)
		return err
	}
	msg.Ask = h.Ask

	if r.swapping && msg.Command != protocol.ChangeSelf {
		return r.buffer(ctx, msg, true)
	}
	if h.Ask && r.machine.Mode().Awaiting() {
		return r.buffer(ctx, msg, false)
	}

	return r.dispatch(ctx, h, msg)
}

// buffer 缓存消息；询问超出名额时拒绝新消息，当前询问仍可回复
func (r *Room) buffer(ctx context.Context, msg PendingMessage, nested bool) error {
	if err := r.pending.Push(msg, nested); err != nil {
		r.logger.Error("缓存已满，丢弃新的询问",
			zap.String("command", msg.Command),
			zap.Int64("request_id", msg.RequestID),
			zap.String("mode", string(r.machine.Mode())),
			zap.Error(err))
		r.presenter.Notice("无法处理服务器请求 "+msg.Command+": "+err.Error(), true)
		return err
	}
	r.logger.Debug("消息已缓存",
		zap.String("command", msg.Command),
		zap.Int("pending", r.pending.Len()),
		zap.Bool("swapping", r.swapping))
	return nil
}

func (r *Room) dispatch(ctx context.Context, h Handler, msg PendingMessage) error {
	if err := h.Handle(ctx, r, msg); err != nil {
		if apperrors.IsProtocolViolation(err) {
			r.protocolViolation(ctx, msg.Command, err)
		} else {
			r.logger.Warn("处理请求失败", zap.String("command", msg.Command), zap.Error(err))
		}
		return err
	}
	return nil
}

// dispatchMessage 派发缓存消息，不再经过缓存判断
func (r *Room) dispatchMessage(ctx context.Context, msg PendingMessage) error {
	h, ok := r.dispatcher.Lookup(msg.Command)
	if !ok {
		err := apperrors.New(apperrors.ErrUnknownRequest, msg.Command)
		r.protocolViolation(ctx, msg.Command, err)
		return err
	}
	return r.dispatch(ctx, h, msg)
}

// drainPending 空闲时按顺序派发缓存消息；处于询问中时只派发通知
func (r *Room) drainPending(ctx context.Context) error {
	for r.pending.Len() > 0 && !r.swapping {
		next := r.pending.Items()[0]
		h, ok := r.dispatcher.Lookup(next.Command)
		if ok && h.Ask && r.machine.Mode().Awaiting() {
			return nil
		}
		r.pending.Pop()
		if err := r.dispatchMessage(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

// protocolViolation 本轮无法继续：重置到空闲并给出阻塞提示
func (r *Room) protocolViolation(ctx context.Context, command string, err error) {
	r.logger.Error("协议违规，重置本轮",
		zap.String("command", command),
		zap.String("mode", string(r.machine.Mode())),
		zap.Error(err))

	if r.machine.Mode() != ModeIdle {
		if terr := r.machine.Trigger(ctx, EventCancelRequest); terr != nil {
			r.machine.Reset()
		}
	}
	r.resetTurn()
	r.presenter.Notice("无法处理服务器请求 "+command+": "+err.Error(), true)

	// 已缓存的询问仍需回复
	if derr := r.drainPending(ctx); derr != nil {
		r.logger.Warn("派发缓存消息失败", zap.Error(derr))
	}
}

// begin 进入待回复模式并初始化会话
func (r *Room) begin(ctx context.Context, mode Mode, msg PendingMessage) error {
	if err := r.machine.Begin(ctx, mode, msg.Command, msg.RequestID); err != nil {
		return err
	}
	r.closeModal()
	r.session.Reset()
	r.session.Mode = mode
	r.session.Command = msg.Command
	return nil
}

// Confirm 玩家点击确定
func (r *Room) Confirm(ctx context.Context) error {
	switch r.machine.Mode() {
	case ModePlaying, ModeResponding:
		if !r.session.ConfirmEnabled {
			return r.reject(apperrors.New(apperrors.ErrConfirmDisabled))
		}
		data, err := protocol.EncodeStructured(r.session.Candidate, r.session.Targets.IDs(),
			r.session.Method, r.session.Interaction)
		if err != nil {
			return err
		}
		return r.replyAndFinish(ctx, data, EventReply)

	case ModeReplying:
		if r.session.Modal != nil {
			return r.reject(apperrors.New(apperrors.ErrInvalidTransition, "请通过对话框作答"))
		}
		if !r.session.ConfirmEnabled {
			return r.reject(apperrors.New(apperrors.ErrConfirmDisabled))
		}
		if r.session.ExtraData.LuckCard {
			event := EventReply
			if r.session.ExtraData.Time == 1 {
				event = EventInactive
			}
			return r.pushAndFinish(ctx, protocol.LuckCardPush(true), event)
		}
		return r.replyAndFinish(ctx, protocol.ConfirmToken, EventReply)
	}

	return r.reject(apperrors.Newf(apperrors.ErrNotAwaitingReply, "当前模式 %s", r.machine.Mode()))
}

// Cancel 玩家点击取消
func (r *Room) Cancel(ctx context.Context) error {
	switch r.machine.Mode() {
	case ModePlaying:
		// 本地重置，不发送回复
		r.session.ClearSelection()
		r.session.PendingSkill = ""
		r.presenter.EnableCards(".")
		r.refresh()
		return nil

	case ModeResponding:
		if !r.session.CancelEnabled {
			return r.reject(apperrors.New(apperrors.ErrInvalidTransition, "当前询问不可取消"))
		}
		pendingSkill := r.session.PendingSkill
		r.session.ClearSelection()
		r.session.PendingSkill = ""

		if r.cancelSendsReply(pendingSkill) {
			return r.replyAndFinish(ctx, protocol.CancelToken, EventCancel)
		}
		// 重新按原模式启用手牌，让玩家重选
		r.presenter.EnableCards(r.session.Pattern)
		r.refresh()
		r.logger.Debug("取消技能，重新选择", zap.String("pending_skill", pendingSkill))
		return nil

	case ModeReplying:
		if r.session.ExtraData.LuckCard {
			return r.pushAndFinish(ctx, protocol.LuckCardPush(false), EventInactive)
		}
		if !r.session.CancelEnabled {
			return r.reject(apperrors.New(apperrors.ErrInvalidTransition, "当前询问不可取消"))
		}
		return r.replyAndFinish(ctx, protocol.CancelToken, EventCancel)
	}

	return r.reject(apperrors.Newf(apperrors.ErrInvalidTransition, "模式 %s 不能取消", r.machine.Mode()))
}

// cancelSendsReply 按请求类型的取消策略判断是否发送拒绝
func (r *Room) cancelSendsReply(pendingSkill string) bool {
	switch r.policies.CancelPolicyFor(r.session.Command) {
	case config.CancelPolicyReply:
		return true
	case config.CancelPolicyRetry:
		return pendingSkill == ""
	default:
		return r.session.AutoPending || pendingSkill == ""
	}
}

// ForceCancel 服务器取消当前询问，丢弃本地选择
func (r *Room) ForceCancel(ctx context.Context) error {
	if err := r.machine.Trigger(ctx, EventCancelRequest); err != nil {
		return err
	}
	r.resetTurn()
	return r.drainPending(ctx)
}

// AnswerModal 提交对话框结果
func (r *Room) AnswerModal(ctx context.Context, result ModalResult) error {
	if r.machine.Mode() != ModeReplying || r.session.Modal == nil {
		return r.reject(apperrors.New(apperrors.ErrNoActiveModal))
	}
	data, err := encodeModalResult(r.session.Modal, result)
	if err != nil {
		return r.reject(err)
	}
	event := EventReply
	if result.Cancelled {
		event = EventCancel
	}
	return r.replyAndFinish(ctx, data, event)
}

// SelectCandidate 选择候选牌或技能
func (r *Room) SelectCandidate(ctx context.Context, c Candidate) error {
	if err := r.requireSelecting(); err != nil {
		return err
	}
	r.session.Candidate = c
	r.session.Targets.Clear()
	switch {
	case c.Kind == CandidateSkill && !c.IsNone():
		r.session.PendingSkill = c.Name
	case c.IsNone() && !r.session.AutoPending:
		r.session.PendingSkill = ""
	}
	r.refresh()
	return nil
}

// ToggleTarget 选中或取消选中一个座位
func (r *Room) ToggleTarget(ctx context.Context, id int) error {
	if err := r.requireSelecting(); err != nil {
		return err
	}
	if !r.seats.Has(id) {
		return r.reject(apperrors.Newf(apperrors.ErrTargetNotSelectable, "座位 %d 不存在", id))
	}

	if r.session.Targets.Contains(id) {
		r.session.Targets.Remove(id)
		r.refresh()
		return nil
	}

	if !r.session.Selectable[id] {
		return r.reject(apperrors.Newf(apperrors.ErrTargetNotSelectable, "座位 %d", id))
	}
	if err := r.negotiator.Revalidate(r.session, id); err != nil {
		r.session.Selectable[id] = false
		r.presenter.MarkSeat(id, false, false)
		return r.reject(err)
	}

	r.session.Targets.Add(id)
	r.refresh()
	return nil
}

// SetMethod 设置特殊用法（special_skill）
func (r *Room) SetMethod(ctx context.Context, method string) error {
	if err := r.requireSelecting(); err != nil {
		return err
	}
	r.session.Method = method
	return nil
}

// SetInteraction 设置技能交互数据
func (r *Room) SetInteraction(ctx context.Context, data json.RawMessage) error {
	if err := r.requireSelecting(); err != nil {
		return err
	}
	if len(data) > 0 && !json.Valid(data) {
		return r.reject(apperrors.New(apperrors.ErrInvalidParam, "interaction_data 不是合法JSON"))
	}
	r.session.Interaction = append(json.RawMessage(nil), data...)
	return nil
}

func (r *Room) requireSelecting() error {
	switch r.machine.Mode() {
	case ModePlaying, ModeResponding:
		return nil
	}
	return r.reject(apperrors.Newf(apperrors.ErrInvalidTransition, "模式 %s 不能选择", r.machine.Mode()))
}

// refresh 重新协商并同步到界面
func (r *Room) refresh() {
	out := r.negotiator.Negotiate(r.session, r.seats.PlayerIDs(), r.selfID)
	if r.session.Candidate.IsNone() {
		r.session.Targets.Clear()
	}
	r.session.Selectable = out.Selectable
	r.session.ConfirmEnabled = out.Confirm

	for id, selectable := range out.Selectable {
		r.presenter.MarkSeat(id, selectable, r.session.Targets.Contains(id))
	}
	r.presenter.SetConfirmEnabled(out.Confirm)
}

// replyAndFinish 发送回复并结束本轮
func (r *Room) replyAndFinish(ctx context.Context, data string, event string) error {
	ep := r.machine.Episode()
	if ep == nil || ep.Replied {
		return r.reject(apperrors.New(apperrors.ErrNotAwaitingReply))
	}

	pkt := protocol.NewReply(ep.RequestID, ep.Command, data)
	if err := r.transport.Send(ctx, pkt); err != nil {
		// 发送失败保持原状态，允许重试
		r.logger.Error("发送回复失败", zap.String("command", ep.Command), zap.Error(err))
		return err
	}
	return r.finish(ctx, ep.Command, models.ReplyKindReply, data, event)
}

// pushAndFinish 以推送代替回复结束本轮（换牌）
func (r *Room) pushAndFinish(ctx context.Context, data string, event string) error {
	ep := r.machine.Episode()
	if ep == nil || ep.Replied {
		return r.reject(apperrors.New(apperrors.ErrNotAwaitingReply))
	}
	if err := r.transport.Send(ctx, protocol.NewPush(protocol.PushRequest, data)); err != nil {
		r.logger.Error("发送推送失败", zap.String("data", data), zap.Error(err))
		return err
	}
	return r.finish(ctx, ep.Command, models.ReplyKindPush, data, event)
}

func (r *Room) finish(ctx context.Context, command, kind, data, event string) error {
	ep, err := r.machine.MarkReplied()
	if err != nil {
		return err
	}
	logger.LogReply(r.sessionID, ep.ID, command, data)
	r.record(ctx, ep, kind, data)

	r.resetTurn()

	// 有缓存的询问时直接派发，跳过空闲
	if !r.swapping {
		if next, ok := r.pending.Pop(); ok {
			r.machine.SetHandoff(true)
			derr := r.dispatchMessage(ctx, next)
			r.machine.SetHandoff(false)

			if cur := r.machine.Episode(); cur != nil && cur.ID == ep.ID {
				// 缓存消息没有开始新的询问
				if terr := r.machine.Trigger(ctx, event); terr != nil {
					return terr
				}
			}
			if derr != nil {
				return derr
			}
			return r.drainPending(ctx)
		}
	}

	return r.machine.Trigger(ctx, event)
}

func (r *Room) record(ctx context.Context, ep *Episode, kind, data string) {
	if r.journal == nil {
		return
	}
	rec := &models.ReplyRecord{
		SessionID: r.sessionID,
		EpisodeID: ep.ID,
		RequestID: ep.RequestID,
		Command:   ep.Command,
		Kind:      kind,
		Payload:   data,
		SentAt:    time.Now(),
	}
	if err := r.journal.Append(ctx, rec); err != nil {
		r.logger.Warn("记录回复失败", zap.String("episode_id", ep.ID), zap.Error(err))
	}
}

// resetTurn 清空本轮会话并重置界面
func (r *Room) resetTurn() {
	r.closeModal()
	r.session.Reset()
	r.presenter.SetPrompt(Prompt{})
	r.presenter.SetConfirmEnabled(false)
	r.presenter.SetCancelEnabled(false)
	r.presenter.EnableCards("")
	for _, id := range r.seats.PlayerIDs() {
		r.presenter.MarkSeat(id, false, false)
	}
}

func (r *Room) closeModal() {
	if r.session.Modal != nil {
		r.presenter.CloseModal()
		r.session.Modal = nil
	}
}

// openModal 打开对话框；展示层不可用时丢弃对话框并保留取消
func (r *Room) openModal(kind ModalKind, payload interface{}) {
	m := &Modal{Kind: kind, Payload: payload}
	r.session.CancelEnabled = true
	r.presenter.SetCancelEnabled(true)

	if err := r.presenter.ShowModal(m); err != nil {
		r.logger.Warn("对话框无法打开，只能取消本次询问",
			zap.String("modal", string(kind)),
			zap.Error(apperrors.Wrap(err, apperrors.ErrMissingCollaborator)))
		r.session.Modal = nil
		r.presenter.Notice("界面组件不可用，请取消本次询问", false)
		return
	}
	r.session.Modal = m
}

// setPrompt 设置提示
func (r *Room) setPrompt(p Prompt) {
	r.session.Prompt = p
	r.presenter.SetPrompt(p)
}

// setAffordances 设置确定/取消按钮
func (r *Room) setAffordances(confirm, cancel bool) {
	r.session.ConfirmEnabled = confirm
	r.session.CancelEnabled = cancel
	r.presenter.SetConfirmEnabled(confirm)
	r.presenter.SetCancelEnabled(cancel)
}

func (r *Room) reject(err error) error {
	r.logger.Warn("操作被拒绝", zap.String("mode", string(r.machine.Mode())), zap.Error(err))
	return err
}

// Snapshot 会话只读快照
func (r *Room) Snapshot() SessionView {
	s := r.session
	view := SessionView{
		SessionID:      r.sessionID,
		SelfID:         r.selfID,
		Mode:           r.machine.Mode(),
		Command:        s.Command,
		Prompt:         s.Prompt.String(),
		Pattern:        s.Pattern,
		RespondPlay:    s.RespondPlay,
		AutoPending:    s.AutoPending,
		PendingSkill:   s.PendingSkill,
		MustTargets:    append([]int(nil), s.ExtraData.MustTargets...),
		Candidate:      s.Candidate.Value(),
		Targets:        s.Targets.IDs(),
		Method:         s.Method,
		Selectable:     Outcome{Selectable: s.Selectable}.SelectableIDs(),
		ConfirmEnabled: s.ConfirmEnabled,
		CancelEnabled:  s.CancelEnabled,
		Modal:          s.Modal,
		Pending:        r.pending.Len(),
		Swapping:       r.swapping,
		Seats:          r.seats.List(),
		ValidEvents:    r.machine.ValidEvents(),
	}
	if ep := r.machine.Episode(); ep != nil {
		view.EpisodeID = ep.ID
	}
	return view
}

// Restore 从持久化数据恢复；未回复的询问无法恢复界面，直接回到空闲
func (r *Room) Restore(ctx context.Context, persister StatePersister) error {
	data, err := persister.Load(ctx, r.sessionID)
	if err != nil {
		return err
	}
	r.machine.LoadFromData(data)
	r.selfID = data.SelfID
	if data.CurrentMode.Awaiting() {
		r.logger.Warn("上次询问未完成，等待服务器重新询问",
			zap.String("mode", string(data.CurrentMode)))
		r.machine.Reset()
	}
	r.session.Reset()
	return nil
}
