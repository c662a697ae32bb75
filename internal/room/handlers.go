package room

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/protocol"
)

// builtinHandlers 内置的请求处理器
func builtinHandlers() []Handler {
	return []Handler{
		// 询问
		{Kind: protocol.AskForGeneral, Ask: true, Handle: handleAskForGeneral},
		{Kind: protocol.AskForSkillInvoke, Ask: true, Handle: handleAskForSkillInvoke},
		{Kind: protocol.AskForGuanxing, Ask: true, Handle: handleAskForGuanxing},
		{Kind: protocol.AskForChoice, Ask: true, Handle: handleAskForChoice},
		{Kind: protocol.AskForCardChosen, Ask: true, Handle: handleAskForCardChosen},
		{Kind: protocol.AskForCardsChosen, Ask: true, Handle: handleAskForCardsChosen},
		{Kind: protocol.AskForMoveCardInBoard, Ask: true, Handle: handleAskForMoveCardInBoard},
		{Kind: protocol.AskForUseActiveSkill, Ask: true, Handle: handleAskForUseActiveSkill},
		{Kind: protocol.AskForUseCard, Ask: true, Handle: handleAskForUseCard},
		{Kind: protocol.AskForResponseCard, Ask: true, Handle: handleAskForUseCard},
		{Kind: protocol.AskForAG, Ask: true, Handle: handleAskForAG},
		{Kind: protocol.CustomDialog, Ask: true, Handle: handleCustomDialog},
		{Kind: protocol.AskForLuckCard, Ask: true, Handle: handleAskForLuckCard},
		{Kind: protocol.PlayCard, Ask: true, Handle: handlePlayCard},

		// 通知
		{Kind: protocol.CancelRequest, Handle: handleCancelRequest},
		{Kind: protocol.WaitForNullification, Handle: handleWaitForNullification},
		{Kind: protocol.GameOver, Handle: handleGameOver},
		{Kind: protocol.AddPlayer, Handle: handleAddPlayer},
		{Kind: protocol.RemovePlayer, Handle: handleRemovePlayer},
		{Kind: protocol.RoomOwner, Handle: handleRoomOwner},
		{Kind: protocol.PropertyUpdate, Handle: handlePropertyUpdate},
		{Kind: protocol.StartGame, Handle: handleStartGame},
		{Kind: protocol.ArrangeSeats, Handle: handleArrangeSeats},
		{Kind: protocol.PlayerRunned, Handle: handlePlayerRunned},
		{Kind: protocol.StartChangeSelf, Handle: handleStartChangeSelf},
		{Kind: protocol.ChangeSelf, Handle: handleChangeSelf},
		{Kind: protocol.FillAG, Handle: handleFillAG},
		{Kind: protocol.CloseAG, Handle: handleCloseAG},
	}
}

// beginModal 进入对话框询问并打开对话框
func (r *Room) beginModal(ctx context.Context, msg PendingMessage, prompt Prompt, kind ModalKind, payload interface{}) error {
	if err := r.begin(ctx, ModeReplying, msg); err != nil {
		return err
	}
	r.setPrompt(prompt)
	r.setAffordances(false, true)
	r.openModal(kind, payload)
	return nil
}

func handleAskForGeneral(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeGeneralChoice(msg.Data)
	if err != nil {
		return err
	}
	return r.beginModal(ctx, msg, DefaultPrompt("#AskForGeneral", strconv.Itoa(p.Count)), ModalGeneral, p)
}

func handleAskForSkillInvoke(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeSkillInvoke(msg.Data)
	if err != nil {
		return err
	}
	if err := r.begin(ctx, ModeReplying, msg); err != nil {
		return err
	}
	r.setPrompt(PromptOr(p.Prompt, "#AskForSkillInvoke", p.Skill))
	r.setAffordances(true, true)
	return nil
}

func handleAskForGuanxing(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeGuanxing(msg.Data)
	if err != nil {
		return err
	}
	return r.beginModal(ctx, msg, DefaultPrompt("#AskForGuanxing", ""), ModalGuanxing, p)
}

func handleAskForChoice(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeChoice(msg.Data)
	if err != nil {
		return err
	}
	return r.beginModal(ctx, msg, PromptOr(p.Prompt, "#AskForChoice", p.Skill), ModalChoice, p)
}

func handleAskForCardChosen(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeCardChosen(msg.Data)
	if err != nil {
		return err
	}
	return r.beginModal(ctx, msg, DefaultPrompt("#AskForChooseCard", p.Reason), ModalCardChosen, p)
}

func handleAskForCardsChosen(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeCardsChosen(msg.Data)
	if err != nil {
		return err
	}
	return r.beginModal(ctx, msg, DefaultPrompt("#AskForChooseCards", p.Reason), ModalCardsChosen, p)
}

func handleAskForMoveCardInBoard(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeMoveCardInBoard(msg.Data)
	if err != nil {
		return err
	}
	return r.beginModal(ctx, msg, DefaultPrompt("#AskForMoveCardInBoard", ""), ModalMoveCardInBoard, p)
}

func handleAskForUseActiveSkill(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeUseActiveSkill(msg.Data)
	if err != nil {
		return err
	}
	extra, err := ParseExtraData(p.ExtraData)
	if err != nil {
		return err
	}
	if err := r.begin(ctx, ModeResponding, msg); err != nil {
		return err
	}

	s := r.session
	s.Pattern = "."
	s.AutoPending = true
	s.PendingSkill = p.Skill
	s.ExtraData = extra
	s.Candidate = SkillCandidate(p.Skill)

	r.setPrompt(PromptOr(p.Prompt, "#AskForUseActiveSkill", p.Skill))
	r.setAffordances(false, p.Cancelable)
	r.presenter.EnableCards(s.Pattern)
	r.refresh()
	return nil
}

// handleAskForUseCard 处理使用牌和打出牌两种响应
func handleAskForUseCard(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeUseCard(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	extra, err := ParseExtraData(p.ExtraData)
	if err != nil {
		return err
	}
	if err := r.begin(ctx, ModeResponding, msg); err != nil {
		return err
	}

	s := r.session
	s.Pattern = p.Pattern
	s.RespondPlay = msg.Command == protocol.AskForResponseCard
	s.ExtraData = extra

	key := "#AskForUseCard"
	if s.RespondPlay {
		key = "#AskForResponseCard"
	}
	r.setPrompt(PromptOr(p.Prompt, key, p.CardName))
	r.setAffordances(false, p.Cancelable)
	r.presenter.EnableCards(s.Pattern)
	r.refresh()
	return nil
}

func handleAskForAG(ctx context.Context, r *Room, msg PendingMessage) error {
	if len(r.session.AG) == 0 {
		return apperrors.New(apperrors.ErrMalformedPayload, "AskForAG 之前没有 FillAG")
	}
	ids := append([]int(nil), r.session.AG...)
	return r.beginModal(ctx, msg, DefaultPrompt("#AskForAG", ""), ModalAG, ids)
}

func handleCustomDialog(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeCustomDialog(msg.Data)
	if err != nil {
		return err
	}
	return r.beginModal(ctx, msg, DefaultPrompt("#CustomDialog", p.Path), ModalCustom, p)
}

func handleAskForLuckCard(ctx context.Context, r *Room, msg PendingMessage) error {
	times, err := protocol.DecodeInt(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	if err := r.begin(ctx, ModeReplying, msg); err != nil {
		return err
	}
	r.session.ExtraData = LuckCardExtra(times)
	r.setPrompt(DefaultPrompt("#AskForLuckCard", strconv.Itoa(times)))
	r.setAffordances(true, true)
	return nil
}

// handlePlayCard 出牌阶段，只处理发给自己的
func handlePlayCard(ctx context.Context, r *Room, msg PendingMessage) error {
	id, err := protocol.DecodeInt(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	if id != r.selfID {
		r.logger.Debug("其他玩家的出牌阶段", zap.Int("player_id", id))
		return nil
	}
	if err := r.begin(ctx, ModePlaying, msg); err != nil {
		return err
	}
	r.session.Pattern = "."
	r.setPrompt(DefaultPrompt("#PlayCard", ""))
	r.setAffordances(false, false)
	r.presenter.EnableCards(r.session.Pattern)
	r.refresh()
	return nil
}

func handleCancelRequest(ctx context.Context, r *Room, msg PendingMessage) error {
	return r.ForceCancel(ctx)
}

func handleWaitForNullification(ctx context.Context, r *Room, msg PendingMessage) error {
	if err := r.machine.Trigger(ctx, EventInactive); err != nil {
		return err
	}
	r.resetTurn()
	return nil
}

func handleGameOver(ctx context.Context, r *Room, msg PendingMessage) error {
	if err := r.machine.Trigger(ctx, EventInactive); err != nil {
		return err
	}
	r.resetTurn()
	r.pending.Clear()
	r.presenter.Notice("#GameOver", true)
	r.logger.Info("游戏结束", zap.String("data", msg.Data))
	return nil
}

func handleAddPlayer(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodeAddPlayer(msg.Data)
	if err != nil {
		return err
	}
	if !r.seats.AddPlayer(p.ID, p.ScreenName, p.Avatar) {
		r.logger.Warn("没有空座位", zap.Int("player_id", p.ID))
		return nil
	}
	r.refreshIfSelecting()
	return nil
}

func handleRemovePlayer(ctx context.Context, r *Room, msg PendingMessage) error {
	id, err := protocol.DecodeFirstID(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	if !r.seats.RemovePlayer(id) {
		return nil
	}
	r.session.Targets.Remove(id)
	delete(r.session.Selectable, id)
	r.presenter.MarkSeat(id, false, false)
	r.refreshIfSelecting()
	return nil
}

func handleRoomOwner(ctx context.Context, r *Room, msg PendingMessage) error {
	id, err := protocol.DecodeFirstID(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	r.seats.SetOwner(id)
	return nil
}

func handlePropertyUpdate(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodePropertyUpdate(msg.Data)
	if err != nil {
		return err
	}
	if !r.seats.UpdateProperty(p.ID, p.Property, p.Value) {
		r.logger.Debug("属性更新的玩家不在座", zap.Int("player_id", p.ID), zap.String("property", p.Property))
	}
	return nil
}

func handleStartGame(ctx context.Context, r *Room, msg PendingMessage) error {
	r.seats.StartGame()
	return nil
}

func handleArrangeSeats(ctx context.Context, r *Room, msg PendingMessage) error {
	order, err := protocol.DecodeIDList(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	r.seats.Arrange(order, r.selfID)
	r.refreshIfSelecting()
	return nil
}

func handlePlayerRunned(ctx context.Context, r *Room, msg PendingMessage) error {
	p, err := protocol.DecodePlayerRunned(msg.Data)
	if err != nil {
		return err
	}
	if !r.seats.Runned(p.Runner, p.Robot) {
		return nil
	}
	r.session.Targets.Remove(p.Runner)
	delete(r.session.Selectable, p.Runner)
	r.presenter.MarkSeat(p.Runner, false, false)
	r.refreshIfSelecting()
	return nil
}

// handleStartChangeSelf 请求切换视角，之后到达的消息在 ChangeSelf 之前全部缓存
func handleStartChangeSelf(ctx context.Context, r *Room, msg PendingMessage) error {
	id, err := protocol.DecodeInt(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	if err := r.transport.Send(ctx, protocol.NewPush(protocol.PushRequest, protocol.ChangeSelfPush(id))); err != nil {
		return err
	}
	r.swapping = true
	r.logger.Info("开始切换视角", zap.Int("from", r.selfID), zap.Int("to", id))
	return nil
}

func handleChangeSelf(ctx context.Context, r *Room, msg PendingMessage) error {
	id, err := protocol.DecodeInt(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	r.swapping = false
	if id != r.selfID {
		r.selfID = id
		r.machine.SetSelf(id)
		r.seats.Arrange(r.seats.Order(), id)
		r.refreshIfSelecting()
		r.logger.Info("视角已切换", zap.Int("self_id", id))
	}
	return r.drainPending(ctx)
}

func handleFillAG(ctx context.Context, r *Room, msg PendingMessage) error {
	ids, err := protocol.DecodeIDs(msg.Command, msg.Data)
	if err != nil {
		return err
	}
	r.session.AG = ids
	return nil
}

func handleCloseAG(ctx context.Context, r *Room, msg PendingMessage) error {
	r.session.AG = nil
	if r.session.Modal != nil && r.session.Modal.Kind == ModalAG {
		r.closeModal()
	}
	return nil
}

// refreshIfSelecting 座位变化后重新协商
func (r *Room) refreshIfSelecting() {
	switch r.machine.Mode() {
	case ModePlaying, ModeResponding:
		r.refresh()
	}
}
