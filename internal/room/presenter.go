package room

// Presenter 展示层协作者，核心只发出命令，不等待其完成
type Presenter interface {
	SetPrompt(prompt Prompt)
	SetConfirmEnabled(enabled bool)
	SetCancelEnabled(enabled bool)
	// MarkSeat 标记座位是否可选、是否已选
	MarkSeat(playerID int, selectable, selected bool)
	// EnableCards 按模式启用手牌，空串表示全部禁用
	EnableCards(pattern string)
	// ShowModal 打开对话框，失败时返回错误
	ShowModal(modal *Modal) error
	CloseModal()
	// Notice 显示提示，blocking 为真时需要玩家确认
	Notice(message string, blocking bool)
}

// NopPresenter 不做任何展示
type NopPresenter struct{}

func (NopPresenter) SetPrompt(Prompt) {}
func (NopPresenter) SetConfirmEnabled(bool) {}
func (NopPresenter) SetCancelEnabled(bool) {}
func (NopPresenter) MarkSeat(int, bool, bool) {}
func (NopPresenter) EnableCards(string) {}
func (NopPresenter) ShowModal(*Modal) error { return nil }
func (NopPresenter) CloseModal() {}
func (NopPresenter) Notice(string, bool) {}
