package protocol

import "sort"

// 询问类命令（客户端欠服务器一次回复）
const (
	AskForGeneral         = "AskForGeneral"
	AskForSkillInvoke     = "AskForSkillInvoke"
	AskForGuanxing        = "AskForGuanxing"
	AskForChoice          = "AskForChoice"
	AskForCardChosen      = "AskForCardChosen"
	AskForCardsChosen     = "AskForCardsChosen"
	AskForMoveCardInBoard = "AskForMoveCardInBoard"
	AskForUseActiveSkill  = "AskForUseActiveSkill"
	AskForUseCard         = "AskForUseCard"
	AskForResponseCard    = "AskForResponseCard"
	AskForAG              = "AskForAG"
	CustomDialog          = "CustomDialog"
	AskForLuckCard        = "AskForLuckCard"
	PlayCard              = "PlayCard"
)

// 通知类命令
const (
	CancelRequest        = "CancelRequest"
	WaitForNullification = "WaitForNullification"
	GameOver             = "GameOver"
	AddPlayer            = "AddPlayer"
	RemovePlayer         = "RemovePlayer"
	RoomOwner            = "RoomOwner"
	PropertyUpdate       = "PropertyUpdate"
	StartGame            = "StartGame"
	ArrangeSeats         = "ArrangeSeats"
	PlayerRunned         = "PlayerRunned"
	StartChangeSelf      = "StartChangeSelf"
	ChangeSelf           = "ChangeSelf"
	FillAG               = "FillAG"
	CloseAG              = "CloseAG"
)

// PushRequest 客户端推送命令
const PushRequest = "PushRequest"

var askKinds = map[string]bool{
	AskForGeneral:         true,
	AskForSkillInvoke:     true,
	AskForGuanxing:        true,
	AskForChoice:          true,
	AskForCardChosen:      true,
	AskForCardsChosen:     true,
	AskForMoveCardInBoard: true,
	AskForUseActiveSkill:  true,
	AskForUseCard:         true,
	AskForResponseCard:    true,
	AskForAG:              true,
	CustomDialog:          true,
	AskForLuckCard:        true,
	PlayCard:              true,
}

var notifyKinds = map[string]bool{
	CancelRequest:        true,
	WaitForNullification: true,
	GameOver:             true,
	AddPlayer:            true,
	RemovePlayer:         true,
	RoomOwner:            true,
	PropertyUpdate:       true,
	StartGame:            true,
	ArrangeSeats:         true,
	PlayerRunned:         true,
	StartChangeSelf:      true,
	ChangeSelf:           true,
	FillAG:               true,
	CloseAG:              true,
}

// IsAsk 是否为询问类命令
func IsAsk(command string) bool {
	return askKinds[command]
}

// IsNotify 是否为通知类命令
func IsNotify(command string) bool {
	return notifyKinds[command]
}

// AskKinds 返回全部询问类命令（已排序）
func AskKinds() []string {
	return sortedKeys(askKinds)
}

// NotifyKinds 返回全部通知类命令（已排序）
func NotifyKinds() []string {
	return sortedKeys(notifyKinds)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
