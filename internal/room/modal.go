package room

import (
	"bytes"
	"encoding/json"
	"strconv"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/protocol"
)

// ModalKind 对话框类型
type ModalKind string

const (
	ModalGeneral         ModalKind = "general"
	ModalChoice          ModalKind = "choice"
	ModalCardChosen      ModalKind = "card_chosen"
	ModalCardsChosen     ModalKind = "cards_chosen"
	ModalGuanxing        ModalKind = "guanxing"
	ModalMoveCardInBoard ModalKind = "move_card_in_board"
	ModalAG              ModalKind = "ag"
	ModalCustom          ModalKind = "custom_dialog"
)

// Modal 当前打开的对话框
type Modal struct {
	Kind    ModalKind   `json:"kind"`
	Payload interface{} `json:"payload"`
}

// ModalResult 对话框的结果：一个选择，或取消
type ModalResult struct {
	Value     json.RawMessage `json:"value,omitempty"`
	Cancelled bool            `json:"cancelled"`
}

// encodeModalResult 按对话框类型校验并编码结果
func encodeModalResult(m *Modal, r ModalResult) (string, error) {
	if r.Cancelled {
		return protocol.CancelToken, nil
	}
	if len(bytes.TrimSpace(r.Value)) == 0 {
		return "", apperrors.New(apperrors.ErrInvalidAnswer, "缺少value")
	}

	switch m.Kind {
	case ModalGeneral:
		p := m.Payload.(*protocol.GeneralChoice)
		var names []string
		if err := json.Unmarshal(r.Value, &names); err != nil {
			// 单选时允许直接给出武将名
			var one string
			if json.Unmarshal(r.Value, &one) != nil {
				return "", invalidAnswer(err)
			}
			names = []string{one}
		}
		if len(names) != p.Count {
			return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "需要选择%d名武将", p.Count)
		}
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			if seen[n] || !containsString(p.Generals, n) {
				return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "武将不可选: %s", n)
			}
			seen[n] = true
		}
		return protocol.EncodeScalarJSON(names)

	case ModalChoice:
		p := m.Payload.(*protocol.Choice)
		var idx int
		if err := json.Unmarshal(r.Value, &idx); err == nil {
			if idx < 0 || idx >= len(p.Options) {
				return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "选项下标越界: %d", idx)
			}
			return p.Options[idx], nil
		}
		var option string
		if err := json.Unmarshal(r.Value, &option); err != nil {
			return "", invalidAnswer(err)
		}
		if !containsString(p.Options, option) {
			return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "选项不存在: %s", option)
		}
		return option, nil

	case ModalCardChosen:
		p := m.Payload.(*protocol.CardChosen)
		var id int
		if err := json.Unmarshal(r.Value, &id); err != nil {
			return "", invalidAnswer(err)
		}
		if !p.Contains(id) {
			return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "卡牌不可选: %d", id)
		}
		return protocol.EncodeScalarInt(id), nil

	case ModalCardsChosen:
		p := m.Payload.(*protocol.CardsChosen)
		var ids []int
		if err := json.Unmarshal(r.Value, &ids); err != nil {
			return "", invalidAnswer(err)
		}
		if len(ids) < p.Min || len(ids) > p.Max {
			return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "需要选择%d到%d张牌", p.Min, p.Max)
		}
		seen := make(map[int]bool, len(ids))
		for _, id := range ids {
			if seen[id] || !p.Contains(id) {
				return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "卡牌不可选: %d", id)
			}
			seen[id] = true
		}
		return protocol.EncodeScalarJSON(ids)

	case ModalAG:
		ids, _ := m.Payload.([]int)
		var id int
		if err := json.Unmarshal(r.Value, &id); err != nil {
			return "", invalidAnswer(err)
		}
		if !containsInt(ids, id) {
			return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "卡牌不在AG中: %d", id)
		}
		return strconv.Itoa(id), nil

	case ModalGuanxing, ModalMoveCardInBoard:
		return compactAnswer(r.Value)

	case ModalCustom:
		var s string
		if err := json.Unmarshal(r.Value, &s); err == nil {
			return s, nil
		}
		return compactAnswer(r.Value)
	}

	return "", apperrors.Newf(apperrors.ErrInvalidAnswer, "未知的对话框类型: %s", m.Kind)
}

func compactAnswer(raw json.RawMessage) (string, error) {
	out, err := protocol.CompactJSON(raw)
	if err != nil {
		return "", apperrors.New(apperrors.ErrInvalidAnswer).WithCause(err)
	}
	return out, nil
}

func invalidAnswer(err error) error {
	return apperrors.Wrap(err, apperrors.ErrInvalidAnswer)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
