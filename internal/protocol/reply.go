package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// CancelToken 明确拒绝的回复
const CancelToken = "__cancel"

// ConfirmToken 确认类询问（技能发动等）的回复
const ConfirmToken = "1"

// StructuredReply 出牌/响应路径的回复
type StructuredReply struct {
	Card            json.RawMessage `json:"card"`
	Targets         []int           `json:"targets"`
	SpecialSkill    *string         `json:"special_skill"`
	InteractionData json.RawMessage `json:"interaction_data"`
}

// EncodeStructured 编码结构化回复
//
// card 为候选牌的JSON表示；method 为空时编码为 null；
// interaction 为空时编码为 null；targets 保持选择顺序。
func EncodeStructured(card json.Marshaler, targets []int, method string, interaction json.RawMessage) (string, error) {
	cardJSON, err := card.MarshalJSON()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrEncodeReply, "card")
	}

	r := StructuredReply{
		Card:    cardJSON,
		Targets: targets,
	}
	if r.Targets == nil {
		r.Targets = []int{}
	}
	if method != "" {
		r.SpecialSkill = &method
	}
	if len(bytes.TrimSpace(interaction)) > 0 {
		if !json.Valid(interaction) {
			return "", apperrors.New(apperrors.ErrEncodeReply, "interaction_data 不是合法JSON")
		}
		r.InteractionData = interaction
	} else {
		r.InteractionData = json.RawMessage("null")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrEncodeReply)
	}
	return string(data), nil
}

// EncodeScalarInt 编码整数标量回复（卡牌id等）
func EncodeScalarInt(n int) string {
	return strconv.Itoa(n)
}

// EncodeScalarBool 编码布尔标量回复
func EncodeScalarBool(b bool) string {
	if b {
		return ConfirmToken
	}
	return "0"
}

// EncodeScalarJSON 编码列表类标量回复
func EncodeScalarJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrEncodeReply)
	}
	return string(data), nil
}

// CompactJSON 校验并压缩透传的JSON结果
func CompactJSON(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrEncodeReply, "透传结果不是合法JSON")
	}
	return buf.String(), nil
}

// LuckCardPush 构造换牌推送数据
func LuckCardPush(accept bool) string {
	if accept {
		return "luckcard,true"
	}
	return "luckcard,false"
}

// ChangeSelfPush 构造切换视角推送数据
func ChangeSelfPush(id int) string {
	return "changeself," + strconv.Itoa(id)
}
