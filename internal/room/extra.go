package room

import (
	"bytes"
	"encoding/json"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// ExtraData 询问附带的额外数据
//
// must_targets 单独解析，其余技能相关字段原样保存在 Raw 中。
type ExtraData struct {
	MustTargets []int                      `json:"must_targets,omitempty"`
	LuckCard    bool                       `json:"luck_card,omitempty"`
	Time        int                        `json:"time,omitempty"`
	Raw         map[string]json.RawMessage `json:"raw,omitempty"`
}

// ParseExtraData 解析额外数据，非对象的负载视为空
func ParseExtraData(raw json.RawMessage) (ExtraData, error) {
	var ed ExtraData
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ed, nil
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return ed, apperrors.Wrap(err, apperrors.ErrMalformedPayload, "extra_data")
	}
	if must, ok := fields["must_targets"]; ok {
		// 只有数组形式才生效
		if bytes.HasPrefix(bytes.TrimSpace(must), []byte("[")) {
			ed.MustTargets = []int{}
			if err := json.Unmarshal(must, &ed.MustTargets); err != nil {
				return ExtraData{}, apperrors.Wrap(err, apperrors.ErrMalformedPayload, "must_targets")
			}
		}
		delete(fields, "must_targets")
	}
	if len(fields) > 0 {
		ed.Raw = fields
	}
	return ed, nil
}

// LuckCardExtra 换牌询问的额外数据
func LuckCardExtra(time int) ExtraData {
	return ExtraData{LuckCard: true, Time: time}
}

// HasMustTargets 是否声明了必选目标
func (e ExtraData) HasMustTargets() bool {
	return e.MustTargets != nil
}
