package room

import (
	"encoding/json"
	"strconv"
)

// CandidateKind 候选类型
type CandidateKind string

const (
	CandidateNone    CandidateKind = "none"
	CandidateCard    CandidateKind = "card"    // 实体卡牌id
	CandidateVirtual CandidateKind = "virtual" // 虚拟牌模式串
	CandidateSkill   CandidateKind = "skill"   // 特殊技能名
)

// Candidate 当前选中的卡牌或技能，同一时刻至多一个
type Candidate struct {
	Kind CandidateKind `json:"kind"`
	ID   int           `json:"id,omitempty"`
	Name string        `json:"name,omitempty"`
}

// NoCandidate 空候选
func NoCandidate() Candidate { return Candidate{Kind: CandidateNone} }

// CardCandidate 实体卡牌候选
func CardCandidate(id int) Candidate { return Candidate{Kind: CandidateCard, ID: id} }

// VirtualCandidate 虚拟牌候选
func VirtualCandidate(pattern string) Candidate {
	return Candidate{Kind: CandidateVirtual, Name: pattern}
}

// SkillCandidate 技能候选
func SkillCandidate(name string) Candidate { return Candidate{Kind: CandidateSkill, Name: name} }

// IsNone 是否为空
func (c Candidate) IsNone() bool {
	switch c.Kind {
	case CandidateCard:
		return c.ID < 0
	case CandidateVirtual, CandidateSkill:
		return c.Name == ""
	default:
		return true
	}
}

// Value 返回传给规则引擎和回复的值：int、string 或 -1
func (c Candidate) Value() interface{} {
	if c.IsNone() {
		return -1
	}
	if c.Kind == CandidateCard {
		return c.ID
	}
	return c.Name
}

// MarshalJSON 卡牌编码为数字，空候选为 -1，其余为字符串
func (c Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value())
}

// String 用作缓存键和日志
func (c Candidate) String() string {
	if c.IsNone() {
		return "none"
	}
	if c.Kind == CandidateCard {
		return "card:" + strconv.Itoa(c.ID)
	}
	return string(c.Kind) + ":" + c.Name
}

// ParseCandidate 从控制接口的JSON值解析候选
//
// 数字为卡牌id（-1 为空），字符串默认视为虚拟牌，kind 可显式指定。
func ParseCandidate(raw json.RawMessage, kind string) (Candidate, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return NoCandidate(), nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return NoCandidate(), nil
		}
		return CardCandidate(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return NoCandidate(), err
	}
	if s == "" {
		return NoCandidate(), nil
	}
	if CandidateKind(kind) == CandidateSkill {
		return SkillCandidate(s), nil
	}
	return VirtualCandidate(s), nil
}
