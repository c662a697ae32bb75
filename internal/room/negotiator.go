package room

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// Outcome 一次协商的结果
type Outcome struct {
	Selectable map[int]bool
	Confirm    bool
}

// SelectableIDs 返回可选座位（已排序）
func (o Outcome) SelectableIDs() []int {
	ids := make([]int, 0, len(o.Selectable))
	for id, ok := range o.Selectable {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Negotiator 目标选择协商器
//
// 每次候选或目标变化后重新计算座位可选性和确认按钮。
type Negotiator struct {
	oracle Oracle
	logger *zap.Logger
}

// NewNegotiator 创建协商器
func NewNegotiator(oracle Oracle, logger *zap.Logger) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{oracle: oracle, logger: logger}
}

// pass 单次协商内的查询缓存，保证同一问题只问一次
type pass struct {
	n    *Negotiator
	memo map[string]bool
}

func (n *Negotiator) newPass() *pass {
	return &pass{n: n, memo: make(map[string]bool)}
}

func (p *pass) ask(key string, query func() (bool, error)) bool {
	if v, ok := p.memo[key]; ok {
		return v
	}
	v, err := query()
	if err != nil {
		// 规则引擎出错时按不可行处理
		p.n.logger.Warn("规则查询失败，按不可行处理",
			zap.String("query", key),
			zap.Error(apperrors.Wrap(err, apperrors.ErrOracleDisagreement)))
		v = false
	}
	p.memo[key] = v
	return v
}

func (p *pass) canTarget(c Candidate, seat int, selected []int) bool {
	key := "target|" + c.String() + "|" + strconv.Itoa(seat) + "|" + joinInts(selected)
	return p.ask(key, func() (bool, error) { return p.n.oracle.CanTarget(c, seat, selected) })
}

func (p *pass) feasible(c Candidate, selected []int) bool {
	key := "feasible|" + c.String() + "|" + joinInts(selected)
	return p.ask(key, func() (bool, error) { return p.n.oracle.Feasible(c, selected) })
}

func (p *pass) fitsPattern(c Candidate, pattern string) bool {
	key := "pattern|" + c.String() + "|" + pattern
	return p.ask(key, func() (bool, error) { return p.n.oracle.FitsPattern(c, pattern) })
}

func (p *pass) usable(c Candidate, self int) bool {
	key := "usable|" + c.String() + "|" + strconv.Itoa(self)
	return p.ask(key, func() (bool, error) { return p.n.oracle.Usable(c, self) })
}

// Negotiate 按当前会话重新计算，不修改会话
func (n *Negotiator) Negotiate(s *Session, seats []int, self int) Outcome {
	return n.negotiate(n.newPass(), s, seats, self)
}

func (n *Negotiator) negotiate(p *pass, s *Session, seats []int, self int) Outcome {
	out := Outcome{Selectable: make(map[int]bool, len(seats))}

	// 1. 无候选：全部不可选
	if s.Candidate.IsNone() {
		for _, seat := range seats {
			out.Selectable[seat] = false
		}
		return out
	}

	selected := s.Targets.IDs()

	// 打出类响应没有目标，只看是否匹配模式
	if s.RespondPlay {
		for _, seat := range seats {
			out.Selectable[seat] = false
		}
		out.Confirm = p.fitsPattern(s.Candidate, s.Pattern)
		out.Confirm = out.Confirm && s.Targets.ContainsAll(s.ExtraData.MustTargets)
		return out
	}

	// 2. 已选座位保持可选，其余逐个询问
	for _, seat := range seats {
		if s.Targets.Contains(seat) {
			out.Selectable[seat] = true
			continue
		}
		out.Selectable[seat] = p.canTarget(s.Candidate, seat, selected)
	}

	// 3. 可行性
	out.Confirm = p.feasible(s.Candidate, selected)

	// 4. 响应需匹配模式，出牌需可用
	if out.Confirm {
		switch s.Mode {
		case ModeResponding:
			out.Confirm = p.fitsPattern(s.Candidate, s.Pattern)
		case ModePlaying:
			out.Confirm = p.usable(s.Candidate, self)
		}
	}

	// 5. 必选目标全部选中才可确认
	if out.Confirm && s.ExtraData.HasMustTargets() {
		out.Confirm = s.Targets.ContainsAll(s.ExtraData.MustTargets)
	}

	return out
}

// Revalidate 选中前复查座位，规则引擎与上次结果不一致时返回错误
func (n *Negotiator) Revalidate(s *Session, seat int) error {
	if s.Candidate.IsNone() {
		return apperrors.New(apperrors.ErrTargetNotSelectable, "没有候选牌")
	}
	p := n.newPass()
	if !p.canTarget(s.Candidate, seat, s.Targets.IDs()) {
		return apperrors.Newf(apperrors.ErrOracleDisagreement, "座位 %d 复查不可选", seat)
	}
	return nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
