// Package rules 基于 Lua 脚本的规则引擎
package rules

import (
	_ "embed"
	"sync"

	"github.com/Shopify/go-lua"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/room"
)

//go:embed default.lua
var defaultScript string

// 脚本必须定义的全局函数
const (
	fnCanTarget   = "CanUseCardToTarget"
	fnFeasible    = "CardFeasible"
	fnFitPattern  = "CardFitPattern"
	fnCanUseCard  = "CanUseCard"
	cardNamesName = "CardNames"
)

var requiredFunctions = []string{fnCanTarget, fnFeasible, fnFitPattern, fnCanUseCard}

// LuaOracle 实现 room.Oracle
//
// lua.State 不是并发安全的，全部调用串行执行。
type LuaOracle struct {
	mu     sync.Mutex
	state  *lua.State
	script string // 脚本路径，空为内置
	cards  map[int]string
	logger *zap.Logger
}

var _ room.Oracle = (*LuaOracle)(nil)

// New 加载规则脚本，path 为空时使用内置脚本
func New(path string) (*LuaOracle, error) {
	o := &LuaOracle{
		cards:  make(map[int]string),
		logger: logger.GetModuleLogger(logger.ModuleRules),
	}
	state, err := o.load(path)
	if err != nil {
		return nil, err
	}
	o.state = state
	o.script = path
	o.logger.Info("规则脚本已加载", zap.String("script", scriptName(path)))
	return o, nil
}

// Reload 重新加载脚本，失败时保留原脚本
func (o *LuaOracle) Reload(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, err := o.load(path)
	if err != nil {
		o.logger.Error("重新加载规则脚本失败", zap.String("script", scriptName(path)), zap.Error(err))
		return err
	}
	o.state = state
	o.script = path
	o.logger.Info("规则脚本已重新加载", zap.String("script", scriptName(path)))
	return nil
}

// Script 当前脚本路径
func (o *LuaOracle) Script() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.script
}

func (o *LuaOracle) load(path string) (*lua.State, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)

	var err error
	if path == "" {
		err = lua.DoString(l, defaultScript)
	} else {
		err = lua.DoFile(l, path)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrOracleScript, "加载脚本失败: "+scriptName(path))
	}

	for _, name := range requiredFunctions {
		l.Global(name)
		ok := l.IsFunction(-1)
		l.Pop(1)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrOracleScript, "脚本缺少函数 %s", name)
		}
	}

	// 已登记的卡牌名同步到新脚本
	for id, name := range o.cards {
		setCardName(l, id, name)
	}
	return l, nil
}

// RegisterCard 登记实体卡牌的牌名
func (o *LuaOracle) RegisterCard(id int, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cards[id] = name
	setCardName(o.state, id, name)
}

// SetCards 用配置里的牌名替换全部登记
func (o *LuaOracle) SetCards(names map[int]string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cards = make(map[int]string, len(names))
	o.state.NewTable()
	o.state.SetGlobal(cardNamesName)
	for id, name := range names {
		o.cards[id] = name
		setCardName(o.state, id, name)
	}
	o.logger.Info("卡牌登记已更新", zap.Int("count", len(names)))
}

// CardName 查询已登记的牌名
func (o *LuaOracle) CardName(id int) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	name, ok := o.cards[id]
	return name, ok
}

func setCardName(l *lua.State, id int, name string) {
	l.Global(cardNamesName)
	if !l.IsTable(-1) {
		l.Pop(1)
		l.NewTable()
		l.PushValue(-1)
		l.SetGlobal(cardNamesName)
	}
	l.PushString(name)
	l.RawSetInt(-2, id)
	l.Pop(1)
}

// CanTarget 实现 room.Oracle
func (o *LuaOracle) CanTarget(card room.Candidate, target int, selected []int) (bool, error) {
	return o.call(fnCanTarget, func(l *lua.State) int {
		pushCandidate(l, card)
		l.PushInteger(target)
		pushIntList(l, selected)
		return 3
	})
}

// Feasible 实现 room.Oracle
func (o *LuaOracle) Feasible(card room.Candidate, selected []int) (bool, error) {
	return o.call(fnFeasible, func(l *lua.State) int {
		pushCandidate(l, card)
		pushIntList(l, selected)
		return 2
	})
}

// FitsPattern 实现 room.Oracle
func (o *LuaOracle) FitsPattern(card room.Candidate, pattern string) (bool, error) {
	return o.call(fnFitPattern, func(l *lua.State) int {
		pushCandidate(l, card)
		l.PushString(pattern)
		return 2
	})
}

// Usable 实现 room.Oracle
func (o *LuaOracle) Usable(card room.Candidate, self int) (bool, error) {
	return o.call(fnCanUseCard, func(l *lua.State) int {
		pushCandidate(l, card)
		l.PushInteger(self)
		return 2
	})
}

// call 调用全局函数并取布尔结果，脚本错误时返回 ErrOracleScript
func (o *LuaOracle) call(name string, push func(l *lua.State) int) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	l := o.state
	top := l.Top()
	defer l.SetTop(top)

	l.Global(name)
	if !l.IsFunction(-1) {
		return false, apperrors.Newf(apperrors.ErrOracleScript, "脚本缺少函数 %s", name)
	}
	nargs := push(l)
	if err := l.ProtectedCall(nargs, 1, 0); err != nil {
		o.logger.Warn("规则脚本执行失败", zap.String("function", name), zap.Error(err))
		return false, apperrors.Wrap(err, apperrors.ErrOracleScript, name)
	}
	return l.ToBoolean(-1), nil
}

// pushCandidate 卡牌为整数，虚拟牌和技能为字符串，空候选为 -1
func pushCandidate(l *lua.State, c room.Candidate) {
	switch v := c.Value().(type) {
	case int:
		l.PushInteger(v)
	case string:
		l.PushString(v)
	default:
		l.PushInteger(-1)
	}
}

func pushIntList(l *lua.State, ids []int) {
	l.CreateTable(len(ids), 0)
	for i, id := range ids {
		l.PushInteger(id)
		l.RawSetInt(-2, i+1)
	}
}

func scriptName(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}
