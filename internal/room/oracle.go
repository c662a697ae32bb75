package room

// Oracle 规则引擎查询接口，对核心而言无状态且同步
//
// 返回错误时调用方按“不可选/不可行”处理。
type Oracle interface {
	// CanTarget 卡牌能否以 target 为下一个目标
	CanTarget(card Candidate, target int, selected []int) (bool, error)
	// Feasible 以当前已选目标使用卡牌是否可行
	Feasible(card Candidate, selected []int) (bool, error)
	// FitsPattern 卡牌是否匹配响应模式
	FitsPattern(card Candidate, pattern string) (bool, error)
	// Usable 出牌阶段卡牌能否使用
	Usable(card Candidate, self int) (bool, error)
}
