package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// GeneralChoice AskForGeneral: [generals, n, heg]
type GeneralChoice struct {
	Generals    []string `json:"generals"`
	Count       int      `json:"count"`
	SameKingdom bool     `json:"same_kingdom"`
}

// SkillInvoke AskForSkillInvoke: [skill, prompt]
type SkillInvoke struct {
	Skill  string `json:"skill"`
	Prompt string `json:"prompt"`
}

// Guanxing AskForGuanxing 对象负载
type Guanxing struct {
	Cards          []int `json:"cards"`
	MinTopCards    int   `json:"min_top_cards"`
	MaxTopCards    int   `json:"max_top_cards"`
	MinBottomCards int   `json:"min_bottom_cards"`
	MaxBottomCards int   `json:"max_bottom_cards"`
}

// Areas 返回区域名及容量，顶部容量为0时只有底部
func (g *Guanxing) Areas() (names []string, capacities, limits []int) {
	if g.MaxTopCards == 0 {
		return []string{"Bottom"}, []int{g.MaxBottomCards}, []int{g.MinBottomCards}
	}
	return []string{"Top", "Bottom"},
		[]int{g.MaxTopCards, g.MaxBottomCards},
		[]int{g.MinTopCards, g.MinBottomCards}
}

// Choice AskForChoice: [choices, skill, prompt]
type Choice struct {
	Options []string `json:"options"`
	Skill   string   `json:"skill"`
	Prompt  string   `json:"prompt"`
}

// CardChosen AskForCardChosen: [handcards, equips, judges, reason]
type CardChosen struct {
	Handcards []int  `json:"handcards"`
	Equips    []int  `json:"equips"`
	Judges    []int  `json:"judges"`
	Reason    string `json:"reason"`
}

// Contains 判断卡牌是否在可选范围内
func (c *CardChosen) Contains(id int) bool {
	for _, pile := range [][]int{c.Handcards, c.Equips, c.Judges} {
		for _, cid := range pile {
			if cid == id {
				return true
			}
		}
	}
	return false
}

// CardsChosen AskForCardsChosen: [handcards, equips, judges, min, max, reason]
type CardsChosen struct {
	CardChosen
	Min int `json:"min"`
	Max int `json:"max"`
}

// MoveCardInBoard AskForMoveCardInBoard 对象负载
type MoveCardInBoard struct {
	Cards         []int    `json:"cards"`
	CardsPosition []int    `json:"cardsPosition"`
	GeneralNames  []string `json:"generalNames"`
}

// UseActiveSkill AskForUseActiveSkill: [skill, prompt, cancelable, extra_data]
type UseActiveSkill struct {
	Skill      string          `json:"skill"`
	Prompt     string          `json:"prompt"`
	Cancelable bool            `json:"cancelable"`
	ExtraData  json.RawMessage `json:"extra_data,omitempty"`
}

// UseCard AskForUseCard / AskForResponseCard: [card_name, pattern, prompt, cancelable, extra_data]
type UseCard struct {
	CardName   string          `json:"card_name"`
	Pattern    string          `json:"pattern"`
	Prompt     string          `json:"prompt"`
	Cancelable bool            `json:"cancelable"`
	ExtraData  json.RawMessage `json:"extra_data,omitempty"`
}

// CustomDialogData CustomDialog 对象负载
type CustomDialogData struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AddPlayerData AddPlayer: [id, screen_name, avatar]
type AddPlayerData struct {
	ID         int    `json:"id"`
	ScreenName string `json:"screen_name"`
	Avatar     string `json:"avatar"`
}

// PropertyUpdateData PropertyUpdate: [id, property, value]
type PropertyUpdateData struct {
	ID       int             `json:"id"`
	Property string          `json:"property"`
	Value    json.RawMessage `json:"value"`
}

// PlayerRunnedData PlayerRunned: [runner, robot]
type PlayerRunnedData struct {
	Runner int `json:"runner"`
	Robot  int `json:"robot"`
}

// DecodeGeneralChoice 解析 AskForGeneral
func DecodeGeneralChoice(data string) (*GeneralChoice, error) {
	var p GeneralChoice
	var heg interface{}
	if err := decodeTuple(AskForGeneral, data, 2, &p.Generals, &p.Count, &heg); err != nil {
		return nil, err
	}
	if len(p.Generals) == 0 {
		return nil, malformed(AskForGeneral, "武将列表为空")
	}
	if p.Count <= 0 || p.Count > len(p.Generals) {
		return nil, malformed(AskForGeneral, "选择数量无效: "+strconv.Itoa(p.Count))
	}
	p.SameKingdom = truthy(heg)
	return &p, nil
}

// DecodeSkillInvoke 解析 AskForSkillInvoke
func DecodeSkillInvoke(data string) (*SkillInvoke, error) {
	var p SkillInvoke
	if err := decodeTuple(AskForSkillInvoke, data, 1, &p.Skill, &p.Prompt); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeGuanxing 解析 AskForGuanxing
func DecodeGuanxing(data string) (*Guanxing, error) {
	var p Guanxing
	if err := decodeObject(AskForGuanxing, data, &p); err != nil {
		return nil, err
	}
	if p.MinTopCards > p.MaxTopCards || p.MinBottomCards > p.MaxBottomCards || p.MinTopCards < 0 || p.MinBottomCards < 0 {
		return nil, malformed(AskForGuanxing, "区域容量无效")
	}
	return &p, nil
}

// DecodeChoice 解析 AskForChoice
func DecodeChoice(data string) (*Choice, error) {
	var p Choice
	if err := decodeTuple(AskForChoice, data, 2, &p.Options, &p.Skill, &p.Prompt); err != nil {
		return nil, err
	}
	if len(p.Options) == 0 {
		return nil, malformed(AskForChoice, "选项为空")
	}
	return &p, nil
}

// DecodeCardChosen 解析 AskForCardChosen
func DecodeCardChosen(data string) (*CardChosen, error) {
	var p CardChosen
	if err := decodeTuple(AskForCardChosen, data, 4, &p.Handcards, &p.Equips, &p.Judges, &p.Reason); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeCardsChosen 解析 AskForCardsChosen
func DecodeCardsChosen(data string) (*CardsChosen, error) {
	var p CardsChosen
	if err := decodeTuple(AskForCardsChosen, data, 6,
		&p.Handcards, &p.Equips, &p.Judges, &p.Min, &p.Max, &p.Reason); err != nil {
		return nil, err
	}
	if p.Min < 0 || p.Max < p.Min {
		return nil, malformed(AskForCardsChosen, "min/max 无效")
	}
	return &p, nil
}

// DecodeMoveCardInBoard 解析 AskForMoveCardInBoard
func DecodeMoveCardInBoard(data string) (*MoveCardInBoard, error) {
	var p MoveCardInBoard
	if err := decodeObject(AskForMoveCardInBoard, data, &p); err != nil {
		return nil, err
	}
	if len(p.Cards) != len(p.CardsPosition) {
		return nil, malformed(AskForMoveCardInBoard, "cards 与 cardsPosition 长度不一致")
	}
	return &p, nil
}

// DecodeUseActiveSkill 解析 AskForUseActiveSkill
func DecodeUseActiveSkill(data string) (*UseActiveSkill, error) {
	var p UseActiveSkill
	if err := decodeTuple(AskForUseActiveSkill, data, 3, &p.Skill, &p.Prompt, &p.Cancelable, &p.ExtraData); err != nil {
		return nil, err
	}
	if p.Skill == "" {
		return nil, malformed(AskForUseActiveSkill, "技能名为空")
	}
	return &p, nil
}

// DecodeUseCard 解析 AskForUseCard 或 AskForResponseCard
func DecodeUseCard(command, data string) (*UseCard, error) {
	p := UseCard{Cancelable: true}
	if err := decodeTuple(command, data, 3, &p.CardName, &p.Pattern, &p.Prompt, &p.Cancelable, &p.ExtraData); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeCustomDialog 解析 CustomDialog
func DecodeCustomDialog(data string) (*CustomDialogData, error) {
	var p CustomDialogData
	if err := decodeObject(CustomDialog, data, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, malformed(CustomDialog, "缺少path")
	}
	return &p, nil
}

// DecodeIDs 解析 [ids] 形式的负载（FillAG）
func DecodeIDs(command, data string) ([]int, error) {
	var ids []int
	if err := decodeTuple(command, data, 1, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DecodeIDList 解析纯数组负载（ArrangeSeats）
func DecodeIDList(command, data string) ([]int, error) {
	var ids []int
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMalformedPayload, command)
	}
	return ids, nil
}

// DecodeFirstID 解析 [id, ...] 形式的负载（RemovePlayer / RoomOwner）
func DecodeFirstID(command, data string) (int, error) {
	var id int
	if err := decodeTuple(command, data, 1, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// DecodeAddPlayer 解析 AddPlayer
func DecodeAddPlayer(data string) (*AddPlayerData, error) {
	var p AddPlayerData
	if err := decodeTuple(AddPlayer, data, 2, &p.ID, &p.ScreenName, &p.Avatar); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodePropertyUpdate 解析 PropertyUpdate
func DecodePropertyUpdate(data string) (*PropertyUpdateData, error) {
	var p PropertyUpdateData
	if err := decodeTuple(PropertyUpdate, data, 3, &p.ID, &p.Property, &p.Value); err != nil {
		return nil, err
	}
	if p.Property == "" {
		return nil, malformed(PropertyUpdate, "属性名为空")
	}
	return &p, nil
}

// DecodePlayerRunned 解析 PlayerRunned
func DecodePlayerRunned(data string) (*PlayerRunnedData, error) {
	var p PlayerRunnedData
	if err := decodeTuple(PlayerRunned, data, 2, &p.Runner, &p.Robot); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeInt 解析标量整数负载（PlayCard / AskForLuckCard / ChangeSelf）
func DecodeInt(command, data string) (int, error) {
	s := strings.TrimSpace(data)
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrMalformedPayload, command)
	}
	return n, nil
}

// decodeTuple 按位置解析数组负载，至少需要 required 个元素
func decodeTuple(command, data string, required int, dst ...interface{}) error {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return apperrors.Wrap(err, apperrors.ErrMalformedPayload, command)
	}
	if len(items) < required {
		return malformed(command, "参数个数不足: "+strconv.Itoa(len(items)))
	}
	for i, d := range dst {
		if i >= len(items) || isNull(items[i]) {
			continue
		}
		if raw, ok := d.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], items[i]...)
			continue
		}
		if err := json.Unmarshal(items[i], d); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrMalformedPayload, "%s 第%d个参数", command, i+1)
		}
	}
	return nil
}

func decodeObject(command, data string, dst interface{}) error {
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrMalformedPayload, command)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func malformed(command, details string) error {
	return apperrors.New(apperrors.ErrMalformedPayload, command, details)
}
