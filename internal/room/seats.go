package room

import (
	"encoding/json"
	"sort"
)

// EmptySeat 空座位的玩家id
const EmptySeat = -1

// Seat 座位记录
type Seat struct {
	PlayerID   int                        `json:"player_id"`
	ScreenName string                     `json:"screen_name"`
	General    string                     `json:"general"`
	SeatNumber int                        `json:"seat_number"`
	Index      int                        `json:"index"` // 以自己为起点的排列位置
	IsOwner    bool                       `json:"is_owner"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
}

// Seats 房间内全部座位，第一个座位初始为自己
type Seats struct {
	list []Seat
}

// NewSeats 创建座位表，self 占据第一个座位
func NewSeats(capacity int, self int) *Seats {
	if capacity < 1 {
		capacity = 1
	}
	s := &Seats{list: make([]Seat, capacity)}
	for i := range s.list {
		s.list[i] = Seat{PlayerID: EmptySeat, Index: i}
	}
	s.list[0].PlayerID = self
	return s
}

func (s *Seats) find(id int) *Seat {
	if id == EmptySeat {
		return nil
	}
	for i := range s.list {
		if s.list[i].PlayerID == id {
			return &s.list[i]
		}
	}
	return nil
}

// AddPlayer 填入第一个空座位，没有空位时返回 false
func (s *Seats) AddPlayer(id int, name, avatar string) bool {
	for i := range s.list {
		if s.list[i].PlayerID == EmptySeat {
			s.list[i].PlayerID = id
			s.list[i].ScreenName = name
			s.list[i].General = avatar
			return true
		}
	}
	return false
}

// RemovePlayer 清空玩家所在座位
func (s *Seats) RemovePlayer(id int) bool {
	seat := s.find(id)
	if seat == nil {
		return false
	}
	seat.PlayerID = EmptySeat
	seat.ScreenName = ""
	seat.General = ""
	seat.IsOwner = false
	seat.Properties = nil
	return true
}

// SetOwner 标记房主
func (s *Seats) SetOwner(id int) bool {
	seat := s.find(id)
	if seat == nil {
		return false
	}
	seat.IsOwner = true
	return true
}

// UpdateProperty 更新动态属性，general/screenName 同步到固定字段
func (s *Seats) UpdateProperty(id int, name string, value json.RawMessage) bool {
	seat := s.find(id)
	if seat == nil {
		return false
	}
	var str string
	switch name {
	case "general":
		if json.Unmarshal(value, &str) == nil {
			seat.General = str
		}
	case "screenName":
		if json.Unmarshal(value, &str) == nil {
			seat.ScreenName = str
		}
	case "seatNumber":
		var n int
		if json.Unmarshal(value, &n) == nil {
			seat.SeatNumber = n
		}
	}
	if seat.Properties == nil {
		seat.Properties = make(map[string]json.RawMessage)
	}
	seat.Properties[name] = append(json.RawMessage(nil), value...)
	return true
}

// StartGame 开局时清空武将
func (s *Seats) StartGame() {
	for i := range s.list {
		s.list[i].General = ""
	}
}

// Arrange 按座次排列，self 排在第一位
func (s *Seats) Arrange(order []int, self int) {
	pos := make(map[int]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	selfPos, ok := pos[self]
	if !ok {
		selfPos = 0
	}
	for i := range s.list {
		p, ok := pos[s.list[i].PlayerID]
		if !ok {
			s.list[i].SeatNumber = 0
			continue
		}
		s.list[i].SeatNumber = p + 1
		s.list[i].Index = (p - selfPos + len(order)) % len(order)
	}
}

// Order 当前座次（按座位号）
func (s *Seats) Order() []int {
	seated := make([]Seat, 0, len(s.list))
	for _, seat := range s.list {
		if seat.PlayerID != EmptySeat && seat.SeatNumber > 0 {
			seated = append(seated, seat)
		}
	}
	sort.Slice(seated, func(i, j int) bool { return seated[i].SeatNumber < seated[j].SeatNumber })
	order := make([]int, len(seated))
	for i, seat := range seated {
		order[i] = seat.PlayerID
	}
	return order
}

// Runned 玩家逃跑，由机器人接替
func (s *Seats) Runned(runner, robot int) bool {
	seat := s.find(runner)
	if seat == nil {
		return false
	}
	seat.PlayerID = robot
	return true
}

// PlayerIDs 已入座玩家id，按排列位置
func (s *Seats) PlayerIDs() []int {
	seated := make([]Seat, 0, len(s.list))
	for _, seat := range s.list {
		if seat.PlayerID != EmptySeat {
			seated = append(seated, seat)
		}
	}
	sort.SliceStable(seated, func(i, j int) bool { return seated[i].Index < seated[j].Index })
	ids := make([]int, len(seated))
	for i, seat := range seated {
		ids[i] = seat.PlayerID
	}
	return ids
}

// Has 玩家是否在座
func (s *Seats) Has(id int) bool {
	return s.find(id) != nil
}

// List 返回副本
func (s *Seats) List() []Seat {
	out := make([]Seat, len(s.list))
	copy(out, s.list)
	for i := range out {
		if out[i].Properties == nil {
			continue
		}
		props := make(map[string]json.RawMessage, len(out[i].Properties))
		for k, v := range out[i].Properties {
			props[k] = v
		}
		out[i].Properties = props
	}
	return out
}
