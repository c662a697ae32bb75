package room

import (
	"time"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// PendingMessage 缓存的服务器消息
type PendingMessage struct {
	RequestID  int64     `json:"request_id"`
	Command    string    `json:"command"`
	Data       string    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
	Ask        bool      `json:"ask"` // 需要回复的询问
}

// PendingQueue 先进先出的消息缓存
//
// 只有询问占用名额：平时至多一条，视角切换期间允许嵌套的第二条。
// 通知不限数量，按到达顺序与询问一起派发。
type PendingQueue struct {
	items []PendingMessage
}

// Push 入队，询问超出名额时返回协议错误，新消息不入队
func (q *PendingQueue) Push(msg PendingMessage, nested bool) error {
	if msg.Ask {
		limit := 1
		if nested {
			limit = 2
		}
		if asks := q.Asks(); asks >= limit {
			return apperrors.Newf(apperrors.ErrPendingOverflow, "已缓存%d条询问, 新消息 %s", asks, msg.Command)
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	q.items = append(q.items, msg)
	return nil
}

// Asks 缓存中的询问数量
func (q *PendingQueue) Asks() int {
	n := 0
	for _, m := range q.items {
		if m.Ask {
			n++
		}
	}
	return n
}

// Pop 出队
func (q *PendingQueue) Pop() (PendingMessage, bool) {
	if len(q.items) == 0 {
		return PendingMessage{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Len 缓存数量
func (q *PendingQueue) Len() int { return len(q.items) }

// Items 返回副本
func (q *PendingQueue) Items() []PendingMessage {
	out := make([]PendingMessage, len(q.items))
	copy(out, q.items)
	return out
}

// Clear 清空
func (q *PendingQueue) Clear() { q.items = nil }
