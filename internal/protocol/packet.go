package protocol

import (
	"encoding/json"
	"time"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// PacketType 数据包类型
type PacketType string

const (
	TypeRequest PacketType = "request" // 服务器询问，需要一次回复
	TypeNotify  PacketType = "notify"  // 服务器通知，无需回复
	TypeReply   PacketType = "reply"   // 客户端回复
	TypePush    PacketType = "push"    // 客户端主动推送（PushRequest）
)

// Packet 房间协议数据包
//
// Data 保存的是JSON编码后的字符串负载，各命令自行解析。
type Packet struct {
	ID        int64      `json:"id"`
	Type      PacketType `json:"type"`
	Command   string     `json:"command"`
	Data      string     `json:"data"`
	Timestamp int64      `json:"timestamp,omitempty"`
}

// Decode 解析一条原始消息
func Decode(raw []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	if p.Command == "" {
		return nil, apperrors.New(apperrors.ErrMessageFormat, "缺少command字段")
	}
	switch p.Type {
	case TypeRequest, TypeNotify:
	case "":
		// 未标注类型时按命令推断
		if IsAsk(p.Command) {
			p.Type = TypeRequest
		} else {
			p.Type = TypeNotify
		}
	default:
		return nil, apperrors.Newf(apperrors.ErrMessageFormat, "客户端不接受的包类型: %s", p.Type)
	}
	return &p, nil
}

// Encode 编码数据包
func (p *Packet) Encode() ([]byte, error) {
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	return data, nil
}

// NewReply 构造对某个请求的回复包
func NewReply(requestID int64, command, data string) *Packet {
	return &Packet{
		ID:      requestID,
		Type:    TypeReply,
		Command: command,
		Data:    data,
	}
}

// NewPush 构造主动推送包
func NewPush(command, data string) *Packet {
	return &Packet{
		Type:    TypePush,
		Command: command,
		Data:    data,
	}
}
