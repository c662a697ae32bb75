package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionSnapshot 房间状态机快照（用于断线恢复）
type SessionSnapshot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	SelfID      int       `gorm:"index;not null" json:"self_id"`
	CurrentMode string    `gorm:"size:20;not null" json:"current_mode"`
	StateData   string    `gorm:"type:text" json:"state_data"` // JSON格式的状态数据
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SessionSnapshot) TableName() string {
	return "session_snapshots"
}

// ReplyKind 回复类型
const (
	ReplyKindReply = "reply" // 回复询问
	ReplyKindPush  = "push"  // 推送（换牌）
)

// ReplyRecord 已发送的回复记录
type ReplyRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SessionID string         `gorm:"index;size:64;not null" json:"session_id"`
	EpisodeID string         `gorm:"uniqueIndex;size:64;not null" json:"episode_id"`
	RequestID int64          `json:"request_id"`
	Command   string         `gorm:"size:64;not null;index" json:"command"`
	Kind      string         `gorm:"size:16;not null" json:"kind"`
	Payload   string         `gorm:"type:text" json:"payload"`
	SentAt    time.Time      `gorm:"index" json:"sent_at"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名
func (ReplyRecord) TableName() string {
	return "reply_records"
}

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&SessionSnapshot{},
		&ReplyRecord{},
	}
}
