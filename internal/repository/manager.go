package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/wfunc/room-client/internal/room"
)

// Manager 仓储管理器，按需创建各仓储
type Manager struct {
	db *gorm.DB

	replyOnce sync.Once
	reply     ReplyRepository

	snapshotOnce sync.Once
	snapshot     *room.DatabaseStatePersister
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// DB 获取数据库实例
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Reply 回复记录仓储
func (m *Manager) Reply() ReplyRepository {
	m.replyOnce.Do(func() {
		m.reply = NewReplyRepository(m.db)
	})
	return m.reply
}

// Snapshots 状态机快照持久化
func (m *Manager) Snapshots() *room.DatabaseStatePersister {
	m.snapshotOnce.Do(func() {
		m.snapshot = room.NewDatabaseStatePersister(m.db)
	})
	return m.snapshot
}

// Transaction 在事务中使用一组新的仓储
func (m *Manager) Transaction(ctx context.Context, fn func(tx *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}

// Journal 适配为房间的回复记录接口
func (m *Manager) Journal() room.ReplyJournal {
	return m.Reply()
}
