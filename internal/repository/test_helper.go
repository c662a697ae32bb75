package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/room-client/internal/models"
)

// TestDB 创建已迁移的内存数据库
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立，固定为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// CreateTestReply 创建测试回复记录
func CreateTestReply(sessionID string, seq int, command string, sentAt time.Time) *models.ReplyRecord {
	return &models.ReplyRecord{
		SessionID: sessionID,
		EpisodeID: fmt.Sprintf("%s-ep-%d", sessionID, seq),
		RequestID: int64(seq),
		Command:   command,
		Kind:      models.ReplyKindReply,
		Payload:   fmt.Sprintf(`{"seq":%d}`, seq),
		SentAt:    sentAt,
	}
}
