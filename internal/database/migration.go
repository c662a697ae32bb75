package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/models"
)

// AutoMigrate 自动迁移快照与回复记录表
//
// sqlite 文件库迁移时持有锁文件，避免多个客户端进程同时建表。
func AutoMigrate(db *gorm.DB, dsn string) error {
	if db == nil {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库未初始化")
	}

	if path := sqliteFilePath(db, dsn); path != "" {
		CleanupStaleLocks(path)
		lockFile, err := acquireMigrationLock(path)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "获取迁移锁失败")
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")
	for _, model := range models.AllModels() {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return apperrors.Wrapf(err, apperrors.ErrDatabaseQuery, "迁移 %T 失败", model)
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)
	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建模型标签之外的组合索引
func createIndexes(db *gorm.DB) {
	indexes := map[string]string{
		"idx_reply_records_session_sent": "CREATE INDEX IF NOT EXISTS idx_reply_records_session_sent ON reply_records(session_id, sent_at)",
	}
	for name, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}
