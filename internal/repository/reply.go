package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/models"
)

// ReplyRepository 已发送回复的记录
//
// 每个询问最多回复一次，episode_id 唯一。
type ReplyRepository interface {
	BaseRepository
	Append(ctx context.Context, rec *models.ReplyRecord) error
	FindByEpisode(ctx context.Context, episodeID string) (*models.ReplyRecord, error)
	ListBySession(ctx context.Context, sessionID string, p *Pagination) ([]*models.ReplyRecord, error)
	CountByCommand(ctx context.Context, sessionID string) (map[string]int64, error)
	CleanupBefore(ctx context.Context, before time.Time) (int64, error)
}

type replyRepo struct {
	*BaseRepo
}

// NewReplyRepository 创建回复记录仓储
func NewReplyRepository(db *gorm.DB) ReplyRepository {
	return &replyRepo{BaseRepo: NewBaseRepo(db)}
}

// Append 写入一条回复记录
func (r *replyRepo) Append(ctx context.Context, rec *models.ReplyRecord) error {
	start := time.Now()
	if rec.SentAt.IsZero() {
		rec.SentAt = start
	}
	err := r.db.WithContext(ctx).Create(rec).Error
	logger.LogDatabaseOperation("insert", rec.TableName(), time.Since(start), err)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "写入回复记录失败")
	}
	return nil
}

// FindByEpisode 按询问查找回复
func (r *replyRepo) FindByEpisode(ctx context.Context, episodeID string) (*models.ReplyRecord, error) {
	var rec models.ReplyRecord
	err := r.db.WithContext(ctx).Where("episode_id = ?", episodeID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.ErrNotFound, "回复记录不存在: "+episodeID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return &rec, nil
}

// ListBySession 按发送时间列出会话的回复
func (r *replyRepo) ListBySession(ctx context.Context, sessionID string, p *Pagination) ([]*models.ReplyRecord, error) {
	bySession := func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.ReplyRecord{}).Where("session_id = ?", sessionID)
	}

	query := r.db.WithContext(ctx).Scopes(bySession)
	if p != nil {
		if err := r.db.WithContext(ctx).Scopes(bySession).Count(&p.Total).Error; err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
		}
		query = query.Scopes(Paginate(p))
	}

	var records []*models.ReplyRecord
	if err := query.Order("sent_at ASC, id ASC").Find(&records).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return records, nil
}

// CountByCommand 统计会话中各询问类型的回复数
func (r *replyRepo) CountByCommand(ctx context.Context, sessionID string) (map[string]int64, error) {
	var rows []struct {
		Command string
		Total   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.ReplyRecord{}).
		Select("command, COUNT(*) AS total").
		Where("session_id = ?", sessionID).
		Group("command").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Command] = row.Total
	}
	return counts, nil
}

// CleanupBefore 软删除早于指定时间的记录
func (r *replyRepo) CleanupBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("sent_at < ?", before).Delete(&models.ReplyRecord{})
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, apperrors.ErrDatabaseQuery)
	}
	return result.RowsAffected, nil
}
