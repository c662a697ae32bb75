package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/models"
)

// MemoryStatePersister 内存状态持久化（用于测试）
type MemoryStatePersister struct {
	mu     sync.RWMutex
	states map[string]*MachineData
}

// NewMemoryStatePersister 创建内存持久化器
func NewMemoryStatePersister() *MemoryStatePersister {
	return &MemoryStatePersister{
		states: make(map[string]*MachineData),
	}
}

// Save 保存状态
func (p *MemoryStatePersister) Save(ctx context.Context, sessionID string, state *MachineData) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states[sessionID] = copyMachineData(state)
	return nil
}

// Load 加载状态
func (p *MemoryStatePersister) Load(ctx context.Context, sessionID string) (*MachineData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state, exists := p.states[sessionID]
	if !exists {
		return nil, apperrors.New(apperrors.ErrNotFound, "状态不存在: "+sessionID)
	}
	return copyMachineData(state), nil
}

// Delete 删除状态
func (p *MemoryStatePersister) Delete(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.states, sessionID)
	return nil
}

func copyMachineData(state *MachineData) *MachineData {
	c := *state
	if state.Episode != nil {
		ep := *state.Episode
		c.Episode = &ep
	}
	return &c
}

// DatabaseStatePersister 数据库状态持久化
type DatabaseStatePersister struct {
	db *gorm.DB
}

// NewDatabaseStatePersister 创建数据库持久化器
func NewDatabaseStatePersister(db *gorm.DB) *DatabaseStatePersister {
	return &DatabaseStatePersister{db: db}
}

// Save 保存状态到数据库
func (p *DatabaseStatePersister) Save(ctx context.Context, sessionID string, state *MachineData) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "序列化状态失败")
	}

	snapshot := &models.SessionSnapshot{
		SessionID:   sessionID,
		SelfID:      state.SelfID,
		CurrentMode: string(state.CurrentMode),
		StateData:   string(stateJSON),
		UpdatedAt:   time.Now(),
	}

	// 存在则更新，不存在则插入
	result := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Assign(models.SessionSnapshot{
			SelfID:      snapshot.SelfID,
			CurrentMode: snapshot.CurrentMode,
			StateData:   snapshot.StateData,
			UpdatedAt:   snapshot.UpdatedAt,
		}).
		FirstOrCreate(snapshot)

	if result.Error != nil {
		return apperrors.Wrap(result.Error, apperrors.ErrDatabaseInsert, "保存状态失败")
	}
	return nil
}

// Load 从数据库加载状态
func (p *DatabaseStatePersister) Load(ctx context.Context, sessionID string) (*MachineData, error) {
	var snapshot models.SessionSnapshot

	result := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&snapshot)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "状态不存在: "+sessionID)
		}
		return nil, apperrors.Wrap(result.Error, apperrors.ErrDatabaseQuery, "查询状态失败")
	}

	var state MachineData
	if err := json.Unmarshal([]byte(snapshot.StateData), &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "反序列化状态失败")
	}
	return &state, nil
}

// Delete 从数据库删除状态
func (p *DatabaseStatePersister) Delete(ctx context.Context, sessionID string) error {
	result := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.SessionSnapshot{})

	if result.Error != nil {
		return apperrors.Wrap(result.Error, apperrors.ErrDatabaseQuery, "删除状态失败")
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrNotFound, "状态不存在: "+sessionID)
	}
	return nil
}

// RecoveryManager 断线恢复
type RecoveryManager struct {
	logger    *zap.Logger
	persister StatePersister
	timeout   time.Duration // 快照有效期
}

// NewRecoveryManager 创建恢复管理器
func NewRecoveryManager(logger *zap.Logger, persister StatePersister, timeout time.Duration) *RecoveryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryManager{
		logger:    logger,
		persister: persister,
		timeout:   timeout,
	}
}

// Recover 用快照恢复房间
//
// 快照过期时删除并返回 ErrTimeout。未回复的询问无法重建界面，
// 房间回到空闲，等待服务器重新询问。
func (rm *RecoveryManager) Recover(ctx context.Context, r *Room) error {
	data, err := rm.persister.Load(ctx, r.SessionID())
	if err != nil {
		return err
	}

	if rm.timeout > 0 && time.Since(data.LastUpdate) > rm.timeout {
		rm.logger.Warn("快照已过期",
			zap.String("session_id", data.SessionID),
			zap.Time("last_update", data.LastUpdate),
			zap.Duration("timeout", rm.timeout))
		if err := rm.persister.Delete(ctx, data.SessionID); err != nil {
			rm.logger.Error("删除过期快照失败", zap.Error(err))
		}
		return apperrors.New(apperrors.ErrTimeout, "快照已过期")
	}

	if err := r.Restore(ctx, rm.persister); err != nil {
		return err
	}

	rm.logger.Info("会话恢复成功",
		zap.String("session_id", data.SessionID),
		zap.String("mode", string(data.CurrentMode)),
		zap.Int("self_id", data.SelfID),
		zap.Int("replies", data.Replies))
	return nil
}
