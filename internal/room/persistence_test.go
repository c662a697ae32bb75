package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/models"
)

// setupTestDB 设置测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func TestDatabaseStatePersister(t *testing.T) {
	ctx := context.Background()
	p := NewDatabaseStatePersister(setupTestDB(t))

	_, err := p.Load(ctx, "missing")
	requireCode(t, err, apperrors.ErrNotFound)

	state := &MachineData{
		SessionID:   "db-session",
		SelfID:      3,
		CurrentMode: ModeResponding,
		Episode: &Episode{
			ID:        "ep-1",
			Command:   "AskForUseCard",
			RequestID: 11,
			Mode:      ModeResponding,
		},
		Replies:    2,
		LastUpdate: time.Now(),
	}
	require.NoError(t, p.Save(ctx, "db-session", state))

	loaded, err := p.Load(ctx, "db-session")
	require.NoError(t, err)
	assert.Equal(t, ModeResponding, loaded.CurrentMode)
	assert.Equal(t, 3, loaded.SelfID)
	require.NotNil(t, loaded.Episode)
	assert.Equal(t, "AskForUseCard", loaded.Episode.Command)
	assert.Equal(t, int64(11), loaded.Episode.RequestID)

	// 再次保存覆盖原记录
	state.CurrentMode = ModeIdle
	state.Episode = nil
	state.Replies = 3
	require.NoError(t, p.Save(ctx, "db-session", state))

	loaded, err = p.Load(ctx, "db-session")
	require.NoError(t, err)
	assert.Equal(t, ModeIdle, loaded.CurrentMode)
	assert.Nil(t, loaded.Episode)
	assert.Equal(t, 3, loaded.Replies)

	var count int64
	require.NoError(t, p.db.Model(&models.SessionSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, p.Delete(ctx, "db-session"))
	requireCode(t, p.Delete(ctx, "db-session"), apperrors.ErrNotFound)
}

func TestMemoryStatePersisterCopies(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryStatePersister()

	state := &MachineData{SessionID: "s", Episode: &Episode{ID: "ep"}}
	require.NoError(t, p.Save(ctx, "s", state))
	state.Episode.ID = "changed"

	loaded, err := p.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "ep", loaded.Episode.ID)

	require.NoError(t, p.Delete(ctx, "s"))
	_, err = p.Load(ctx, "s")
	requireCode(t, err, apperrors.ErrNotFound)
}

func newPersistentRoom(t *testing.T, persister StatePersister) *testRoom {
	t.Helper()
	tr := newTestRoom(t)
	r, err := New(Options{
		SessionID: "persist-session",
		SelfID:    1,
		SeatCount: 3,
		Oracle:    tr.oracle,
		Presenter: tr.view,
		Transport: tr.transport,
		Persister: persister,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	tr.Room = r
	return tr
}

func TestRecoveryResetsUnansweredRequest(t *testing.T) {
	ctx := context.Background()
	persister := NewDatabaseStatePersister(setupTestDB(t))

	before := newPersistentRoom(t, persister)
	before.mustSend(t, "AskForSkillInvoke", `["jianxiong",""]`)
	require.Equal(t, ModeReplying, before.Mode())

	after := newPersistentRoom(t, persister)
	rm := NewRecoveryManager(zap.NewNop(), persister, 30*time.Minute)
	require.NoError(t, rm.Recover(ctx, after.Room))

	assert.Equal(t, ModeIdle, after.Mode())
	assert.Nil(t, after.Machine().Episode())
	assert.Equal(t, 1, after.SelfID())
}

func TestRecoveryKeepsInactiveMode(t *testing.T) {
	ctx := context.Background()
	persister := NewMemoryStatePersister()

	before := newPersistentRoom(t, persister)
	before.mustSend(t, "WaitForNullification", "")
	require.Equal(t, ModeNotActive, before.Mode())

	after := newPersistentRoom(t, persister)
	rm := NewRecoveryManager(nil, persister, time.Hour)
	require.NoError(t, rm.Recover(ctx, after.Room))
	assert.Equal(t, ModeNotActive, after.Mode())
}

func TestRecoveryExpiredSnapshot(t *testing.T) {
	ctx := context.Background()
	persister := NewMemoryStatePersister()
	require.NoError(t, persister.Save(ctx, "persist-session", &MachineData{
		SessionID:   "persist-session",
		SelfID:      1,
		CurrentMode: ModeIdle,
		LastUpdate:  time.Now().Add(-2 * time.Hour),
	}))

	tr := newPersistentRoom(t, persister)
	rm := NewRecoveryManager(zap.NewNop(), persister, time.Hour)
	requireCode(t, rm.Recover(ctx, tr.Room), apperrors.ErrTimeout)

	_, err := persister.Load(ctx, "persist-session")
	requireCode(t, err, apperrors.ErrNotFound)
}

func TestRecoveryMissingSnapshot(t *testing.T) {
	tr := newPersistentRoom(t, NewMemoryStatePersister())
	rm := NewRecoveryManager(zap.NewNop(), NewMemoryStatePersister(), time.Hour)
	requireCode(t, rm.Recover(context.Background(), tr.Room), apperrors.ErrNotFound)
}
