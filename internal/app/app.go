// Package app 组装房间客户端的各个组件
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/api"
	"github.com/wfunc/room-client/internal/config"
	"github.com/wfunc/room-client/internal/database"
	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/protocol"
	"github.com/wfunc/room-client/internal/repository"
	"github.com/wfunc/room-client/internal/room"
	"github.com/wfunc/room-client/internal/rules"
	"github.com/wfunc/room-client/internal/utils"
	ws "github.com/wfunc/room-client/internal/websocket"
)

// snapshotTTL 超过该时间的快照不再恢复
const snapshotTTL = 30 * time.Minute

// App 房间客户端实例
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	oracle *rules.LuaOracle
	view   *room.View
	room   *room.Room
	loop   *room.Loop
	conn   *ws.ServerConn
	hub    *ws.Hub
	repos  *repository.Manager
	jwt    *utils.JWTManager
	http   *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// loopSink 连接建立时事件循环尚未创建，延迟绑定
type loopSink struct {
	loop *room.Loop
}

func (s *loopSink) Deliver(ctx context.Context, p *protocol.Packet) error {
	return s.loop.Deliver(ctx, p)
}

// New 按配置创建全部组件
func New(cfg *config.Config) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger.GetLogger(),
		view:   room.NewView(),
		hub:    ws.NewHub(logger.GetModuleLogger(logger.ModuleWebSocket)),
	}

	oracle, err := rules.New(cfg.Rules.Script)
	if err != nil {
		return nil, err
	}
	cards, err := cfg.Rules.CardNames()
	if err != nil {
		return nil, err
	}
	oracle.SetCards(cards)
	a.oracle = oracle

	if cfg.Database.Enabled {
		if err := database.Init(&cfg.Database); err != nil {
			return nil, err
		}
		a.repos = repository.NewManager(database.GetDB())
	}

	sink := &loopSink{}
	a.conn = ws.NewServerConn(cfg.Client, handshakeHeader(cfg.Client), sink)

	opts := room.Options{
		SessionID: SessionID(cfg.Client),
		SelfID:    cfg.Client.PlayerID,
		Oracle:    oracle,
		Presenter: a.view,
		Transport: a.conn,
		Policies:  cfg.Room,
		Logger:    logger.GetModuleLogger(logger.ModuleRoom),
	}
	if a.repos != nil {
		if cfg.Room.Persist {
			opts.Persister = a.repos.Snapshots()
		}
		if cfg.Room.JournalReplies {
			opts.Journal = a.repos.Journal()
		}
	}

	r, err := room.New(opts)
	if err != nil {
		return nil, err
	}
	a.room = r
	a.loop = room.NewLoop(r, cfg.Room.InboxSize)
	sink.loop = a.loop

	a.loop.Observe(func(view room.SessionView) {
		if err := a.hub.Publish(ws.MessageTypeSession, view); err != nil {
			a.logger.Debug("推送会话快照失败", zap.Error(err))
		}
	})
	a.conn.OnConnect(func() {
		a.logger.Info("已连接房间服务器",
			zap.String("url", cfg.Client.ServerURL),
			zap.String("session_id", r.SessionID()))
	})

	if cfg.Control.JWT.Secret != "" {
		a.jwt = utils.NewJWTManager(cfg.Control.JWT.Secret, time.Duration(cfg.Control.JWT.ExpireHours)*time.Hour)
	}
	return a, nil
}

// SessionID 同一房间同一座位重启后沿用会话id，便于恢复快照
func SessionID(cfg config.ClientConfig) string {
	if cfg.RoomID == "" {
		return ""
	}
	return cfg.RoomID + "-" + strconv.Itoa(cfg.PlayerID)
}

func handshakeHeader(cfg config.ClientConfig) http.Header {
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	if cfg.RoomID != "" {
		header.Set("X-Room-Id", cfg.RoomID)
	}
	header.Set("X-Player-Id", strconv.Itoa(cfg.PlayerID))
	return header
}

// Loop 事件循环
func (a *App) Loop() *room.Loop { return a.loop }

// Oracle 规则引擎
func (a *App) Oracle() *rules.LuaOracle { return a.oracle }

// Start 恢复快照并启动事件循环、服务器连接和控制API
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if a.repos != nil && a.cfg.Room.Persist {
		rm := room.NewRecoveryManager(logger.GetModuleLogger(logger.ModuleRoom), a.repos.Snapshots(), snapshotTTL)
		if err := rm.Recover(a.ctx, a.room); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			a.logger.Warn("会话恢复失败，从空闲开始", zap.Error(err))
		}
	}

	a.goRun("loop", func() error { return a.loop.Run(a.ctx) })
	a.goRun("hub", func() error { a.hub.Run(a.ctx); return nil })
	a.goRun("server-conn", func() error {
		err := a.conn.Run(a.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// 放弃重连后整个客户端退出
			a.cancel()
		}
		return err
	})

	if a.cfg.Control.Enabled {
		if err := a.startControlAPI(); err != nil {
			a.cancel()
			return err
		}
	}

	config.Watch(a.reload)
	return nil
}

func (a *App) goRun(name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("组件退出", zap.String("component", name), zap.Error(err))
		}
	}()
}

func (a *App) startControlAPI() error {
	router := api.NewRouter(api.Options{
		Loop:   a.loop,
		View:   a.view,
		Hub:    a.hub,
		JWT:    a.jwt,
		Mode:   a.cfg.Control.Mode,
		Logger: logger.GetModuleLogger(logger.ModuleAPI),
	})
	a.http = &http.Server{
		Addr:         a.cfg.Control.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  a.cfg.Control.ReadTimeout,
		WriteTimeout: a.cfg.Control.WriteTimeout,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("控制API启动", zap.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("控制API异常退出", zap.Error(err))
			a.cancel()
		}
	}()
	return nil
}

// reload 应用热更新的配置
func (a *App) reload(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)

	if newCfg.Rules.Script != a.cfg.Rules.Script {
		if err := a.oracle.Reload(newCfg.Rules.Script); err != nil {
			a.logger.Error("规则脚本重载失败，继续使用旧脚本", zap.Error(err))
		}
	}
	if !reflect.DeepEqual(newCfg.Rules.Cards, a.cfg.Rules.Cards) {
		// Validate 已检查过编号
		cards, _ := newCfg.Rules.CardNames()
		a.oracle.SetCards(cards)
	}

	ctx, cancel := context.WithTimeout(a.ctx, 2*time.Second)
	defer cancel()
	err := a.loop.Do(ctx, func(ctx context.Context, r *room.Room) error {
		r.SetPolicies(newCfg.Room)
		return nil
	})
	if err != nil {
		a.logger.Warn("更新取消策略失败", zap.Error(err))
	}

	a.cfg = newCfg
	a.logger.Info("配置重新加载完成")
}

// Done 客户端停止时关闭
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Shutdown 优雅关闭
func (a *App) Shutdown(timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.http != nil {
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("关闭控制API失败", zap.Error(err))
		}
	}
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	if a.repos != nil {
		if err := database.Close(); err != nil {
			a.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}
	return nil
}

// String 启动信息
func (a *App) String() string {
	return fmt.Sprintf("session=%s player=%d server=%s", a.room.SessionID(), a.cfg.Client.PlayerID, a.cfg.Client.ServerURL)
}
