package room

import (
	"context"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/protocol"
)

// call 投递到事件循环的操作
type call struct {
	ctx    context.Context
	fn     func(ctx context.Context, r *Room) error
	result chan error
}

// Loop 房间的事件循环，Room 的全部状态只在这里修改
type Loop struct {
	room    *Room
	inbox   chan *protocol.Packet
	calls   chan call
	done    chan struct{}
	stopped sync.Once
	logger  *zap.Logger

	// observe 每次事件处理后收到最新快照
	observe func(SessionView)
}

// NewLoop 创建事件循环
func NewLoop(r *Room, inboxSize int) *Loop {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	return &Loop{
		room:   r,
		inbox:  make(chan *protocol.Packet, inboxSize),
		calls:  make(chan call),
		done:   make(chan struct{}),
		logger: r.logger.Named("loop"),
	}
}

// Observe 设置快照观察者，须在 Run 之前调用
func (l *Loop) Observe(fn func(SessionView)) {
	l.observe = fn
}

// Run 运行直到 ctx 结束
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopped.Do(func() { close(l.done) })
	l.logger.Info("事件循环启动")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("事件循环退出")
			return ctx.Err()

		case p := <-l.inbox:
			l.safely(func() error { return l.room.HandlePacket(ctx, p) }, p.Command)
			l.notify()

		case c := <-l.calls:
			var err error
			l.safely(func() error {
				err = c.fn(c.ctx, l.room)
				return err
			}, "call")
			c.result <- err
			l.notify()
		}
	}
}

func (l *Loop) notify() {
	if l.observe != nil {
		l.observe(l.room.Snapshot())
	}
}

// safely 处理函数 panic 时记录并继续运行
func (l *Loop) safely(fn func() error, what string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec, debug.Stack())
			l.logger.Error("事件处理panic", zap.String("what", what), zap.Any("panic", rec))
		}
	}()
	if err := fn(); err != nil {
		l.logger.Debug("事件处理返回错误", zap.String("what", what), zap.Error(err))
	}
}

// Deliver 投递服务器消息，保持到达顺序
func (l *Loop) Deliver(ctx context.Context, p *protocol.Packet) error {
	select {
	case l.inbox <- p:
		return nil
	case <-l.done:
		return apperrors.New(apperrors.ErrCanceled, "事件循环已停止")
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrTimeout, "投递消息超时")
	}
}

// Do 在事件循环中执行 fn 并等待结果
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context, r *Room) error) error {
	c := call{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case l.calls <- c:
	case <-l.done:
		return apperrors.New(apperrors.ErrCanceled, "事件循环已停止")
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrTimeout, "等待事件循环超时")
	}

	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrTimeout, "等待事件循环超时")
	}
}

// View 在事件循环中读取快照
func (l *Loop) View(ctx context.Context) (SessionView, error) {
	var view SessionView
	err := l.Do(ctx, func(ctx context.Context, r *Room) error {
		view = r.Snapshot()
		return nil
	})
	return view, err
}
