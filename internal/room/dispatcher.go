package room

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// HandlerFunc 请求处理函数
//
// 只负责配置会话和界面，不发送回复。
type HandlerFunc func(ctx context.Context, r *Room, msg PendingMessage) error

// Handler 一种请求类型的处理器
type Handler struct {
	Kind string
	// Ask 为真表示服务器在等待回复，处理中的询问之后到达的同类消息会被缓存
	Ask    bool
	Handle HandlerFunc
}

// Dispatcher 按请求类型分发的注册表
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher 创建空注册表
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register 注册处理器，已存在的类型不会被覆盖
func (d *Dispatcher) Register(h Handler) error {
	if h.Kind == "" || h.Handle == nil {
		return apperrors.New(apperrors.ErrInvalidParam, "处理器缺少类型或处理函数")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[h.Kind]; exists {
		return apperrors.Newf(apperrors.ErrInvalidParam, "处理器已注册: %s", h.Kind)
	}
	d.handlers[h.Kind] = h
	return nil
}

// MustRegister 注册处理器，失败时panic
func (d *Dispatcher) MustRegister(h Handler) {
	if err := d.Register(h); err != nil {
		panic(err)
	}
}

// Lookup 查找处理器
func (d *Dispatcher) Lookup(kind string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Kinds 已注册的类型（已排序）
func (d *Dispatcher) Kinds() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kinds := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NewDefaultDispatcher 注册全部内置处理器
func NewDefaultDispatcher() *Dispatcher {
	d := NewDispatcher()
	for _, h := range builtinHandlers() {
		d.MustRegister(h)
	}
	return d
}
