package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/middleware"
	"github.com/wfunc/room-client/internal/room"
	"github.com/wfunc/room-client/internal/utils"
	"github.com/wfunc/room-client/internal/websocket"
)

// Options 路由依赖
type Options struct {
	Loop *room.Loop
	View *room.View        // 可选，提供界面状态
	Hub  *websocket.Hub    // 可选，提供 /ws/watch
	JWT  *utils.JWTManager // 为 nil 时不校验令牌
	Mode string            // gin 运行模式
	// CallTimeout 等待事件循环的超时
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Router 控制API路由器
type Router struct {
	engine  *gin.Engine
	session *SessionHandler
	watch   *WatchHandler
	auth    *middleware.AuthMiddleware
	log     *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(opts Options) *Router {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:  engine,
		session: NewSessionHandler(opts.Loop, opts.View, opts.CallTimeout),
		auth:    middleware.NewAuthMiddleware(opts.JWT),
		log:     opts.Logger,
	}
	if opts.Hub != nil {
		router.watch = NewWatchHandler(opts.Hub, opts.Logger)
	}

	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	v1.Use(r.auth.RequireAuth())
	{
		v1.GET("/session", r.session.GetSession)
		v1.GET("/view", r.session.GetView)
		v1.POST("/view/notices/clear", r.session.ClearNotices)

		op := v1.Group("/session")
		op.Use(r.auth.RequireRole(utils.RoleOperator))
		{
			op.POST("/candidate", r.session.SelectCandidate)
			op.POST("/targets/:id", r.session.ToggleTarget)
			op.POST("/confirm", r.session.Confirm)
			op.POST("/cancel", r.session.Cancel)
			op.POST("/modal", r.session.AnswerModal)
			op.PUT("/method", r.session.SetMethod)
			op.PUT("/interaction", r.session.SetInteraction)
		}
	}

	if r.watch != nil {
		ws := r.engine.Group("/ws")
		ws.Use(r.auth.RequireAuth())
		ws.GET("/watch", r.watch.Watch)
	}

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查，事件循环无响应时视为不健康
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	view, err := r.session.loop.View(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "事件循环无响应",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"session_id": view.SessionID,
		"mode":       view.Mode,
	})
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
