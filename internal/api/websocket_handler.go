package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/middleware"
	ws "github.com/wfunc/room-client/internal/websocket"
)

// WatchHandler 界面观察者WebSocket
type WatchHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWatchHandler 创建处理器
func NewWatchHandler(hub *ws.Hub, logger *zap.Logger) *WatchHandler {
	return &WatchHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 控制API只监听本机，界面可能来自任意端口
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Watch 升级连接并订阅会话快照
func (h *WatchHandler) Watch(c *gin.Context) {
	operator, _ := middleware.GetOperator(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("界面订阅建立",
		zap.String("client_id", client.ID),
		zap.String("operator", operator))
}
