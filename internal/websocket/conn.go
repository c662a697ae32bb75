package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/config"
	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/protocol"
)

// 默认连接参数
const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 512 * 1024
	sendBufferSize        = 64
)

// PacketSink 接收服务器消息，保持到达顺序
type PacketSink interface {
	Deliver(ctx context.Context, p *protocol.Packet) error
}

// outbound 写队列中的一帧，写完后通过 done 回报结果
type outbound struct {
	data []byte
	done chan error
}

// ServerConn 到房间服务器的连接
//
// 读循环把解析后的包投递给 sink；Send 把回复放入写队列并等待写入完成。
// 断线后按配置重连，重连期间 Send 返回 ErrWebSocketClosed。
type ServerConn struct {
	cfg    config.ClientConfig
	header http.Header
	sink   PacketSink
	dialer *websocket.Dialer
	logger *zap.Logger

	mu        sync.RWMutex
	send      chan outbound
	closed    chan struct{} // 当前连接的读写循环都退出后关闭
	connected bool

	onConnect func()
}

// NewServerConn 创建连接，header 可携带认证信息
func NewServerConn(cfg config.ClientConfig, header http.Header, sink PacketSink) *ServerConn {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteWait
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		// ping周期必须小于pong超时
		cfg.PingInterval = (cfg.PongTimeout * 9) / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	return &ServerConn{
		cfg:    cfg,
		header: header,
		sink:   sink,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.GetModuleLogger(logger.ModuleWebSocket),
	}
}

// OnConnect 每次连接建立后回调（包括重连）
func (c *ServerConn) OnConnect(fn func()) {
	c.onConnect = fn
}

// Connected 是否已连接
func (c *ServerConn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Send 实现 room.Transport
//
// 帧写入连接后才返回 nil；写入失败或连接在写入前断开时返回错误，
// 调用方保持待回复状态以便重试。
func (c *ServerConn) Send(ctx context.Context, p *protocol.Packet) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}

	c.mu.RLock()
	send, closed, connected := c.send, c.closed, c.connected
	c.mu.RUnlock()
	if !connected {
		return apperrors.New(apperrors.ErrWebSocketClosed, "未连接到房间服务器")
	}

	msg := outbound{data: data, done: make(chan error, 1)}
	select {
	case send <- msg:
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrWebSocketSend, "发送超时")
	default:
		return apperrors.New(apperrors.ErrWebSocketSend, "发送缓冲区已满")
	}

	select {
	case err := <-msg.done:
		return c.sent(p, err)
	case <-closed:
		// 断开前可能刚好写完
		select {
		case err := <-msg.done:
			return c.sent(p, err)
		default:
		}
		return apperrors.New(apperrors.ErrWebSocketClosed, "连接在写入前断开")
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrWebSocketSend, "等待写入超时")
	}
}

func (c *ServerConn) sent(p *protocol.Packet, err error) error {
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrWebSocketSend, "写入失败")
	}
	logger.LogProtocolMessage("send", string(p.Type), p.Command, p.Data)
	return nil
}

// Run 连接并保持，直到 ctx 结束或重连次数用完
func (c *ServerConn) Run(ctx context.Context) error {
	attempts := 0
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			attempts = 0
			c.serve(ctx, conn)
		} else {
			c.logger.Warn("连接房间服务器失败", zap.String("url", c.cfg.ServerURL), zap.Error(err))
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts++
		if c.cfg.MaxReconnects >= 0 && attempts > c.cfg.MaxReconnects {
			return apperrors.Newf(apperrors.ErrWebSocketConnect, "重连%d次后放弃", c.cfg.MaxReconnects)
		}

		c.logger.Info("准备重连",
			zap.Int("attempt", attempts),
			zap.Duration("interval", c.cfg.ReconnectInterval))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

func (c *ServerConn) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.ServerURL, c.header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrWebSocketConnect, "握手失败 status=%d", status)
	}
	c.logger.Info("已连接房间服务器", zap.String("url", c.cfg.ServerURL))
	return conn, nil
}

// serve 运行一条连接的读写循环，任一方向出错即返回
func (c *ServerConn) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan outbound, sendBufferSize)
	closed := make(chan struct{})
	c.mu.Lock()
	c.send = send
	c.closed = closed
	c.connected = true
	c.mu.Unlock()

	if c.onConnect != nil {
		c.onConnect()
	}

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// 写循环退出时一并结束读循环
		defer cancel()
		c.writePump(connCtx, conn, send)
	}()

	c.readPump(connCtx, conn)
	cancel()

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	conn.Close()
	wg.Wait()
	close(closed)
	c.logger.Info("与房间服务器的连接已断开")
}

func (c *ServerConn) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(c.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	// ctx 结束时关闭连接以打断阻塞的读取
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.logger.Error("WebSocket读取错误", zap.Error(err))
			}
			return
		}

		p, err := protocol.Decode(message)
		if err != nil {
			// 格式错误的包直接丢弃，不影响后续消息
			c.logger.Warn("丢弃无法解析的消息", zap.ByteString("raw", message), zap.Error(err))
			continue
		}
		if err := c.sink.Deliver(ctx, p); err != nil {
			c.logger.Error("投递消息失败", zap.String("command", p.Command), zap.Error(err))
			return
		}
	}
}

func (c *ServerConn) writePump(ctx context.Context, conn *websocket.Conn, send <-chan outbound) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			// 每个包一帧，服务器按帧解析
			err := conn.WriteMessage(websocket.TextMessage, msg.data)
			msg.done <- err
			if err != nil {
				c.logger.Error("WebSocket写入错误", zap.Error(err))
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
