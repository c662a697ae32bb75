package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/room-client/internal/config"
	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/protocol"
)

// recordingSink 记录投递的包
type recordingSink struct {
	mu      sync.Mutex
	packets []*protocol.Packet
}

func (s *recordingSink) Deliver(ctx context.Context, p *protocol.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, p)
	return nil
}

func (s *recordingSink) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.packets))
	for i, p := range s.packets {
		out[i] = p.Command
	}
	return out
}

// fakeRoomServer 模拟房间服务器：连接后发送 frames，并记录收到的消息
type fakeRoomServer struct {
	*httptest.Server
	frames   []string
	received chan string
	header   chan http.Header
}

func newFakeRoomServer(t *testing.T, frames ...string) *fakeRoomServer {
	t.Helper()
	s := &fakeRoomServer{
		frames:   frames,
		received: make(chan string, 16),
		header:   make(chan http.Header, 4),
	}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.header <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range s.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.received <- string(msg)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeRoomServer) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func testClientConfig(url string) config.ClientConfig {
	return config.ClientConfig{
		ServerURL:         url,
		HandshakeTimeout:  time.Second,
		ReconnectInterval: 10 * time.Millisecond,
		MaxReconnects:     0,
		PingInterval:      time.Second,
		PongTimeout:       5 * time.Second,
		WriteTimeout:      time.Second,
	}
}

func TestServerConnDeliversAndSends(t *testing.T) {
	srv := newFakeRoomServer(t,
		`{"id":1,"type":"request","command":"AskForSkillInvoke","data":"[\"jianxiong\",\"\"]"}`,
		`not json`,
		`{"id":0,"command":"StartGame","data":""}`,
	)
	sink := &recordingSink{}

	header := http.Header{}
	header.Set("Authorization", "Bearer token")
	conn := NewServerConn(testClientConfig(srv.URL()), header, sink)

	connected := make(chan struct{}, 1)
	conn.OnConnect(func() { connected <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("连接超时")
	}
	assert.Equal(t, "Bearer token", (<-srv.header).Get("Authorization"))

	// 格式错误的帧被丢弃
	require.Eventually(t, func() bool { return len(sink.Commands()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{protocol.AskForSkillInvoke, protocol.StartGame}, sink.Commands())

	require.NoError(t, conn.Send(ctx, protocol.NewReply(1, protocol.AskForSkillInvoke, protocol.ConfirmToken)))
	select {
	case msg := <-srv.received:
		p, err := decodeOutbound(msg)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeReply, p.Type)
		assert.Equal(t, int64(1), p.ID)
		assert.Equal(t, protocol.ConfirmToken, p.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("服务器没有收到回复")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run 没有退出")
	}
	assert.False(t, conn.Connected())
}

func TestServerConnSendWhileDisconnected(t *testing.T) {
	conn := NewServerConn(testClientConfig("ws://127.0.0.1:1/room"), nil, &recordingSink{})
	err := conn.Send(context.Background(), protocol.NewPush(protocol.PushRequest, "luckcard,true"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrWebSocketClosed, apperrors.GetCode(err))
}

func TestServerConnSendReportsUnwrittenFrame(t *testing.T) {
	conn := NewServerConn(testClientConfig("ws://127.0.0.1:1/room"), nil, &recordingSink{})

	// 连接已登记但写循环没有运行，帧停留在队列里
	closed := make(chan struct{})
	conn.mu.Lock()
	conn.send = make(chan outbound, 1)
	conn.closed = closed
	conn.connected = true
	conn.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		errc <- conn.Send(context.Background(), protocol.NewReply(3, protocol.AskForSkillInvoke, protocol.ConfirmToken))
	}()

	select {
	case err := <-errc:
		t.Fatalf("写入前不应返回: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(closed)
	select {
	case err := <-errc:
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrWebSocketClosed, apperrors.GetCode(err))
	case <-time.After(time.Second):
		t.Fatal("断开后 Send 没有返回")
	}
}

func TestServerConnSendTimesOutWaitingForWrite(t *testing.T) {
	conn := NewServerConn(testClientConfig("ws://127.0.0.1:1/room"), nil, &recordingSink{})
	conn.mu.Lock()
	conn.send = make(chan outbound, 1)
	conn.closed = make(chan struct{})
	conn.connected = true
	conn.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := conn.Send(ctx, protocol.NewReply(3, protocol.AskForSkillInvoke, protocol.ConfirmToken))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrWebSocketSend, apperrors.GetCode(err))
}

func TestServerConnGivesUpAfterReconnects(t *testing.T) {
	// 拒绝升级的服务器
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testClientConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.MaxReconnects = 2
	conn := NewServerConn(cfg, nil, &recordingSink{})

	err := conn.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrWebSocketConnect, apperrors.GetCode(err))
}

func TestServerConnReconnects(t *testing.T) {
	srv := newFakeRoomServer(t, `{"command":"StartGame"}`)
	// 第一次连接后立即断开
	var mu sync.Mutex
	first := true
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		drop := first
		first = false
		mu.Unlock()
		if drop {
			conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
			if err == nil {
				conn.Close()
			}
			return
		}
		srv.Config.Handler.ServeHTTP(w, r)
	}))
	defer proxy.Close()

	cfg := testClientConfig("ws" + strings.TrimPrefix(proxy.URL, "http"))
	cfg.MaxReconnects = 3
	sink := &recordingSink{}
	conn := NewServerConn(cfg, nil, sink)

	var connects int
	var cmu sync.Mutex
	conn.OnConnect(func() {
		cmu.Lock()
		connects++
		cmu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	require.Eventually(t, func() bool { return len(sink.Commands()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cmu.Lock()
	assert.Equal(t, 2, connects)
	cmu.Unlock()
}

func decodeOutbound(raw string) (*protocol.Packet, error) {
	var p protocol.Packet
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
