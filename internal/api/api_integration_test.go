package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/protocol"
	"github.com/wfunc/room-client/internal/room"
	"github.com/wfunc/room-client/internal/rules"
	"github.com/wfunc/room-client/internal/utils"
)

// captureTransport 记录发出的包
type captureTransport struct {
	mu      sync.Mutex
	packets []*protocol.Packet
}

func (t *captureTransport) Send(ctx context.Context, p *protocol.Packet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.packets = append(t.packets, p)
	return nil
}

func (t *captureTransport) Sent() []*protocol.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*protocol.Packet(nil), t.packets...)
}

type testServer struct {
	router    *Router
	loop      *room.Loop
	view      *room.View
	transport *captureTransport
}

func newTestServer(t *testing.T, jwt *utils.JWTManager) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	oracle, err := rules.New("")
	require.NoError(t, err)

	ts := &testServer{view: room.NewView(), transport: &captureTransport{}}
	r, err := room.New(room.Options{
		SessionID: "api-session",
		SelfID:    1,
		SeatCount: 3,
		Oracle:    oracle,
		Presenter: ts.view,
		Transport: ts.transport,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	r.Seats().AddPlayer(2, "p2", "")
	r.Seats().AddPlayer(3, "p3", "")

	ts.loop = room.NewLoop(r, 8)
	ctx, cancel := context.WithCancel(context.Background())
	go ts.loop.Run(ctx)
	t.Cleanup(cancel)

	ts.router = NewRouter(Options{
		Loop:        ts.loop,
		View:        ts.view,
		JWT:         jwt,
		CallTimeout: time.Second,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.GetEngine().ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (ts *testServer) startPlay(t *testing.T) {
	t.Helper()
	require.NoError(t, ts.loop.Deliver(context.Background(), &protocol.Packet{
		ID: 7, Type: protocol.TypeRequest, Command: protocol.PlayCard, Data: "1",
	}))
	require.Eventually(t, func() bool {
		view, err := ts.loop.View(context.Background())
		return err == nil && view.Mode == room.ModePlaying
	}, time.Second, 5*time.Millisecond)
}

func errorCode(resp map[string]interface{}) apperrors.ErrorCode {
	e, _ := resp["error"].(map[string]interface{})
	code, _ := e["code"].(float64)
	return apperrors.ErrorCode(code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w, resp := ts.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "idle", resp["mode"])
}

func TestPlaySlashThroughAPI(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.startPlay(t)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/session/candidate", map[string]interface{}{"card": "slash"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "slash", data["candidate"])
	assert.Equal(t, false, data["confirm_enabled"])
	assert.ElementsMatch(t, []interface{}{1.0, 2.0, 3.0}, data["selectable"])

	w, resp = ts.do(t, http.MethodPost, "/api/v1/session/targets/2", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{2.0}, data["targets"])
	assert.Equal(t, true, data["confirm_enabled"])

	w, resp = ts.do(t, http.MethodPost, "/api/v1/session/confirm", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "idle", resp["data"].(map[string]interface{})["mode"])

	sent := ts.transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.TypeReply, sent[0].Type)
	assert.Equal(t, int64(7), sent[0].ID)
	assert.Contains(t, sent[0].Data, `"slash"`)

	// 已回复后再次确定被拒绝
	w, resp = ts.do(t, http.MethodPost, "/api/v1/session/confirm", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.ErrNotAwaitingReply, errorCode(resp))
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.startPlay(t)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/session/targets/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.ErrInvalidParam, errorCode(resp))

	w, _ = ts.do(t, http.MethodPost, "/api/v1/session/candidate", map[string]interface{}{"card": map[string]int{"a": 1}}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/v1/session/modal", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = ts.do(t, http.MethodPut, "/api/v1/session/interaction", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.ErrInvalidParam, errorCode(resp))

	w, resp = ts.do(t, http.MethodPut, "/api/v1/session/method", map[string]string{"method": "recast"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "recast", resp["data"].(map[string]interface{})["method"])

	// 没有打开的对话框
	w, resp = ts.do(t, http.MethodPost, "/api/v1/session/modal", map[string]interface{}{"value": 1}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, apperrors.IsInvalidTransition(apperrors.New(errorCode(resp))))
}

func TestViewEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.startPlay(t)

	w, resp := ts.do(t, http.MethodGet, "/api/v1/view", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, ".", data["card_pattern"])

	ts.view.Notice("#GameOver", true)
	w, _ = ts.do(t, http.MethodPost, "/api/v1/view/notices/clear", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := ts.view.LastNotice()
	assert.False(t, ok)
}

func TestAuth(t *testing.T) {
	jwt := utils.NewJWTManager("secret", time.Hour)
	ts := newTestServer(t, jwt)

	w, resp := ts.do(t, http.MethodGet, "/api/v1/session", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.EqualValues(t, apperrors.ErrAuthentication, resp["code"])

	w, _ = ts.do(t, http.MethodGet, "/api/v1/session", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	observer, err := jwt.GenerateToken("viewer", utils.RoleObserver, "")
	require.NoError(t, err)
	w, _ = ts.do(t, http.MethodGet, "/api/v1/session", nil, observer)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodPost, "/api/v1/session/cancel", nil, observer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	operator, err := jwt.GenerateToken("alice", utils.RoleOperator, "")
	require.NoError(t, err)
	ts.startPlay(t)
	w, _ = ts.do(t, http.MethodPost, "/api/v1/session/cancel", nil, operator)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 健康检查不需要令牌
	w, _ = ts.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDocsAndNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	w, _ := ts.do(t, http.MethodGet, "/openapi", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w, resp := ts.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["code"])
}
