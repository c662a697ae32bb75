package room

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/models"
	"github.com/wfunc/room-client/internal/protocol"
)

// fakeOracle 可编程的规则引擎，记录调用次数
type fakeOracle struct {
	mu        sync.Mutex
	canTarget func(c Candidate, target int, selected []int) bool
	feasible  func(c Candidate, selected []int) bool
	fits      func(c Candidate, pattern string) bool
	usable    func(c Candidate, self int) bool
	err       error
	calls     map[string]int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		canTarget: func(Candidate, int, []int) bool { return false },
		feasible:  func(Candidate, []int) bool { return true },
		fits:      func(Candidate, string) bool { return true },
		usable:    func(Candidate, int) bool { return true },
		calls:     make(map[string]int),
	}
}

func (o *fakeOracle) count(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[name]++
}

func (o *fakeOracle) Calls(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[name]
}

func (o *fakeOracle) CanTarget(c Candidate, target int, selected []int) (bool, error) {
	o.count("can_target")
	if o.err != nil {
		return false, o.err
	}
	return o.canTarget(c, target, selected), nil
}

func (o *fakeOracle) Feasible(c Candidate, selected []int) (bool, error) {
	o.count("feasible")
	if o.err != nil {
		return false, o.err
	}
	return o.feasible(c, selected), nil
}

func (o *fakeOracle) FitsPattern(c Candidate, pattern string) (bool, error) {
	o.count("fits_pattern")
	if o.err != nil {
		return false, o.err
	}
	return o.fits(c, pattern), nil
}

func (o *fakeOracle) Usable(c Candidate, self int) (bool, error) {
	o.count("usable")
	if o.err != nil {
		return false, o.err
	}
	return o.usable(c, self), nil
}

// fakeTransport 记录发出的数据包
type fakeTransport struct {
	mu      sync.Mutex
	packets []*protocol.Packet
	fail    error
}

func (t *fakeTransport) Send(ctx context.Context, p *protocol.Packet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.packets = append(t.packets, p)
	return nil
}

func (t *fakeTransport) Sent() []*protocol.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*protocol.Packet(nil), t.packets...)
}

func (t *fakeTransport) Last() *protocol.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.packets) == 0 {
		return nil
	}
	return t.packets[len(t.packets)-1]
}

// memoryJournal 内存回复记录
type memoryJournal struct {
	mu      sync.Mutex
	records []*models.ReplyRecord
}

func (j *memoryJournal) Append(ctx context.Context, rec *models.ReplyRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

type testRoom struct {
	*Room
	oracle    *fakeOracle
	transport *fakeTransport
	view      *View
	journal   *memoryJournal
	requestID int64
}

// newTestRoom 创建自己为1号、座位为 1,2,3 的房间
func newTestRoom(t *testing.T) *testRoom {
	t.Helper()

	tr := &testRoom{
		oracle:    newFakeOracle(),
		transport: &fakeTransport{},
		view:      NewView(),
		journal:   &memoryJournal{},
	}
	r, err := New(Options{
		SessionID: "test-session",
		SelfID:    1,
		SeatCount: 3,
		Oracle:    tr.oracle,
		Presenter: tr.view,
		Transport: tr.transport,
		Journal:   tr.journal,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	tr.Room = r

	require.True(t, r.Seats().AddPlayer(2, "p2", ""))
	require.True(t, r.Seats().AddPlayer(3, "p3", ""))
	return tr
}

// send 模拟服务器发来一条消息
func (tr *testRoom) send(command string, payload interface{}) error {
	var data string
	switch v := payload.(type) {
	case string:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		data = string(b)
	}
	tr.requestID++
	return tr.ReceiveRequest(context.Background(), PendingMessage{
		RequestID: tr.requestID,
		Command:   command,
		Data:      data,
	})
}

func (tr *testRoom) mustSend(t *testing.T, command string, payload interface{}) {
	t.Helper()
	require.NoError(t, tr.send(command, payload))
}

// startPlay 进入自己的出牌阶段
func (tr *testRoom) startPlay(t *testing.T) {
	t.Helper()
	tr.mustSend(t, protocol.PlayCard, strconv.Itoa(tr.SelfID()))
	require.Equal(t, ModePlaying, tr.Mode())
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperrors.GetCode(err), err.Error())
}

func bg() context.Context { return context.Background() }
