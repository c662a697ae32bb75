package room

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/protocol"
)

func TestCandidate(t *testing.T) {
	tests := []struct {
		name  string
		c     Candidate
		none  bool
		json  string
		key   string
		value interface{}
	}{
		{"none", NoCandidate(), true, `-1`, "none", -1},
		{"card", CardCandidate(7), false, `7`, "card:7", 7},
		{"negative card", CardCandidate(-1), true, `-1`, "none", -1},
		{"virtual", VirtualCandidate("slash"), false, `"slash"`, "virtual:slash", "slash"},
		{"skill", SkillCandidate("zhiheng"), false, `"zhiheng"`, "skill:zhiheng", "zhiheng"},
		{"empty skill", SkillCandidate(""), true, `-1`, "none", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.none, tt.c.IsNone())
			data, err := json.Marshal(tt.c)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))
			assert.Equal(t, tt.key, tt.c.String())
			assert.Equal(t, tt.value, tt.c.Value())
		})
	}
}

func TestParseCandidate(t *testing.T) {
	c, err := ParseCandidate(json.RawMessage(`12`), "")
	require.NoError(t, err)
	assert.Equal(t, CardCandidate(12), c)

	c, err = ParseCandidate(json.RawMessage(`-1`), "")
	require.NoError(t, err)
	assert.True(t, c.IsNone())

	c, err = ParseCandidate(nil, "")
	require.NoError(t, err)
	assert.True(t, c.IsNone())

	c, err = ParseCandidate(json.RawMessage(`"slash"`), "")
	require.NoError(t, err)
	assert.Equal(t, VirtualCandidate("slash"), c)

	c, err = ParseCandidate(json.RawMessage(`"zhiheng"`), "skill")
	require.NoError(t, err)
	assert.Equal(t, SkillCandidate("zhiheng"), c)

	_, err = ParseCandidate(json.RawMessage(`{}`), "")
	assert.Error(t, err)
}

func TestSelectedTargetsKeepOrder(t *testing.T) {
	var st SelectedTargets
	assert.True(t, st.Add(3))
	assert.True(t, st.Add(1))
	assert.False(t, st.Add(3))
	assert.Equal(t, []int{3, 1}, st.IDs())
	assert.True(t, st.ContainsAll([]int{1, 3}))
	assert.True(t, st.ContainsAll(nil))
	assert.False(t, st.ContainsAll([]int{1, 2}))

	ids := st.IDs()
	ids[0] = 99
	assert.Equal(t, []int{3, 1}, st.IDs())

	assert.True(t, st.Remove(3))
	assert.False(t, st.Remove(3))
	assert.Equal(t, 1, st.Len())
	st.Clear()
	assert.Equal(t, 0, st.Len())
}

func TestParseExtraData(t *testing.T) {
	ed, err := ParseExtraData(json.RawMessage(`{"must_targets":[2,3],"skillName":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, ed.MustTargets)
	assert.True(t, ed.HasMustTargets())
	assert.JSONEq(t, `"x"`, string(ed.Raw["skillName"]))

	// 空数组也是声明了必选目标
	ed, err = ParseExtraData(json.RawMessage(`{"must_targets":[]}`))
	require.NoError(t, err)
	assert.True(t, ed.HasMustTargets())

	for _, raw := range []string{``, `null`, `[]`, `"str"`, `{"must_targets":"x"}`} {
		ed, err = ParseExtraData(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.False(t, ed.HasMustTargets(), raw)
	}

	_, err = ParseExtraData(json.RawMessage(`{"must_targets":["a"]}`))
	requireCode(t, err, apperrors.ErrMalformedPayload)
}

func TestPrompt(t *testing.T) {
	p := ParsePrompt("#slash-to:1:2:fire:3")
	assert.Equal(t, Prompt{Key: "#slash-to", Src: 1, Dest: 2, Arg: "fire", Arg2: "3"}, p)
	assert.Equal(t, "#slash-to:1:2:fire:3", p.String())

	assert.Equal(t, Prompt{Key: "#only"}, ParsePrompt("#only"))
	assert.Equal(t, "#only", ParsePrompt("#only").String())
	assert.Equal(t, Prompt{Key: "#x", Src: 0}, ParsePrompt("#x:abc"))

	assert.Equal(t, DefaultPrompt("#AskForChoice", "guanxing"), PromptOr("", "#AskForChoice", "guanxing"))
	assert.Equal(t, "#AskForChoice:0:0:guanxing", PromptOr("", "#AskForChoice", "guanxing").String())
	assert.Equal(t, "#custom", PromptOr("#custom", "#AskForChoice", "x").Key)
	assert.Empty(t, Prompt{}.String())
}

func TestPendingQueue(t *testing.T) {
	var q PendingQueue
	require.NoError(t, q.Push(PendingMessage{Command: "a", Ask: true}, false))
	requireCode(t, q.Push(PendingMessage{Command: "b", Ask: true}, false), apperrors.ErrPendingOverflow)
	require.NoError(t, q.Push(PendingMessage{Command: "n1"}, false))
	require.NoError(t, q.Push(PendingMessage{Command: "b", Ask: true}, true))
	requireCode(t, q.Push(PendingMessage{Command: "c", Ask: true}, true), apperrors.ErrPendingOverflow)
	require.NoError(t, q.Push(PendingMessage{Command: "n2"}, true))
	require.NoError(t, q.Push(PendingMessage{Command: "n3"}, true))

	items := q.Items()
	require.Len(t, items, 5)
	assert.Equal(t, 2, q.Asks())
	assert.False(t, items[0].ReceivedAt.IsZero())

	var order []string
	for {
		msg, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, msg.Command)
	}
	assert.Equal(t, []string{"a", "n1", "b", "n2", "n3"}, order)
}

func TestSeatsArrange(t *testing.T) {
	s := NewSeats(4, 10)
	require.True(t, s.AddPlayer(20, "b", ""))
	require.True(t, s.AddPlayer(30, "c", ""))
	assert.Equal(t, []int{10, 20, 30}, s.PlayerIDs())

	s.Arrange([]int{30, 10, 20}, 10)
	assert.Equal(t, []int{10, 20, 30}, s.PlayerIDs())
	assert.Equal(t, []int{30, 10, 20}, s.Order())

	s.Arrange(s.Order(), 30)
	assert.Equal(t, []int{30, 10, 20}, s.PlayerIDs())

	list := s.List()
	list[0].PlayerID = 99
	assert.True(t, s.Has(10))
	assert.False(t, s.Has(EmptySeat))
}

func TestDispatcherRegistry(t *testing.T) {
	d := NewDefaultDispatcher()
	kinds := d.Kinds()
	for _, k := range append(protocol.AskKinds(), protocol.NotifyKinds()...) {
		assert.Contains(t, kinds, k)
	}
	for _, k := range protocol.AskKinds() {
		h, ok := d.Lookup(k)
		require.True(t, ok)
		assert.True(t, h.Ask, k)
	}
	for _, k := range protocol.NotifyKinds() {
		h, _ := d.Lookup(k)
		assert.False(t, h.Ask, k)
	}

	noop := func(context.Context, *Room, PendingMessage) error { return nil }
	requireCode(t, d.Register(Handler{Kind: protocol.PlayCard, Handle: noop}), apperrors.ErrInvalidParam)
	requireCode(t, d.Register(Handler{Kind: "", Handle: noop}), apperrors.ErrInvalidParam)
	assert.Panics(t, func() { d.MustRegister(Handler{Kind: "X"}) })

	_, ok := d.Lookup("AskForPindian")
	assert.False(t, ok)
}

func TestDispatcherAcceptsNewKinds(t *testing.T) {
	d := NewDefaultDispatcher()
	d.MustRegister(Handler{
		Kind: "AskForPindian",
		Ask:  true,
		Handle: func(ctx context.Context, r *Room, msg PendingMessage) error {
			if err := r.begin(ctx, ModeReplying, msg); err != nil {
				return err
			}
			r.setPrompt(DefaultPrompt("#AskForPindian", ""))
			r.setAffordances(false, true)
			return nil
		},
	})

	tr := newTestRoom(t)
	tr.dispatcher = d
	tr.mustSend(t, "AskForPindian", "[]")
	assert.Equal(t, ModeReplying, tr.Mode())

	require.NoError(t, tr.Cancel(bg()))
	assert.Equal(t, protocol.CancelToken, tr.transport.Last().Data)
}

func TestEncodeModalResult(t *testing.T) {
	general := &Modal{Kind: ModalGeneral, Payload: &protocol.GeneralChoice{Generals: []string{"a", "b", "c"}, Count: 2}}
	out, err := encodeModalResult(general, ModalResult{Value: json.RawMessage(`["c","a"]`)})
	require.NoError(t, err)
	assert.Equal(t, `["c","a"]`, out)
	_, err = encodeModalResult(general, ModalResult{Value: json.RawMessage(`["a","a"]`)})
	requireCode(t, err, apperrors.ErrInvalidAnswer)
	_, err = encodeModalResult(general, ModalResult{Value: json.RawMessage(`["a"]`)})
	requireCode(t, err, apperrors.ErrInvalidAnswer)

	choice := &Modal{Kind: ModalChoice, Payload: &protocol.Choice{Options: []string{"draw", "recover"}}}
	out, err = encodeModalResult(choice, ModalResult{Value: json.RawMessage(`1`)})
	require.NoError(t, err)
	assert.Equal(t, "recover", out)
	out, err = encodeModalResult(choice, ModalResult{Value: json.RawMessage(`"draw"`)})
	require.NoError(t, err)
	assert.Equal(t, "draw", out)
	_, err = encodeModalResult(choice, ModalResult{Value: json.RawMessage(`5`)})
	requireCode(t, err, apperrors.ErrInvalidAnswer)

	chosen := &Modal{Kind: ModalCardChosen, Payload: &protocol.CardChosen{Handcards: []int{1}, Equips: []int{7}}}
	out, err = encodeModalResult(chosen, ModalResult{Value: json.RawMessage(`7`)})
	require.NoError(t, err)
	assert.Equal(t, "7", out)
	_, err = encodeModalResult(chosen, ModalResult{Value: json.RawMessage(`8`)})
	requireCode(t, err, apperrors.ErrInvalidAnswer)

	guanxing := &Modal{Kind: ModalGuanxing, Payload: &protocol.Guanxing{}}
	out, err = encodeModalResult(guanxing, ModalResult{Value: json.RawMessage(`[[1, 2], [3]]`)})
	require.NoError(t, err)
	assert.Equal(t, `[[1,2],[3]]`, out)
	_, err = encodeModalResult(guanxing, ModalResult{Value: json.RawMessage(`[[1,`)})
	requireCode(t, err, apperrors.ErrInvalidAnswer)

	custom := &Modal{Kind: ModalCustom, Payload: &protocol.CustomDialogData{Path: "x"}}
	out, err = encodeModalResult(custom, ModalResult{Value: json.RawMessage(`"raw text"`)})
	require.NoError(t, err)
	assert.Equal(t, "raw text", out)
	out, err = encodeModalResult(custom, ModalResult{Value: json.RawMessage(`{"a": 1}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	out, err = encodeModalResult(custom, ModalResult{Cancelled: true})
	require.NoError(t, err)
	assert.Equal(t, protocol.CancelToken, out)

	_, err = encodeModalResult(custom, ModalResult{})
	requireCode(t, err, apperrors.ErrInvalidAnswer)
}

func TestViewRecordsCommands(t *testing.T) {
	v := NewView()
	v.SetPrompt(Prompt{Key: "#x"})
	v.SetConfirmEnabled(true)
	v.MarkSeat(2, true, false)
	v.EnableCards("slash")
	require.NoError(t, v.ShowModal(&Modal{Kind: ModalChoice}))

	state := v.State()
	assert.Equal(t, "#x", state.Prompt.Key)
	assert.True(t, state.ConfirmEnabled)
	assert.Equal(t, "slash", state.CardPattern)
	assert.Equal(t, ModalChoice, state.Modal.Kind)
	assert.Equal(t, []int{2}, v.SelectableSeats())

	v.CloseModal()
	assert.Nil(t, v.State().Modal)

	v.FailModals(true)
	err := v.ShowModal(&Modal{Kind: ModalChoice})
	requireCode(t, err, apperrors.ErrMissingCollaborator)

	for i := 0; i < 30; i++ {
		v.Notice("n", false)
	}
	assert.Len(t, v.State().Notices, 20)
	v.ClearNotices()
	_, ok := v.LastNotice()
	assert.False(t, ok)
}
