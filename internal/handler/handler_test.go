package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/derby"
	"telegram-casino-bot/internal/game/heist"
	"telegram-casino-bot/internal/game/sicbo"
	"telegram-casino-bot/internal/lobby"
	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/lock"
)

func newDerby(t *testing.T) *derby.Game {
	t.Helper()
	g, err := derby.New(derby.Config{Horses: derby.DefaultHorses(), Lobby: derby.DefaultLobby()})
	require.NoError(t, err)
	return g
}

func newHeist(t *testing.T) *heist.Game {
	t.Helper()
	g, err := heist.New(heist.DefaultConfig())
	require.NoError(t, err)
	return g
}

func newRegistry(t *testing.T) *game.Registry {
	t.Helper()
	r := game.NewRegistry()
	require.NoError(t, r.Register(newDerby(t)))
	require.NoError(t, r.Register(newHeist(t)))
	require.NoError(t, r.Register(sicbo.New(sicbo.DefaultLobby())))
	return r
}

func TestLobbyErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{lobby.ErrAlreadyActive, "❌ 当前群组已有进行中的游戏"},
		{lobby.ErrSessionNotFound, "❌ 当前没有进行中的游戏"},
		{lobby.ErrSessionNotForming, "❌ 报名已截止"},
		{lobby.ErrAlreadyStaked, "❌ 您已经下注了"},
		{lobby.ErrCapacityReached, "❌ 人数已满"},
		{lobby.ErrInvalidAmount, "❌ 下注金额无效"},
		{lobby.ErrInvalidSelection, "❌ 无效的选项"},
		{fmt.Errorf("%w: %w", lobby.ErrInsufficientFunds, errors.New("balance")), "❌ 余额不足"},
		{lobby.ErrUnauthorized, "❌ 只有发起人可以操作"},
		{lobby.ErrBelowMinimum, "❌ 人数不足，无法开始"},
		{fmt.Errorf("create: %w", lobby.ErrUnknownGame), "❌ 未知的游戏"},
		{fmt.Errorf("%w: context deadline exceeded", lock.ErrLockTimeout), "⏳ 操作繁忙，请稍后重试"},
		{context.DeadlineExceeded, "⏳ 操作繁忙，请稍后重试"},
		{errors.New("boom"), "❌ 操作失败，请稍后重试"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, lobbyErrorText(tt.err))
		})
	}
}

func TestParseJoinArgs(t *testing.T) {
	d := newDerby(t)
	h := newHeist(t)
	s := sicbo.New(sicbo.DefaultLobby())

	tests := []struct {
		name    string
		g       game.Game
		args    []string
		amount  int64
		sel     int
		wantErr error
	}{
		{"derby by name", d, []string{"100", "comet"}, 100, 1, nil},
		{"derby by number", d, []string{"50", "3"}, 50, 2, nil},
		{"derby missing selection", d, []string{"50"}, 0, 0, errUsage},
		{"derby unknown horse", d, []string{"50", "pegasus"}, 0, 0, lobby.ErrInvalidSelection},
		{"heist single selection", h, []string{"200"}, 200, 0, nil},
		{"sicbo big", s, []string{"10", "big"}, 10, sicbo.SelectionBig, nil},
		{"no args", d, nil, 0, 0, errUsage},
		{"amount not a number", d, []string{"lots", "1"}, 0, 0, errUsage},
		{"zero amount", h, []string{"0"}, 0, 0, lobby.ErrInvalidAmount},
		{"negative amount", h, []string{"-5"}, 0, 0, lobby.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, sel, err := parseJoinArgs(tt.g, tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, amount)
			assert.Equal(t, tt.sel, sel)
		})
	}
}

func TestJoinUsage(t *testing.T) {
	assert.Contains(t, joinUsage(newDerby(t)), "Thunder, Comet")
	assert.NotContains(t, joinUsage(newHeist(t)), "<选项>")
}

func TestParseSeconds(t *testing.T) {
	d, err := parseSeconds("30", time.Second, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	_, err = parseSeconds("0", time.Second, time.Minute)
	assert.Error(t, err)
	_, err = parseSeconds("61", time.Second, time.Minute)
	assert.Error(t, err)
	_, err = parseSeconds("soon", time.Second, time.Minute)
	assert.Error(t, err)
}

func TestParseAdminArgs(t *testing.T) {
	id, amount, err := parseAdminArgs("admin_add", []string{"123456789", "100"})
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), id)
	assert.Equal(t, int64(100), amount)

	_, _, err = parseAdminArgs("admin_sub", []string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/admin_sub <用户ID> <金额>")

	_, _, err = parseAdminArgs("admin_set", []string{"abc", "1"})
	assert.EqualError(t, err, "❌ 用户ID格式错误，请输入数字")

	_, _, err = parseAdminArgs("admin_set", []string{"1", "1.5"})
	assert.EqualError(t, err, "❌ 金额格式错误，请输入整数")
}

func TestDisplayName(t *testing.T) {
	names := map[int64]string{1: "alice", 2: "@bob"}
	assert.Equal(t, "@alice", displayName(names, 1))
	assert.Equal(t, "@bob", displayName(names, 2))
	assert.Equal(t, "User3", displayName(names, 3))
}

func settledDerbyView() lobby.SessionView {
	return lobby.SessionView{
		ID:       "s1",
		ScopeKey: "-100",
		OwnerID:  1,
		Kind:     "derby",
		Phase:    lobby.PhaseSettled,
		Participants: []lobby.Stake{
			{ParticipantID: 1, Amount: 100, Selection: 1},
			{ParticipantID: 2, Amount: 100, Selection: 0},
		},
		Outcome: &lobby.Outcome{
			Selection:   1,
			Multipliers: map[int]lobby.Odds{1: lobby.WholeOdds(3)},
			Detail:      map[string]any{"winner": "Comet", "ticks": 12},
		},
		Payouts: []lobby.Payout{
			{ParticipantID: 1, Selection: 1, Stake: 100, Amount: 300},
			{ParticipantID: 2, Selection: 0, Stake: 100, Amount: 0},
		},
		TotalDisbursed: 300,
	}
}

func TestRenderSettled_Derby(t *testing.T) {
	names := map[int64]string{1: "alice", 2: "bob"}
	msg := renderSettled(newDerby(t), settledDerbyView(), names)

	assert.Contains(t, msg, "🏁 冠军: Comet (12 回合)")
	assert.Contains(t, msg, "🎉 @alice [Comet] +200")
	assert.Contains(t, msg, "😢 @bob [Thunder] -100")
	assert.Contains(t, msg, "💸 共派彩 300 金币")
	assert.NotContains(t, msg, "⚠️")
}

func TestRenderSettled_PartialFailure(t *testing.T) {
	v := settledDerbyView()
	v.PartialFailure = true
	msg := renderSettled(newDerby(t), v, nil)
	assert.Contains(t, msg, "⚠️ 部分派彩失败")
}

func TestDescribeOutcome_Heist(t *testing.T) {
	g := newHeist(t)
	ok := &lobby.Outcome{Selection: 0, Detail: map[string]any{"success": true}}
	assert.Contains(t, describeOutcome(g, ok), "行动成功")

	failed := &lobby.Outcome{Selection: -1, Detail: map[string]any{"success": false, "failed_at": "vault"}}
	assert.Equal(t, "🚨 行动失败于 vault 阶段\n", describeOutcome(g, failed))

	assert.Empty(t, describeOutcome(g, nil))
}

func TestRenderCancelled(t *testing.T) {
	v := lobby.SessionView{
		Kind:            "heist",
		MinParticipants: 2,
		Participants:    []lobby.Stake{{ParticipantID: 7, Amount: 50}},
		Payouts:         []lobby.Payout{{ParticipantID: 7, Stake: 50, Amount: 50}},
	}
	msg := renderCancelled(v, lobby.ReasonBelowMinimum, map[int64]string{7: "carol"})

	assert.True(t, strings.HasPrefix(msg, "🚫 🏦 抢银行已取消: 报名人数不足"))
	assert.Contains(t, msg, "👥 1/2 人")
	assert.Contains(t, msg, "↩️ @carol 退还 50")

	msg = renderCancelled(lobby.SessionView{Kind: "derby"}, "unknown", nil)
	assert.Equal(t, "🚫 🏇 赛马已取消: 游戏已取消", msg)
}

func TestRenderSnapshot(t *testing.T) {
	v := lobby.SessionView{
		Kind:            "derby",
		Phase:           lobby.PhaseForming,
		OwnerID:         1,
		MinParticipants: 2,
		Capacity:        10,
		Remaining:       42 * time.Second,
		Participants:    []lobby.Stake{{ParticipantID: 1, Amount: 80, Selection: 4}},
	}
	msg := renderSnapshot(newDerby(t), v, map[int64]string{1: "alice"})

	assert.Contains(t, msg, "🏇 赛马 - 报名中")
	assert.Contains(t, msg, "⏰ 剩余 42 秒")
	assert.Contains(t, msg, "👥 1/10 人 (至少 2 人) | 💰 80")
	assert.Contains(t, msg, "@alice [Lucky] 80")
}

func TestRenderForming_ListsHorses(t *testing.T) {
	v := lobby.SessionView{Kind: "derby", OwnerID: 1, Capacity: 10, MinParticipants: 2, Remaining: time.Minute}
	msg := renderForming(newDerby(t), v, nil)
	assert.Contains(t, msg, "1. Thunder (赔率 2.5)")
	assert.Contains(t, msg, "5. Lucky (赔率 10)")
}

func TestFormatDailyRanks(t *testing.T) {
	var b strings.Builder
	formatDailyRanks(&b, []*model.DailyRank{
		{UserID: 1, Username: "alice", NetProfit: 500},
		{UserID: 2, NetProfit: 20},
	}, true)
	assert.Equal(t, "🥇 alice: +500\n🥈 User2: +20\n", b.String())

	b.Reset()
	formatDailyRanks(&b, []*model.DailyRank{{UserID: 3, Username: "bob", NetProfit: -70}}, false)
	assert.Equal(t, "1. bob: -70\n", b.String())

	b.Reset()
	formatDailyRanks(&b, nil, true)
	assert.Equal(t, "暂无数据\n", b.String())
}

type sentMessage struct {
	to   tele.Recipient
	text string
	opts []interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, sentMessage{to: to, text: what.(string), opts: opts})
	chatID := int64(-100)
	return &tele.Message{ID: len(s.sent), Chat: &tele.Chat{ID: chatID}}, nil
}

func TestOnPhaseChange_PostsAnnouncements(t *testing.T) {
	tracker := NewMessageTracker(time.Minute)
	h := NewLobbyHandler(nil, newRegistry(t), nil, tracker, time.Minute)
	out := &fakeSender{}
	h.SetSender(out)

	view := lobby.SessionView{ID: "s1", ScopeKey: "-100", Kind: "sicbo", Phase: lobby.PhaseForming, Capacity: 20}
	ctx := context.Background()

	h.OnPhaseChange(ctx, lobby.PhaseChange{ScopeKey: "-100", Next: lobby.PhaseForming, View: view})
	h.OnPhaseChange(ctx, lobby.PhaseChange{ScopeKey: "-100", Previous: lobby.PhaseLocked, Next: lobby.PhaseResolving, View: view})
	h.OnPhaseChange(ctx, lobby.PhaseChange{ScopeKey: "not-a-chat", Next: lobby.PhaseLocked, View: view})
	h.OnPhaseChange(ctx, lobby.PhaseChange{ScopeKey: "-100", Next: lobby.PhaseCancelled, Reason: lobby.ReasonHostCancel, View: view})

	require.Len(t, out.sent, 2)
	assert.Equal(t, "-100", out.sent[0].to.Recipient())
	assert.Contains(t, out.sent[0].text, "骰宝")
	require.Len(t, out.sent[0].opts, 1)
	assert.IsType(t, &tele.ReplyMarkup{}, out.sent[0].opts[0])
	assert.Contains(t, out.sent[1].text, "发起人取消了游戏")
	assert.Equal(t, 2, tracker.Len())
}

func TestOnPhaseChange_SendErrorNotTracked(t *testing.T) {
	tracker := NewMessageTracker(time.Minute)
	h := NewLobbyHandler(nil, newRegistry(t), nil, tracker, time.Minute)
	h.SetSender(&fakeSender{err: errors.New("forbidden")})

	h.OnPhaseChange(context.Background(), lobby.PhaseChange{
		ScopeKey: "-100",
		Next:     lobby.PhaseLocked,
		View:     lobby.SessionView{Kind: "heist"},
	})
	assert.Equal(t, 0, tracker.Len())
}

func TestNamesFor(t *testing.T) {
	h := NewLobbyHandler(nil, newRegistry(t), nil, nil, time.Minute)
	h.remember(&tele.User{ID: 1, Username: "alice"})
	h.remember(&tele.User{ID: 2, FirstName: "Bob"})
	h.remember(&tele.User{ID: 3})

	names := h.namesFor(lobby.SessionView{
		OwnerID:      1,
		Participants: []lobby.Stake{{ParticipantID: 2}, {ParticipantID: 3}},
	})
	assert.Equal(t, map[int64]string{1: "alice", 2: "Bob", 3: ""}, names)
}

type fakeDeleter struct {
	deleted []int
	err     error
}

func (d *fakeDeleter) Delete(msg tele.Editable) error {
	id, _ := msg.MessageSig()
	n := 0
	fmt.Sscan(id, &n)
	d.deleted = append(d.deleted, n)
	return d.err
}

func TestMessageTracker_Clean(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewMessageTracker(30 * time.Minute)
	tr.now = func() time.Time { return now }

	chat := &tele.Chat{ID: -100}
	tr.Track(&tele.Message{ID: 1, Chat: chat})
	now = now.Add(20 * time.Minute)
	tr.Track(&tele.Message{ID: 2, Chat: chat})
	tr.Track(nil)
	tr.Track(&tele.Message{ID: 3})
	require.Equal(t, 2, tr.Len())

	now = now.Add(10 * time.Minute)
	d := &fakeDeleter{}
	assert.Equal(t, 1, tr.Clean(d))
	assert.Equal(t, []int{1}, d.deleted)
	assert.Equal(t, 1, tr.Len())

	now = now.Add(time.Hour)
	d.err = errors.New("message to delete not found")
	assert.Equal(t, 1, tr.Clean(d))
	assert.Equal(t, 0, tr.Len())
}

func TestMessageTracker_RunStopsOnCancel(t *testing.T) {
	tr := NewMessageTracker(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, &fakeDeleter{}, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}
