// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/sicbo"
	"telegram-casino-bot/internal/lobby"
	"telegram-casino-bot/internal/pkg/lock"
	"telegram-casino-bot/internal/service"
)

const (
	// handlerTimeout bounds lock waits and ledger calls of one command.
	handlerTimeout = 15 * time.Second

	minFormingWindow = 10 * time.Second
	maxFormingWindow = 10 * time.Minute
)

var errUsage = errors.New("usage")

// sender is the part of *tele.Bot used to post lobby announcements.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// LobbyHandler exposes lobby sessions as group chat commands and posts
// phase changes back into the chat.
type LobbyHandler struct {
	manager      *lobby.Manager
	games        *game.Registry
	accounts     *service.AccountService
	tracker      *MessageTracker
	maxExtension time.Duration
	keyboard     *sicbo.KeyboardBuilder

	out sender

	namesMu sync.RWMutex
	names   map[int64]string
}

// NewLobbyHandler creates a LobbyHandler. Call SetSender before the first
// phase change is dispatched.
func NewLobbyHandler(
	manager *lobby.Manager,
	games *game.Registry,
	accounts *service.AccountService,
	tracker *MessageTracker,
	maxExtension time.Duration,
) *LobbyHandler {
	return &LobbyHandler{
		manager:      manager,
		games:        games,
		accounts:     accounts,
		tracker:      tracker,
		maxExtension: maxExtension,
		keyboard:     sicbo.NewKeyboardBuilder(),
		names:        make(map[int64]string),
	}
}

// SetSender sets where announcements are posted.
func (h *LobbyHandler) SetSender(s sender) {
	h.out = s
}

func scopeKey(chat *tele.Chat) string {
	return strconv.FormatInt(chat.ID, 10)
}

func senderUsername(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

func (h *LobbyHandler) remember(u *tele.User) {
	name := senderUsername(u)
	if name == "" {
		return
	}
	h.namesMu.Lock()
	h.names[u.ID] = name
	h.namesMu.Unlock()
}

func (h *LobbyHandler) namesFor(v lobby.SessionView) map[int64]string {
	h.namesMu.RLock()
	defer h.namesMu.RUnlock()

	names := make(map[int64]string, len(v.Participants)+1)
	names[v.OwnerID] = h.names[v.OwnerID]
	for _, p := range v.Participants {
		names[p.ParticipantID] = h.names[p.ParticipantID]
	}
	return names
}

func (h *LobbyHandler) gameFor(kind string) game.Game {
	g, _ := h.games.Get(kind)
	return g
}

// groupOnly validates the chat and makes sure the sender has an account.
func (h *LobbyHandler) groupOnly(ctx context.Context, c tele.Context) (*tele.User, bool, error) {
	chat, user := c.Chat(), c.Sender()
	if chat == nil || user == nil {
		return nil, false, nil
	}
	if chat.Type == tele.ChatPrivate {
		return nil, false, c.Reply("❌ 该命令只能在群组中使用")
	}
	if _, _, err := h.accounts.EnsureUser(ctx, user.ID, senderUsername(user)); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to ensure user")
		return nil, false, c.Reply("❌ 操作失败，请稍后重试")
	}
	h.remember(user)
	return user, true, nil
}

// HandleCreate returns the handler opening a lobby of the given kind.
// Format: /<kind> [报名秒数]
func (h *LobbyHandler) HandleCreate(kind string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		user, ok, err := h.groupOnly(ctx, c)
		if !ok {
			return err
		}

		var opts []lobby.SessionOption
		if args := c.Args(); len(args) > 0 {
			window, err := parseSeconds(args[0], minFormingWindow, maxFormingWindow)
			if err != nil {
				return c.Reply(fmt.Sprintf("❌ 报名时间需在 %d-%d 秒之间",
					int(minFormingWindow.Seconds()), int(maxFormingWindow.Seconds())))
			}
			opts = append(opts, lobby.WithFormingWindow(window))
		}

		id, err := h.manager.CreateSession(ctx, scopeKey(c.Chat()), user.ID, kind, opts...)
		if err != nil {
			return c.Reply(lobbyErrorText(err))
		}
		log.Info().
			Str("session_id", id).
			Str("kind", kind).
			Int64("owner_id", user.ID).
			Msg("Lobby opened from chat")
		return nil
	}
}

// HandleJoin handles the /join command.
// Format: /join <金额> [选项]
func (h *LobbyHandler) HandleJoin(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	user, ok, err := h.groupOnly(ctx, c)
	if !ok {
		return err
	}

	scope := scopeKey(c.Chat())
	view := h.manager.GetSnapshot(scope)
	if view == nil {
		return c.Reply(lobbyErrorText(lobby.ErrSessionNotFound))
	}
	g := h.gameFor(view.Kind)
	if g == nil {
		return c.Reply(lobbyErrorText(lobby.ErrUnknownGame))
	}

	amount, selection, err := parseJoinArgs(g, c.Args())
	switch {
	case errors.Is(err, errUsage):
		return c.Reply(joinUsage(g))
	case err != nil:
		return c.Reply(lobbyErrorText(err))
	}

	if err := h.manager.JoinSession(ctx, scope, user.ID, amount, selection); err != nil {
		return c.Reply(lobbyErrorText(err))
	}
	return c.Reply(fmt.Sprintf("✅ 下注成功: [%s] %d 金币", selectionLabel(g, selection), amount))
}

// HandleSicBoCallback handles the sicbo betting panel buttons.
func (h *LobbyHandler) HandleSicBoCallback(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	cb := c.Callback()
	if cb == nil {
		return nil
	}
	selection, ok := sicbo.DecodeJoin(strings.TrimPrefix(cb.Data, "\f"))
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ 无效的操作"})
	}

	chat, user := c.Chat(), c.Sender()
	if chat == nil || user == nil {
		return c.Respond()
	}
	if _, _, err := h.accounts.EnsureUser(ctx, user.ID, senderUsername(user)); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ 操作失败，请稍后重试", ShowAlert: true})
	}
	h.remember(user)

	scope := scopeKey(chat)
	if err := h.manager.JoinSession(ctx, scope, user.ID, sicbo.FixedBetAmount, selection); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: lobbyErrorText(err), ShowAlert: true})
	}

	if view := h.manager.GetSnapshot(scope); view != nil && view.Phase == lobby.PhaseForming {
		if err := c.Edit(sicbo.FormatPanelMessage(*view), h.keyboard.BuildMainPanel()); err != nil {
			log.Debug().Err(err).Msg("Failed to refresh sicbo panel")
		}
	}
	return c.Respond(&tele.CallbackResponse{
		Text: fmt.Sprintf("✅ 已下注 %s %d 金币", sicbo.FormatBetName(selection), sicbo.FixedBetAmount),
	})
}

// HandleForceStart handles the /go command.
func (h *LobbyHandler) HandleForceStart(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	user, ok, err := h.groupOnly(ctx, c)
	if !ok {
		return err
	}
	if err := h.manager.ForceStart(ctx, scopeKey(c.Chat()), user.ID); err != nil {
		return c.Reply(lobbyErrorText(err))
	}
	return nil
}

// HandleCancel handles the /cancel command.
func (h *LobbyHandler) HandleCancel(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	user, ok, err := h.groupOnly(ctx, c)
	if !ok {
		return err
	}
	if err := h.manager.CancelSession(ctx, scopeKey(c.Chat()), user.ID); err != nil {
		return c.Reply(lobbyErrorText(err))
	}
	return nil
}

// HandleExtend handles the /extend command.
// Format: /extend <秒>
func (h *LobbyHandler) HandleExtend(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	user, ok, err := h.groupOnly(ctx, c)
	if !ok {
		return err
	}
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /extend <秒>\n例如: /extend 30")
	}
	d, err := parseSeconds(args[0], time.Second, h.maxExtension)
	if err != nil {
		return c.Reply(fmt.Sprintf("❌ 延长时间需在 1-%d 秒之间", int(h.maxExtension.Seconds())))
	}

	deadline, err := h.manager.ExtendDeadline(ctx, scopeKey(c.Chat()), user.ID, d)
	if err != nil {
		return c.Reply(lobbyErrorText(err))
	}
	return c.Reply(fmt.Sprintf("⏰ 报名延长 %d 秒，%s 截止", int(d.Seconds()), deadline.Format("15:04:05")))
}

// HandleStatus handles the /lobby command.
func (h *LobbyHandler) HandleStatus(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	view := h.manager.GetSnapshot(scopeKey(chat))
	if view == nil {
		return c.Reply("📭 当前没有进行中的游戏")
	}
	return c.Reply(renderSnapshot(h.gameFor(view.Kind), *view, h.namesFor(*view)))
}

// OnPhaseChange implements lobby.PhaseListener by posting to the chat.
func (h *LobbyHandler) OnPhaseChange(_ context.Context, change lobby.PhaseChange) {
	if h.out == nil {
		return
	}
	chatID, err := strconv.ParseInt(change.ScopeKey, 10, 64)
	if err != nil {
		return
	}

	text, opts := h.announcement(change)
	if text == "" {
		return
	}
	msg, err := h.out.Send(tele.ChatID(chatID), text, opts...)
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", change.SessionID).
			Str("phase", string(change.Next)).
			Msg("Failed to post lobby update")
		return
	}
	if h.tracker != nil {
		h.tracker.Track(msg)
	}
}

func (h *LobbyHandler) announcement(change lobby.PhaseChange) (string, []interface{}) {
	v := change.View
	names := h.namesFor(v)
	g := h.gameFor(v.Kind)

	switch change.Next {
	case lobby.PhaseForming:
		if v.Kind == "sicbo" {
			return renderForming(g, v, names), []interface{}{h.keyboard.BuildMainPanel()}
		}
		return renderForming(g, v, names), nil
	case lobby.PhaseLocked:
		return renderLocked(v, names), nil
	case lobby.PhaseSettled:
		return renderSettled(g, v, names), nil
	case lobby.PhaseCancelled:
		return renderCancelled(v, change.Reason, names), nil
	default:
		return "", nil
	}
}

// parseSeconds parses a whole number of seconds within [lo, hi].
func parseSeconds(arg string, lo, hi time.Duration) (time.Duration, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, err
	}
	d := time.Duration(n) * time.Second
	if d < lo || d > hi {
		return 0, fmt.Errorf("%s out of range", d)
	}
	return d, nil
}

// parseJoinArgs parses "<amount> [selection]". The selection may be left out
// when the game has only one.
func parseJoinArgs(g game.Game, args []string) (int64, int, error) {
	if len(args) < 1 {
		return 0, 0, errUsage
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, errUsage
	}
	if amount <= 0 {
		return 0, 0, lobby.ErrInvalidAmount
	}

	if len(args) < 2 {
		if len(g.Selections()) == 1 {
			return amount, 0, nil
		}
		return 0, 0, errUsage
	}
	selection, err := game.ParseSelection(g, strings.Join(args[1:], " "))
	if err != nil {
		return 0, 0, err
	}
	return amount, selection, nil
}

func joinUsage(g game.Game) string {
	if len(g.Selections()) == 1 {
		return "❌ 用法: /join <金额>\n例如: /join 100"
	}
	return fmt.Sprintf("❌ 用法: /join <金额> <选项>\n可选: %s\n例如: /join 100 %s",
		strings.Join(g.Selections(), ", "), g.Selections()[0])
}

// lobbyErrorText maps lobby errors to chat replies.
func lobbyErrorText(err error) string {
	switch {
	case errors.Is(err, lobby.ErrAlreadyActive):
		return "❌ 当前群组已有进行中的游戏"
	case errors.Is(err, lobby.ErrSessionNotFound):
		return "❌ 当前没有进行中的游戏"
	case errors.Is(err, lobby.ErrSessionNotForming):
		return "❌ 报名已截止"
	case errors.Is(err, lobby.ErrAlreadyStaked):
		return "❌ 您已经下注了"
	case errors.Is(err, lobby.ErrCapacityReached):
		return "❌ 人数已满"
	case errors.Is(err, lobby.ErrInvalidAmount):
		return "❌ 下注金额无效"
	case errors.Is(err, lobby.ErrInvalidSelection):
		return "❌ 无效的选项"
	case errors.Is(err, lobby.ErrInsufficientFunds):
		return "❌ 余额不足"
	case errors.Is(err, lobby.ErrUnauthorized):
		return "❌ 只有发起人可以操作"
	case errors.Is(err, lobby.ErrBelowMinimum):
		return "❌ 人数不足，无法开始"
	case errors.Is(err, lobby.ErrUnknownGame):
		return "❌ 未知的游戏"
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return "⏳ 操作繁忙，请稍后重试"
	default:
		log.Error().Err(err).Msg("Lobby operation failed")
		return "❌ 操作失败，请稍后重试"
	}
}
