package bot

import (
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/config"
)

// Access decides which chats and users may talk to the bot.
// Users seen in a whitelisted group may also use the bot in private chat.
type Access struct {
	cfg     *config.Config
	private sync.Map // map[int64]struct{}
}

// NewAccess creates an Access bound to the whitelist and admin list of cfg.
func NewAccess(cfg *config.Config) *Access {
	return &Access{cfg: cfg}
}

// AllowPrivateUser marks a user as allowed to use private chat.
func (a *Access) AllowPrivateUser(userID int64) {
	a.private.Store(userID, struct{}{})
}

// IsPrivateUserAllowed checks if a user is allowed to use private chat.
func (a *Access) IsPrivateUserAllowed(userID int64) bool {
	_, ok := a.private.Load(userID)
	return ok
}

// Allowed reports whether an update from user in chat should be handled.
// A group update from an allowed chat also admits the user to private chat.
func (a *Access) Allowed(chat *tele.Chat, user *tele.User) bool {
	if chat == nil || user == nil {
		return false
	}
	if chat.Type == tele.ChatPrivate {
		return len(a.cfg.Whitelist.Chats) == 0 || a.IsPrivateUserAllowed(user.ID)
	}
	if !a.cfg.IsChatAllowed(chat.ID) {
		return false
	}
	a.AllowPrivateUser(user.ID)
	return true
}

// Whitelist creates a middleware that drops updates from chats not allowed.
func (a *Access) Whitelist() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !a.Allowed(c.Chat(), c.Sender()) {
				ev := log.Debug()
				if chat := c.Chat(); chat != nil {
					ev = ev.Int64("chat_id", chat.ID)
				}
				ev.Msg("Ignoring update from non-whitelisted chat")
				return nil
			}
			return next(c)
		}
	}
}

// Admin creates a middleware that rejects commands from non-admins.
func (a *Access) Admin() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if !a.cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ 权限不足：需要管理员权限")
			}
			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming updates.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug()
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
			}
			if cb := c.Callback(); cb != nil {
				ev = ev.Str("callback", cb.Data)
			}
			ev.Str("text", c.Text()).Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ 发生内部错误，请稍后重试")
				}
			}()
			return next(c)
		}
	}
}
