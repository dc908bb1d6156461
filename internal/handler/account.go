package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/service"
)

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
	rankingService *service.RankingService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, rankingService *service.RankingService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		rankingService: rankingService,
	}
}

// HandleStart handles the /start command.
// Creates a new account with the initial coins if the user doesn't exist.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	username := senderUsername(sender)
	user, created, err := h.accountService.EnsureUser(ctx, sender.ID, username)
	if err != nil {
		return c.Reply("❌ 创建账户失败，请稍后重试")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 欢迎 @%s！\n\n"+
				"您的账户已创建，初始金币: %d\n\n"+
				"可用命令:\n"+
				"/balance - 查看余额\n"+
				"/daily - 每日签到\n"+
				"/top - 富豪榜\n"+
				"/derby - 开一局赛马\n"+
				"/heist - 组队抢银行\n"+
				"/sicbo - 开一局骰宝\n"+
				"/join <金额> <选项> - 加入当前游戏\n"+
				"/lobby - 查看当前游戏",
			username, user.Balance,
		))
	}

	return c.Reply(fmt.Sprintf(
		"👋 欢迎回来 @%s！\n\n"+
			"当前余额: %d 金币",
		username, user.Balance,
	))
}

// HandleBalance handles the /balance command.
// Displays the user's current balance.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	balance, err := h.accountService.GetBalance(ctx, sender.ID)
	if err != nil {
		// User might not exist, try to create
		user, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderUsername(sender))
		if err != nil {
			return c.Reply("❌ 获取余额失败，请稍后重试")
		}
		balance = user.Balance
	}

	return c.Reply(fmt.Sprintf("💰 当前余额: %d 金币", balance))
}

// HandleMy handles the /my command.
// Displays the user's account information.
func (h *AccountHandler) HandleMy(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.accountService.GetUser(ctx, sender.ID)
	if err != nil {
		// User might not exist, try to create
		user, _, err = h.accountService.EnsureUser(ctx, sender.ID, senderUsername(sender))
		if err != nil {
			return c.Reply("❌ 获取账户信息失败，请稍后重试")
		}
	}

	// Get daily profit
	dailyProfit, _ := h.rankingService.GetUserDailyProfit(ctx, sender.ID)

	profitStr := fmt.Sprintf("%d", dailyProfit)
	if dailyProfit > 0 {
		profitStr = "+" + profitStr
	}

	return c.Reply(fmt.Sprintf(
		"📊 账户信息\n"+
			"━━━━━━━━━━━━━━━\n"+
			"👤 用户: @%s\n"+
			"💰 余额: %d 金币\n"+
			"📈 今日盈亏: %s\n"+
			"━━━━━━━━━━━━━━━",
		user.Username, user.Balance, profitStr,
	))
}

// HandleDaily handles the /daily command.
// Grants the daily reward once the cooldown has passed.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	// The service takes the user lock; EnsureUser must run before it.
	_, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderUsername(sender))
	if err != nil {
		return c.Reply("❌ 操作失败，请稍后重试")
	}

	// Try to claim daily reward
	success, msg, err := h.accountService.ClaimDaily(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ 签到失败，请稍后重试")
	}

	if success {
		return c.Reply(fmt.Sprintf("✅ %s", msg))
	}

	return c.Reply(fmt.Sprintf("⏰ %s", msg))
}

// HandleTop handles the /top command.
// Displays the richest users.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	users, err := h.rankingService.GetTopUsers(ctx, rankLimit)
	if err != nil {
		return c.Reply("❌ 获取排行榜失败，请稍后重试")
	}
	if len(users) == 0 {
		return c.Reply("📊 暂无排行数据")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 富豪榜 TOP %d\n", rankLimit)
	b.WriteString(divider)
	for i, user := range users {
		fmt.Fprintf(&b, "%s @%s: %d\n", rankPrefix(i, true), rankName(user.Username, user.TelegramID), user.Balance)
	}
	b.WriteString(strings.TrimSuffix(divider, "\n"))

	return c.Reply(b.String())
}
