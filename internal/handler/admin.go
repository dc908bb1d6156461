package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/repository"
	"telegram-casino-bot/internal/service"
)

// reconcileBatch is how many partially paid sessions one /reconcile visits.
const reconcileBatch = 50

// AdminHandler handles admin-related commands.
type AdminHandler struct {
	accountService *service.AccountService
	auditService   *service.AuditService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accountService *service.AccountService, auditService *service.AuditService) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		auditService:   auditService,
	}
}

func adminFailureText(err error) string {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return "❌ 用户不存在"
	case errors.Is(err, service.ErrInsufficientBalance):
		return "❌ 操作失败，扣除后余额将为负数"
	default:
		return "❌ 操作失败，请稍后重试"
	}
}

func logAdminOp(adminID, targetID int64, operation string) *zerolog.Event {
	return log.Info().
		Int64("admin_id", adminID).
		Int64("target_id", targetID).
		Str("operation", operation)
}

// HandleAdminAdd handles the /admin_add command.
// Format: /admin_add <user_id> <amount>
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	return h.adjust(c, "admin_add", 1, model.TxTypeAdminAdd, "➕ 添加", "添加")
}

// HandleAdminSub handles the /admin_sub command.
// Format: /admin_sub <user_id> <amount>
func (h *AdminHandler) HandleAdminSub(c tele.Context) error {
	return h.adjust(c, "admin_sub", -1, model.TxTypeAdminSub, "➖ 扣除", "扣除")
}

func (h *AdminHandler) adjust(c tele.Context, command string, sign int64, txType, label, verb string) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, err := parseAdminArgs(command, c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	if amount <= 0 {
		return c.Reply("❌ 金额必须大于 0")
	}

	desc := fmt.Sprintf("管理员 %d %s", sender.ID, verb)
	user, err := h.accountService.UpdateBalance(ctx, targetID, sign*amount, txType, &desc)
	if err != nil {
		log.Warn().Err(err).Int64("target_id", targetID).Str("operation", command).Msg("Admin operation failed")
		return c.Reply(adminFailureText(err))
	}

	logAdminOp(sender.ID, targetID, command).
		Int64("amount", amount).
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ 操作成功\n\n"+
			"👤 用户: %s (ID: %d)\n"+
			"%s: %d 金币\n"+
			"💰 当前余额: %d 金币",
		rankName(user.Username, targetID), targetID, label, amount, user.Balance,
	))
}

// HandleAdminSet handles the /admin_set command.
// Format: /admin_set <user_id> <amount>
func (h *AdminHandler) HandleAdminSet(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, newBalance, err := parseAdminArgs("admin_set", c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	if newBalance < 0 {
		return c.Reply("❌ 余额不能为负数")
	}

	desc := fmt.Sprintf("管理员 %d 设置余额", sender.ID)
	user, previous, err := h.accountService.SetBalance(ctx, targetID, newBalance, &desc)
	if err != nil {
		return c.Reply(adminFailureText(err))
	}

	logAdminOp(sender.ID, targetID, "admin_set").
		Int64("old_balance", previous).
		Int64("new_balance", newBalance).
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ 操作成功\n\n"+
			"👤 用户: %s (ID: %d)\n"+
			"📝 原余额: %d 金币\n"+
			"💰 新余额: %d 金币",
		rankName(user.Username, targetID), targetID, previous, user.Balance,
	))
}

// HandleReconcile handles the /reconcile command. It re-drives payouts and
// refunds that could not be credited when a session finished.
// Format: /reconcile [session_id]
func (h *AdminHandler) HandleReconcile(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var (
		paid int
		err  error
	)
	if args := c.Args(); len(args) > 0 {
		paid, err = h.auditService.Reconcile(ctx, args[0])
		if errors.Is(err, repository.ErrSettlementNotFound) {
			return c.Reply("❌ 找不到该局游戏记录")
		}
	} else {
		paid, err = h.auditService.ReconcileAll(ctx, reconcileBatch)
	}

	logAdminOp(sender.ID, 0, "reconcile").
		Int("paid", paid).
		AnErr("reconcile_error", err).
		Msg("Admin operation executed")

	if err != nil {
		return c.Reply(fmt.Sprintf("⚠️ 已补发 %d 笔，部分补发失败，请稍后重试", paid))
	}
	if paid == 0 {
		return c.Reply("✅ 没有待补发的款项")
	}
	return c.Reply(fmt.Sprintf("✅ 已补发 %d 笔款项", paid))
}

// parseAdminArgs parses admin command arguments.
// Format: <user_id> <amount>
// Returns targetID, amount, error
func parseAdminArgs(command string, args []string) (int64, int64, error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("❌ 用法: /%s <用户ID> <金额>\n例如: /%s 123456789 100", command, command)
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("❌ 用户ID格式错误，请输入数字")
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("❌ 金额格式错误，请输入整数")
	}

	return targetID, amount, nil
}
