package sicbo

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/lobby"
)

const (
	// CallbackPrefix is the prefix for all SicBo callback data
	CallbackPrefix = "sicbo_"
	// ActionJoin stakes FixedBetAmount on a selection
	ActionJoin = "join"
)

// KeyboardBuilder builds Telegram inline keyboards for SicBo lobbies.
type KeyboardBuilder struct{}

// NewKeyboardBuilder creates a new KeyboardBuilder instance.
func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

// EncodeCallback encodes an action and parameter into callback data.
func EncodeCallback(action string, param string) string {
	if param != "" {
		return fmt.Sprintf("%s%s_%s", CallbackPrefix, action, param)
	}
	return fmt.Sprintf("%s%s", CallbackPrefix, action)
}

// DecodeCallback decodes callback data into action and parameter.
func DecodeCallback(data string) (action string, param string) {
	if !strings.HasPrefix(data, CallbackPrefix) {
		return "", ""
	}

	content := strings.TrimPrefix(data, CallbackPrefix)
	parts := strings.SplitN(content, "_", 2)
	action = parts[0]
	if len(parts) > 1 {
		param = parts[1]
	}
	return action, param
}

// DecodeJoin extracts the selection from join callback data.
func DecodeJoin(data string) (int, bool) {
	action, param := DecodeCallback(data)
	if action != ActionJoin {
		return 0, false
	}
	sel, err := strconv.Atoi(param)
	if err != nil {
		return 0, false
	}
	if _, _, ok := SelectionBet(sel); !ok {
		return 0, false
	}
	return sel, true
}

func joinButton(text string, selection int) tele.InlineButton {
	return tele.InlineButton{
		Text: text,
		Data: EncodeCallback(ActionJoin, strconv.Itoa(selection)),
	}
}

// BuildMainPanel builds the betting panel keyboard.
// Layout:
//   - Row 1: [押大] [押小]
//   - Row 2: [押1] [押2] [押3]
//   - Row 3: [押4] [押5] [押6]
func (kb *KeyboardBuilder) BuildMainPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = [][]tele.InlineButton{
		{joinButton("押大", SelectionBig), joinButton("押小", SelectionSmall)},
		{joinButton("押1", 0), joinButton("押2", 1), joinButton("押3", 2)},
		{joinButton("押4", 3), joinButton("押5", 4), joinButton("押6", 5)},
	}
	return markup
}

// FormatPanelMessage formats the betting panel message.
func FormatPanelMessage(view lobby.SessionView) string {
	var total int64
	for _, p := range view.Participants {
		total += p.Amount
	}

	msg := "🎲 骰宝 - 下注中\n"
	msg += fmt.Sprintf("⏰ 剩余 %d 秒 | 👥 %d/%d 人 | 💰 %d\n",
		int(view.Remaining.Seconds()), len(view.Participants), view.Capacity, total)
	msg += "\n"
	msg += fmt.Sprintf("点击按钮下注 (每人一次, %d 金币)\n", FixedBetAmount)
	msg += "或使用 /join <金额> <1-6|big|small>"
	return msg
}

// FormatBetName returns the display name of a selection.
func FormatBetName(selection int) string {
	switch selection {
	case SelectionBig:
		return "大"
	case SelectionSmall:
		return "小"
	default:
		return fmt.Sprintf("单一数字 %d", selection+1)
	}
}

// FormatSettlementMessage formats the settlement result message.
// names maps participant IDs to display names.
func FormatSettlementMessage(view lobby.SessionView, names map[int64]string) string {
	var dice [3]int
	if view.Outcome != nil {
		dice, _ = view.Outcome.Detail["dice"].([3]int)
	}
	diceStr := fmt.Sprintf("🎲%d 🎲%d 🎲%d", dice[0], dice[1], dice[2])
	total := Total(dice)

	msg := "🎰 骰宝结算\n"
	msg += "━━━━━━━━━━━━━━━\n"
	msg += fmt.Sprintf("骰子: %s = %d", diceStr, total)

	if IsTriple(dice) {
		msg += " (围骰)\n"
	} else if total >= 11 {
		msg += " (大)\n"
	} else {
		msg += " (小)\n"
	}

	msg += "━━━━━━━━━━━━━━━\n"

	if len(view.Payouts) == 0 {
		msg += "本局无人下注\n"
	} else {
		for _, p := range view.Payouts {
			displayName := names[p.ParticipantID]
			if displayName == "" {
				displayName = fmt.Sprintf("%d", p.ParticipantID)
			}
			if !strings.HasPrefix(displayName, "@") {
				displayName = "@" + displayName
			}

			net := p.Amount - p.Stake
			switch {
			case net > 0:
				msg += fmt.Sprintf("🎉 %s [%s] +%d\n", displayName, FormatBetName(p.Selection), net)
			case net < 0:
				msg += fmt.Sprintf("😢 %s [%s] %d\n", displayName, FormatBetName(p.Selection), net)
			default:
				msg += fmt.Sprintf("😐 %s [%s] ±0\n", displayName, FormatBetName(p.Selection))
			}
		}
	}

	if view.PartialFailure {
		msg += "⚠️ 部分派彩失败，管理员将人工处理\n"
	}
	msg += "━━━━━━━━━━━━━━━\n"
	msg += "游戏结束"

	return msg
}
