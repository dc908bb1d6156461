package handler

import (
	"fmt"
	"strings"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/derby"
	"telegram-casino-bot/internal/game/sicbo"
	"telegram-casino-bot/internal/lobby"
)

const divider = "━━━━━━━━━━━━━━━\n"

var gameTitles = map[string]string{
	"derby": "🏇 赛马",
	"heist": "🏦 抢银行",
	"sicbo": "🎲 骰宝",
}

func gameTitle(kind string) string {
	if t, ok := gameTitles[kind]; ok {
		return t
	}
	return "🎮 " + kind
}

// displayName returns the @name of a participant, falling back to the ID.
func displayName(names map[int64]string, id int64) string {
	name := names[id]
	if name == "" {
		return fmt.Sprintf("User%d", id)
	}
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	return name
}

func selectionLabel(g game.Game, sel int) string {
	if g != nil && g.Kind() == "sicbo" {
		return sicbo.FormatBetName(sel)
	}
	if g != nil {
		if labels := g.Selections(); sel >= 0 && sel < len(labels) {
			return labels[sel]
		}
	}
	return fmt.Sprintf("#%d", sel+1)
}

func totalStaked(v lobby.SessionView) int64 {
	var total int64
	for _, p := range v.Participants {
		total += p.Amount
	}
	return total
}

// renderForming is the announcement sent when a lobby opens.
func renderForming(g game.Game, v lobby.SessionView, names map[int64]string) string {
	if v.Kind == "sicbo" {
		return sicbo.FormatPanelMessage(v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s - 报名中\n", gameTitle(v.Kind))
	b.WriteString(divider)
	fmt.Fprintf(&b, "👤 发起人: %s\n", displayName(names, v.OwnerID))
	fmt.Fprintf(&b, "⏰ 剩余 %d 秒 | 👥 %d/%d 人 (至少 %d 人)\n",
		int(v.Remaining.Seconds()), len(v.Participants), v.Capacity, v.MinParticipants)

	switch dg := g.(type) {
	case *derby.Game:
		b.WriteString(divider)
		for i, h := range dg.Horses() {
			fmt.Fprintf(&b, "%d. %s (赔率 %s)\n", i+1, h.Name, h.Odds)
		}
		b.WriteString(divider)
		b.WriteString("使用 /join <金额> <马名|编号> 下注")
	default:
		b.WriteString(divider)
		b.WriteString("使用 /join <金额> 加入")
	}
	return b.String()
}

// renderLocked announces that the lobby closed and the game is running.
func renderLocked(v lobby.SessionView, names map[int64]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - 报名截止\n", gameTitle(v.Kind))
	fmt.Fprintf(&b, "👥 参与者 %d 人 | 💰 奖池 %d\n", len(v.Participants), totalStaked(v))
	ids := make([]string, 0, len(v.Participants))
	for _, p := range v.Participants {
		ids = append(ids, displayName(names, p.ParticipantID))
	}
	b.WriteString(strings.Join(ids, " "))
	b.WriteString("\n⏳ 游戏进行中...")
	return b.String()
}

// describeOutcome renders the game-specific part of a result.
func describeOutcome(g game.Game, o *lobby.Outcome) string {
	if o == nil {
		return ""
	}
	switch g.(type) {
	case *derby.Game:
		winner, _ := o.Detail["winner"].(string)
		ticks, _ := o.Detail["ticks"].(int)
		return fmt.Sprintf("🏁 冠军: %s (%d 回合)\n", winner, ticks)
	}
	if g != nil && g.Kind() == "heist" {
		if success, _ := o.Detail["success"].(bool); success {
			return "💰 行动成功，全员撤离！\n"
		}
		stage, _ := o.Detail["failed_at"].(string)
		return fmt.Sprintf("🚨 行动失败于 %s 阶段\n", stage)
	}
	if o.Selection >= 0 {
		return fmt.Sprintf("🏆 结果: %s\n", selectionLabel(g, o.Selection))
	}
	return ""
}

// renderSettled lists every participant's result.
func renderSettled(g game.Game, v lobby.SessionView, names map[int64]string) string {
	if v.Kind == "sicbo" {
		return sicbo.FormatSettlementMessage(v, names)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s结算\n", gameTitle(v.Kind))
	b.WriteString(divider)
	b.WriteString(describeOutcome(g, v.Outcome))
	b.WriteString(divider)

	for _, p := range v.Payouts {
		name := displayName(names, p.ParticipantID)
		label := selectionLabel(g, p.Selection)
		net := p.Amount - p.Stake
		switch {
		case net > 0:
			fmt.Fprintf(&b, "🎉 %s [%s] +%d\n", name, label, net)
		case net < 0:
			fmt.Fprintf(&b, "😢 %s [%s] %d\n", name, label, net)
		default:
			fmt.Fprintf(&b, "😐 %s [%s] ±0\n", name, label)
		}
	}
	if v.PartialFailure {
		b.WriteString("⚠️ 部分派彩失败，管理员将人工处理\n")
	}
	b.WriteString(divider)
	fmt.Fprintf(&b, "💸 共派彩 %d 金币", v.TotalDisbursed)
	return b.String()
}

var cancelReasons = map[string]string{
	lobby.ReasonHostCancel:       "发起人取消了游戏",
	lobby.ReasonBelowMinimum:     "报名人数不足",
	lobby.ReasonSweep:            "游戏超时，已自动清理",
	lobby.ReasonSimulationFailed: "游戏运行出错",
}

// renderCancelled explains why a lobby closed and lists refunds.
func renderCancelled(v lobby.SessionView, reason string, names map[int64]string) string {
	text, ok := cancelReasons[reason]
	if !ok {
		text = "游戏已取消"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚫 %s已取消: %s\n", gameTitle(v.Kind), text)
	if reason == lobby.ReasonBelowMinimum {
		fmt.Fprintf(&b, "👥 %d/%d 人\n", len(v.Participants), v.MinParticipants)
	}
	if len(v.Payouts) > 0 {
		b.WriteString(divider)
		for _, p := range v.Payouts {
			fmt.Fprintf(&b, "↩️ %s 退还 %d\n", displayName(names, p.ParticipantID), p.Amount)
		}
	}
	if v.PartialFailure {
		b.WriteString("⚠️ 部分退款失败，管理员将人工处理\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

var phaseNames = map[lobby.Phase]string{
	lobby.PhaseForming:   "报名中",
	lobby.PhaseLocked:    "已截止",
	lobby.PhaseResolving: "结算中",
	lobby.PhaseSettled:   "已结算",
	lobby.PhaseCancelled: "已取消",
}

// renderSnapshot is the /lobby status view.
func renderSnapshot(g game.Game, v lobby.SessionView, names map[int64]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n", gameTitle(v.Kind), phaseNames[v.Phase])
	b.WriteString(divider)
	fmt.Fprintf(&b, "👤 发起人: %s\n", displayName(names, v.OwnerID))
	if v.Phase == lobby.PhaseForming {
		fmt.Fprintf(&b, "⏰ 剩余 %d 秒\n", int(v.Remaining.Seconds()))
	}
	fmt.Fprintf(&b, "👥 %d/%d 人 (至少 %d 人) | 💰 %d\n",
		len(v.Participants), v.Capacity, v.MinParticipants, totalStaked(v))
	if len(v.Participants) > 0 {
		b.WriteString(divider)
		for _, p := range v.Participants {
			fmt.Fprintf(&b, "%s [%s] %d\n", displayName(names, p.ParticipantID), selectionLabel(g, p.Selection), p.Amount)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
