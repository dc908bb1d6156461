package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/service"
)

const rankLimit = 10

var medals = []string{"🥇", "🥈", "🥉"}

// RankingHandler handles ranking-related commands.
type RankingHandler struct {
	rankingService *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(rankingService *service.RankingService) *RankingHandler {
	return &RankingHandler{
		rankingService: rankingService,
	}
}

func rankPrefix(i int, withMedals bool) string {
	if withMedals && i < len(medals) {
		return medals[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

func rankName(username string, userID int64) string {
	if username == "" {
		return fmt.Sprintf("User%d", userID)
	}
	return username
}

// formatDailyRanks renders one section of the daily board.
func formatDailyRanks(b *strings.Builder, ranks []*model.DailyRank, withMedals bool) {
	if len(ranks) == 0 {
		b.WriteString("暂无数据\n")
		return
	}
	for i, r := range ranks {
		fmt.Fprintf(b, "%s %s: %+d\n", rankPrefix(i, withMedals), rankName(r.Username, r.UserID), r.NetProfit)
	}
}

// HandleDailyTop handles the /daily_top command.
// Net results count lobby stakes, refunds and payouts made today.
func (h *RankingHandler) HandleDailyTop(c tele.Context) error {
	ctx := context.Background()

	winners, err := h.rankingService.GetDailyWinners(ctx, rankLimit)
	if err != nil {
		return c.Reply("❌ 获取排行榜失败，请稍后重试")
	}
	losers, err := h.rankingService.GetDailyLosers(ctx, rankLimit)
	if err != nil {
		return c.Reply("❌ 获取排行榜失败，请稍后重试")
	}

	var b strings.Builder
	b.WriteString("📊 今日游戏榜\n")
	b.WriteString(divider)
	fmt.Fprintf(&b, "🏆 赢家榜 TOP %d\n", rankLimit)
	formatDailyRanks(&b, winners, true)
	b.WriteString("\n")
	b.WriteString(divider)
	fmt.Fprintf(&b, "😢 输家榜 TOP %d\n", rankLimit)
	formatDailyRanks(&b, losers, false)
	b.WriteString(strings.TrimSuffix(divider, "\n"))

	return c.Reply(b.String())
}
