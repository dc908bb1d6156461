package service

import (
	"context"
	"time"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/repository"
)

// RankingService serves the balance leaderboard and daily lobby results.
type RankingService struct {
	userRepo *repository.UserRepository
	txRepo   *repository.TransactionRepository
	timezone *time.Location
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	timezone *time.Location,
) *RankingService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &RankingService{
		userRepo: userRepo,
		txRepo:   txRepo,
		timezone: timezone,
	}
}

func (s *RankingService) today() time.Time {
	return time.Now().In(s.timezone)
}

// GetTopUsers retrieves the top users by balance.
func (s *RankingService) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}

// GetDailyWinners retrieves today's biggest lobby winners.
func (s *RankingService) GetDailyWinners(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	return s.txRepo.GetDailyWinners(ctx, s.today(), limit)
}

// GetDailyLosers retrieves today's biggest lobby losers.
func (s *RankingService) GetDailyLosers(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	return s.txRepo.GetDailyLosers(ctx, s.today(), limit)
}

// GetUserDailyProfit retrieves a user's lobby net result for today.
func (s *RankingService) GetUserDailyProfit(ctx context.Context, userID int64) (int64, error) {
	return s.txRepo.GetUserDailyProfit(ctx, userID, s.today())
}
