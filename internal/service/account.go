// Package service provides the business logic on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/lock"
	"telegram-casino-bot/internal/repository"
)

// Common errors for account operations.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = repository.ErrInsufficientBalance
	ErrUserNotFound        = repository.ErrUserNotFound
)

// AccountService handles user accounts, daily rewards and admin adjustments.
type AccountService struct {
	userRepo    *repository.UserRepository
	ledger      ledgerStore
	locks       *lock.KeyedLock[int64]
	dailyReward int64
	cooldownHrs int
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	userRepo *repository.UserRepository,
	ledger *repository.LedgerRepository,
	locks *lock.KeyedLock[int64],
	dailyReward int64,
	cooldownHours int,
) *AccountService {
	return &AccountService{
		userRepo:    userRepo,
		ledger:      ledger,
		locks:       locks,
		dailyReward: dailyReward,
		cooldownHrs: cooldownHours,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, telegramID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && user.Username != username && username != "" {
		if err := s.userRepo.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to update username")
		}
		user.Username = username
	}
	return user, created, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, telegramID)
}

// UpdateBalance adds amount (possibly negative) to the balance and records
// it with txType in the same database transaction.
func (s *AccountService) UpdateBalance(ctx context.Context, telegramID int64, amount int64, txType string, description *string) (*model.User, error) {
	if err := s.locks.LockContext(ctx, telegramID); err != nil {
		return nil, err
	}
	defer s.locks.Unlock(telegramID)

	return s.applyLocked(ctx, telegramID, amount, txType, description)
}

// SetBalance moves the balance to an exact value, recording the difference.
// It returns the balance before the change as well.
func (s *AccountService) SetBalance(ctx context.Context, telegramID int64, balance int64, description *string) (*model.User, int64, error) {
	if balance < 0 {
		return nil, 0, ErrInvalidAmount
	}
	if err := s.locks.LockContext(ctx, telegramID); err != nil {
		return nil, 0, err
	}
	defer s.locks.Unlock(telegramID)

	current, err := s.GetBalance(ctx, telegramID)
	if err != nil {
		return nil, 0, err
	}
	user, err := s.applyLocked(ctx, telegramID, balance-current, model.TxTypeAdminSet, description)
	return user, current, err
}

func (s *AccountService) applyLocked(ctx context.Context, telegramID, amount int64, txType string, description *string) (*model.User, error) {
	ref := fmt.Sprintf("%s:%s", txType, uuid.NewString())
	if _, err := s.ledger.Apply(ctx, telegramID, amount, txType, ref, description); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	return s.userRepo.GetByID(ctx, telegramID)
}

// ClaimDaily attempts to claim the daily reward.
// It returns whether the claim succeeded and a message for the user.
func (s *AccountService) ClaimDaily(ctx context.Context, telegramID int64) (bool, string, error) {
	if err := s.locks.LockContext(ctx, telegramID); err != nil {
		return false, "", err
	}
	defer s.locks.Unlock(telegramID)

	canClaim, remaining, err := s.userRepo.CanClaimDaily(ctx, telegramID, s.cooldownHrs)
	if err != nil {
		return false, "", fmt.Errorf("failed to check daily claim eligibility: %w", err)
	}
	if !canClaim {
		return false, fmt.Sprintf("请等待 %s 后再领取", formatRemaining(remaining)), nil
	}

	now := time.Now().Unix()
	desc := "每日签到奖励"
	ref := fmt.Sprintf("%s:%d:%d", model.TxTypeDaily, telegramID, now)
	if _, err := s.ledger.Apply(ctx, telegramID, s.dailyReward, model.TxTypeDaily, ref, &desc); err != nil {
		return false, "", fmt.Errorf("failed to add daily reward: %w", err)
	}
	if _, err := s.userRepo.UpdateDailyClaim(ctx, telegramID, now); err != nil {
		return false, "", fmt.Errorf("failed to update daily claim time: %w", err)
	}

	return true, fmt.Sprintf("签到成功！获得 %d 金币", s.dailyReward), nil
}

// formatRemaining renders a cooldown as hours, minutes and seconds.
func formatRemaining(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d小时%d分%d秒", hours, minutes, seconds)
}
