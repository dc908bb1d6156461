package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/lobby"
	"telegram-casino-bot/internal/pkg/lock"
	"telegram-casino-bot/internal/repository"
)

// ledgerStore applies one balance movement atomically with its record.
type ledgerStore interface {
	Apply(ctx context.Context, userID, delta int64, txType, ref string, description *string) (bool, error)
}

// LedgerService is the lobby's balance store backed by PostgreSQL.
type LedgerService struct {
	store ledgerStore
	locks *lock.KeyedLock[int64]
}

// NewLedgerService creates a LedgerService. locks is shared with
// AccountService so lobby and admin movements on one user never interleave.
func NewLedgerService(store *repository.LedgerRepository, locks *lock.KeyedLock[int64]) *LedgerService {
	return &LedgerService{store: store, locks: locks}
}

// LedgerRef is the idempotency key of a lobby movement.
func LedgerRef(userID int64, ref lobby.Ref) string {
	return fmt.Sprintf("%s:%s:%d", ref.SessionID, ref.Kind, userID)
}

var entryDescriptions = map[lobby.EntryKind]string{
	lobby.EntryStake:  "下注",
	lobby.EntryRefund: "退款",
	lobby.EntryPayout: "派彩",
}

// Debit implements lobby.Ledger.
func (s *LedgerService) Debit(ctx context.Context, userID, amount int64, ref lobby.Ref) error {
	if amount <= 0 {
		return lobby.ErrInvalidAmount
	}
	err := s.apply(ctx, userID, -amount, ref)
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance), errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("%w: %w", lobby.ErrInsufficientFunds, err)
	default:
		return err
	}
}

// Credit implements lobby.Ledger.
func (s *LedgerService) Credit(ctx context.Context, userID, amount int64, ref lobby.Ref) error {
	if amount <= 0 {
		return lobby.ErrInvalidAmount
	}
	return s.apply(ctx, userID, amount, ref)
}

func (s *LedgerService) apply(ctx context.Context, userID, delta int64, ref lobby.Ref) error {
	if err := s.locks.LockContext(ctx, userID); err != nil {
		return err
	}
	defer s.locks.Unlock(userID)

	key := LedgerRef(userID, ref)
	desc := fmt.Sprintf("%s %s", ref.Game, entryDescriptions[ref.Kind])
	applied, err := s.store.Apply(ctx, userID, delta, string(ref.Kind), key, &desc)
	if err != nil {
		return err
	}
	if !applied {
		log.Info().
			Str("session_id", ref.SessionID).
			Str("ref", key).
			Int64("user_id", userID).
			Msg("Ledger entry already applied, skipping")
		return nil
	}

	log.Debug().
		Str("session_id", ref.SessionID).
		Str("kind", string(ref.Kind)).
		Int64("user_id", userID).
		Int64("delta", delta).
		Msg("Ledger entry applied")
	return nil
}
