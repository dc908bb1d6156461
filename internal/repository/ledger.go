package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgForeignKeyViolation = "23503"

// LedgerRepository applies balance movements together with their
// transaction row in one database transaction.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Apply adds delta to the user's balance and records it under ref.
// A ref that was already recorded is not applied again and reports applied=false.
// A negative delta larger than the balance fails with ErrInsufficientBalance.
func (r *LedgerRepository) Apply(ctx context.Context, userID, delta int64, txType, ref string, description *string) (applied bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback(ctx)
		}
	}()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (user_id, amount, type, description, ref, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (ref) DO NOTHING
		RETURNING id
	`, userID, delta, txType, description, ref).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE telegram_id = $1 AND balance + $2 >= 0
	`, userID, delta)
	if err != nil {
		return false, fmt.Errorf("failed to apply ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrInsufficientBalance
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return true, nil
}
