package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-casino-bot/internal/model"
)

const txColumns = `id, user_id, amount, type, description, ref, created_at`

// ErrTransactionNotFound is returned when no transaction carries a ref.
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository handles transaction history and daily stats.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Type,
		&tx.Description,
		&tx.Ref,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]*model.Transaction, error) {
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

// Create records a transaction without a ref.
func (r *TransactionRepository) Create(ctx context.Context, userID int64, amount int64, txType string, description *string) (*model.Transaction, error) {
	query := `
		INSERT INTO transactions (user_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING ` + txColumns

	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, userID, amount, txType, description))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// GetByUserID retrieves a user's transactions, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return collectTransactions(rows)
}

// GetByRef retrieves the transaction recorded under ref.
func (r *TransactionRepository) GetByRef(ctx context.Context, ref string) (*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE ref = $1`

	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// ListBySession returns every lobby movement made for a session, in order.
func (r *TransactionRepository) ListBySession(ctx context.Context, sessionID string) ([]*model.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE ref LIKE $1 || ':%'
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session transactions: %w", err)
	}
	return collectTransactions(rows)
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.Add(24 * time.Hour)
}

func (r *TransactionRepository) dailyRanks(ctx context.Context, date time.Time, having, order string, limit int) ([]*model.DailyRank, error) {
	start, end := dayBounds(date)

	query := `
		SELECT t.user_id, u.username, COALESCE(SUM(t.amount), 0) AS net_profit
		FROM transactions t
		JOIN users u ON t.user_id = u.telegram_id
		WHERE t.type = ANY($1)
		  AND t.created_at >= $2
		  AND t.created_at < $3
		GROUP BY t.user_id, u.username
		` + having + `
		ORDER BY net_profit ` + order + `
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, model.GameTransactionTypes(), start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily ranks: %w", err)
	}
	defer rows.Close()

	var ranks []*model.DailyRank
	for rows.Next() {
		var rank model.DailyRank
		if err := rows.Scan(&rank.UserID, &rank.Username, &rank.NetProfit); err != nil {
			return nil, fmt.Errorf("failed to scan daily rank: %w", err)
		}
		ranks = append(ranks, &rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily ranks: %w", err)
	}
	return ranks, nil
}

// GetDailyWinners returns users with positive lobby net profit on date, best first.
func (r *TransactionRepository) GetDailyWinners(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return r.dailyRanks(ctx, date, "HAVING SUM(t.amount) > 0", "DESC", limit)
}

// GetDailyLosers returns users with negative lobby net profit on date, worst first.
func (r *TransactionRepository) GetDailyLosers(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return r.dailyRanks(ctx, date, "HAVING SUM(t.amount) < 0", "ASC", limit)
}

// GetUserDailyProfit returns a user's lobby net profit on date.
func (r *TransactionRepository) GetUserDailyProfit(ctx context.Context, userID int64, date time.Time) (int64, error) {
	start, end := dayBounds(date)

	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1
		  AND type = ANY($2)
		  AND created_at >= $3
		  AND created_at < $4
	`

	var profit int64
	err := r.pool.QueryRow(ctx, query, userID, model.GameTransactionTypes(), start, end).Scan(&profit)
	if err != nil {
		return 0, fmt.Errorf("failed to get user daily profit: %w", err)
	}
	return profit, nil
}
