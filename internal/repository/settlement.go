package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-casino-bot/internal/model"
)

// ErrSettlementNotFound is returned when no audit record exists for a session.
var ErrSettlementNotFound = errors.New("settlement not found")

const settlementColumns = `session_id, scope_key, kind, owner_id, phase, reason,
	total_staked, total_disbursed, partial_failure, outcome, finished_at`

// SettlementRepository stores the audit trail of finished sessions.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository instance.
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

// Save upserts the settlement and replaces its payout lines.
func (r *SettlementRepository) Save(ctx context.Context, s *model.LobbySettlement) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO lobby_settlements (`+settlementColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (session_id) DO UPDATE SET
				phase = EXCLUDED.phase,
				reason = EXCLUDED.reason,
				total_staked = EXCLUDED.total_staked,
				total_disbursed = EXCLUDED.total_disbursed,
				partial_failure = EXCLUDED.partial_failure,
				outcome = EXCLUDED.outcome,
				finished_at = EXCLUDED.finished_at
		`,
			s.SessionID, s.ScopeKey, s.Kind, s.OwnerID, s.Phase, s.Reason,
			s.TotalStaked, s.TotalDisbursed, s.PartialFailure, s.Outcome, s.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save settlement: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM lobby_payouts WHERE session_id = $1`, s.SessionID); err != nil {
			return fmt.Errorf("failed to clear payouts: %w", err)
		}

		batch := &pgx.Batch{}
		for _, p := range s.Payouts {
			batch.Queue(`
				INSERT INTO lobby_payouts (session_id, position, participant_id, selection, stake, amount, paid)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, s.SessionID, p.Position, p.ParticipantID, p.Selection, p.Stake, p.Amount, p.Paid)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save payouts: %w", err)
		}
		return nil
	})
}

func scanSettlement(row pgx.Row) (*model.LobbySettlement, error) {
	var s model.LobbySettlement
	err := row.Scan(
		&s.SessionID,
		&s.ScopeKey,
		&s.Kind,
		&s.OwnerID,
		&s.Phase,
		&s.Reason,
		&s.TotalStaked,
		&s.TotalDisbursed,
		&s.PartialFailure,
		&s.Outcome,
		&s.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get loads a settlement with its payout lines in position order.
func (r *SettlementRepository) Get(ctx context.Context, sessionID string) (*model.LobbySettlement, error) {
	s, err := scanSettlement(r.pool.QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM lobby_settlements WHERE session_id = $1`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT session_id, position, participant_id, selection, stake, amount, paid
		FROM lobby_payouts
		WHERE session_id = $1
		ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}
	s.Payouts, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.LobbyPayout])
	if err != nil {
		return nil, fmt.Errorf("failed to scan payouts: %w", err)
	}
	return s, nil
}

// ListPartial returns the ids of sessions that still have unpaid entries, oldest first.
func (r *SettlementRepository) ListPartial(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id
		FROM lobby_settlements
		WHERE partial_failure
		ORDER BY finished_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list partial settlements: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan partial settlements: %w", err)
	}
	return ids, nil
}

// MarkPaid flags one payout line as paid, adds it to the disbursed total and
// clears the partial failure flag once nothing is left unpaid.
func (r *SettlementRepository) MarkPaid(ctx context.Context, sessionID string, position int) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var amount int64
		err := tx.QueryRow(ctx, `
			UPDATE lobby_payouts SET paid = TRUE
			WHERE session_id = $1 AND position = $2 AND NOT paid
			RETURNING amount
		`, sessionID, position).Scan(&amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to mark payout: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE lobby_settlements
			SET total_disbursed = total_disbursed + $2,
				partial_failure = EXISTS (
					SELECT 1 FROM lobby_payouts
					WHERE session_id = $1 AND NOT paid AND amount > 0
				)
			WHERE session_id = $1
		`, sessionID, amount)
		if err != nil {
			return fmt.Errorf("failed to update settlement: %w", err)
		}
		return nil
	})
}
