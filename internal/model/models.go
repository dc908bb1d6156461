// Package model defines the persisted data models for the casino bot.
package model

import "time"

// User represents a Telegram user account.
type User struct {
	TelegramID     int64     `db:"telegram_id"`
	Username       string    `db:"username"`
	Balance        int64     `db:"balance"`
	LastDailyClaim int64     `db:"last_daily_claim"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Transaction represents a balance change record.
// Ref is set for lobby movements and is unique, which makes them idempotent.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	Ref         *string   `db:"ref"`
	CreatedAt   time.Time `db:"created_at"`
}

// DailyRank represents a user's daily lobby result for ranking.
type DailyRank struct {
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	NetProfit int64  `db:"net_profit"`
}

// LobbySettlement is the audit record of a finished session.
type LobbySettlement struct {
	SessionID      string        `db:"session_id"`
	ScopeKey       string        `db:"scope_key"`
	Kind           string        `db:"kind"`
	OwnerID        int64         `db:"owner_id"`
	Phase          string        `db:"phase"`
	Reason         string        `db:"reason"`
	TotalStaked    int64         `db:"total_staked"`
	TotalDisbursed int64         `db:"total_disbursed"`
	PartialFailure bool          `db:"partial_failure"`
	Outcome        []byte        `db:"outcome"`
	FinishedAt     time.Time     `db:"finished_at"`
	Payouts        []LobbyPayout `db:"-"`
}

// LobbyPayout is one line of a settlement. Paid is false for entries that
// exhausted their retries.
type LobbyPayout struct {
	SessionID     string `db:"session_id"`
	Position      int    `db:"position"`
	ParticipantID int64  `db:"participant_id"`
	Selection     int    `db:"selection"`
	Stake         int64  `db:"stake"`
	Amount        int64  `db:"amount"`
	Paid          bool   `db:"paid"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeInitial     = "initial"      // Initial balance on account creation
	TxTypeDaily       = "daily"        // Daily reward claim
	TxTypeAdminAdd    = "admin_add"    // Admin added balance
	TxTypeAdminSub    = "admin_sub"    // Admin subtracted balance
	TxTypeAdminSet    = "admin_set"    // Admin set balance
	TxTypeLobbyStake  = "lobby_stake"  // Stake debited on join
	TxTypeLobbyRefund = "lobby_refund" // Stake returned on cancel
	TxTypeLobbyPayout = "lobby_payout" // Winnings credited on settle
)

// GameTransactionTypes returns the transaction types that count towards daily rankings.
func GameTransactionTypes() []string {
	return []string{TxTypeLobbyStake, TxTypeLobbyRefund, TxTypeLobbyPayout}
}
