package lobby

import "errors"

// Lobby errors. Validation errors are returned to the caller as-is and are
// never retried.
var (
	ErrAlreadyActive       = errors.New("a session is already active in this scope")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotForming   = errors.New("session is no longer accepting participants")
	ErrAlreadyStaked       = errors.New("participant already staked in this session")
	ErrCapacityReached     = errors.New("session is full")
	ErrInvalidAmount       = errors.New("invalid stake amount")
	ErrInvalidSelection    = errors.New("invalid selection")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnauthorized        = errors.New("only the host can do that")
	ErrBelowMinimum        = errors.New("not enough participants to start")
	ErrUnknownGame         = errors.New("unknown game kind")
	ErrInvalidTransition   = errors.New("invalid phase transition")
	ErrInvalidConfig       = errors.New("invalid session config")
	ErrDisbursementFailure = errors.New("disbursement failed")
)
