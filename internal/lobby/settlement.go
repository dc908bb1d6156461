package lobby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// EntryKind classifies a ledger movement made on behalf of a session.
type EntryKind string

const (
	EntryStake  EntryKind = "lobby_stake"
	EntryRefund EntryKind = "lobby_refund"
	EntryPayout EntryKind = "lobby_payout"
)

// Ref identifies the session-side reason for a ledger call. Ledgers use it as
// an idempotency key: one (participant, kind, session) movement at most.
type Ref struct {
	SessionID string
	Kind      EntryKind
	Game      string
}

// Ledger is the persistent balance store.
type Ledger interface {
	// Debit removes amount from the user's balance, or fails with
	// ErrInsufficientFunds leaving the balance untouched.
	Debit(ctx context.Context, userID, amount int64, ref Ref) error
	// Credit adds amount to the user's balance.
	Credit(ctx context.Context, userID, amount int64, ref Ref) error
}

// Payout is one participant's line in a settlement. Losers carry Amount 0.
type Payout struct {
	ParticipantID int64 `json:"participant_id"`
	Selection     int   `json:"selection"`
	Stake         int64 `json:"stake"`
	Amount        int64 `json:"amount"`
}

// SettlementResult is the complete payout list of a session in join order.
type SettlementResult struct {
	SessionID      string   `json:"session_id"`
	Payouts        []Payout `json:"payouts"`
	TotalDisbursed int64    `json:"total_disbursed"`
}

// ComputePayouts derives payouts from the stakes and the outcome alone.
// Every participant gets an entry; a selection without a multiplier pays zero.
func ComputePayouts(sessionID string, stakes []Stake, outcome Outcome) SettlementResult {
	res := SettlementResult{
		SessionID: sessionID,
		Payouts:   make([]Payout, 0, len(stakes)),
	}
	for _, st := range stakes {
		amount := outcome.Multipliers[st.Selection].Apply(st.Amount)
		res.Payouts = append(res.Payouts, Payout{
			ParticipantID: st.ParticipantID,
			Selection:     st.Selection,
			Stake:         st.Amount,
			Amount:        amount,
		})
		res.TotalDisbursed += amount
	}
	return res
}

// computeRefunds returns every stake back to its owner.
func computeRefunds(sessionID string, stakes []Stake) SettlementResult {
	res := SettlementResult{
		SessionID: sessionID,
		Payouts:   make([]Payout, 0, len(stakes)),
	}
	for _, st := range stakes {
		res.Payouts = append(res.Payouts, Payout{
			ParticipantID: st.ParticipantID,
			Selection:     st.Selection,
			Stake:         st.Amount,
			Amount:        st.Amount,
		})
		res.TotalDisbursed += st.Amount
	}
	return res
}

// UnpaidEntry is a payout that could not be credited within the retry bound.
type UnpaidEntry struct {
	Index  int    `json:"index"`
	Payout Payout `json:"payout"`
	Error  string `json:"error"`
}

// Settlement tracks disbursement progress of a SettlementResult.
// Entries before the cursor are never credited again. Progress fields are
// guarded by mu so snapshots can be read while a disbursement runs.
type Settlement struct {
	Result SettlementResult
	Kind   EntryKind
	Game   string

	mu      sync.Mutex
	paid    int64
	unpaid  []UnpaidEntry
	partial bool
	applied []bool
	cursor  int
}

// SettlementProgress is a point-in-time copy of a settlement's progress.
type SettlementProgress struct {
	Paid           int64
	Unpaid         []UnpaidEntry
	PartialFailure bool
}

// NewSettlement prepares res for disbursement.
func NewSettlement(res SettlementResult, kind EntryKind, game string) *Settlement {
	return &Settlement{
		Result:  res,
		Kind:    kind,
		Game:    game,
		applied: make([]bool, len(res.Payouts)),
	}
}

// Done reports whether every entry has been visited.
func (s *Settlement) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor >= len(s.Result.Payouts)
}

// Applied reports whether entry i has been credited.
func (s *Settlement) Applied(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return i >= 0 && i < len(s.applied) && s.applied[i]
}

// Paid returns the total credited so far.
func (s *Settlement) Paid() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paid
}

// PartialFailure reports whether any entry ended unpaid.
func (s *Settlement) PartialFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial
}

// Unpaid returns the entries that exhausted their retries.
func (s *Settlement) Unpaid() []UnpaidEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UnpaidEntry(nil), s.unpaid...)
}

// Progress returns a consistent copy of paid, unpaid and partial failure.
func (s *Settlement) Progress() SettlementProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SettlementProgress{
		Paid:           s.paid,
		Unpaid:         append([]UnpaidEntry(nil), s.unpaid...),
		PartialFailure: s.partial,
	}
}

// next returns the entry at the cursor and whether it still needs a credit.
func (s *Settlement) next() (int, Payout, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.Result.Payouts) {
		return 0, Payout{}, false, false
	}
	i := s.cursor
	p := s.Result.Payouts[i]
	return i, p, p.Amount > 0 && !s.applied[i], true
}

// advance records the result of entry i and moves the cursor past it.
func (s *Settlement) advance(i int, p Payout, credited bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case credited:
		s.applied[i] = true
		s.paid += p.Amount
	case err != nil:
		s.unpaid = append(s.unpaid, UnpaidEntry{Index: i, Payout: p, Error: err.Error()})
		s.partial = true
	}
	s.cursor++
}

// RetryPolicy bounds retries of a single ledger credit.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Bounded replaces non-positive fields with their defaults, so retries
// always end after a finite number of attempts.
func (p RetryPolicy) Bounded() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	p = p.Bounded()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Engine disburses settlements through the ledger.
type Engine struct {
	ledger Ledger
	retry  RetryPolicy
}

// NewEngine creates an Engine.
func NewEngine(ledger Ledger, retry RetryPolicy) *Engine {
	return &Engine{ledger: ledger, retry: retry.Bounded()}
}

// Disburse credits every non-zero entry from the cursor onward.
// A failing entry is retried per the RetryPolicy; once exhausted it is
// recorded as unpaid and the remaining entries still proceed. Applied
// credits are never reversed.
//
// If ctx ends mid-way the cursor stays on the interrupted entry so a later
// call resumes there. Returns ErrDisbursementFailure when any entry ended
// unpaid.
func (e *Engine) Disburse(ctx context.Context, s *Settlement) error {
	ref := Ref{SessionID: s.Result.SessionID, Kind: s.Kind, Game: s.Game}

	for {
		i, p, due, ok := s.next()
		if !ok {
			break
		}
		if !due {
			s.advance(i, p, false, nil)
			continue
		}

		err := backoff.Retry(func() error {
			err := e.ledger.Credit(ctx, p.ParticipantID, p.Amount, ref)
			if err != nil && ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}, e.retry.backOff(ctx))

		if err != nil && ctx.Err() != nil {
			return fmt.Errorf("disbursement interrupted at entry %d: %w", i, ctx.Err())
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("session_id", ref.SessionID).
				Str("kind", string(ref.Kind)).
				Int64("participant", p.ParticipantID).
				Int64("amount", p.Amount).
				Int("index", i).
				Msg("Credit failed after retries, flagging for reconciliation")
		}
		s.advance(i, p, err == nil, err)
	}

	if pr := s.Progress(); pr.PartialFailure {
		return fmt.Errorf("%w: %d of %d entries unpaid", ErrDisbursementFailure, len(pr.Unpaid), len(s.Result.Payouts))
	}
	return nil
}
