package lobby

import (
	"fmt"
	"sync"
	"time"
)

// Stake is a participant's committed wager. Immutable once staged.
type Stake struct {
	ParticipantID int64     `json:"participant_id"`
	Amount        int64     `json:"amount"`
	Selection     int       `json:"selection"`
	At            time.Time `json:"joined_at"`
}

// Outcome is the result of a game simulation.
type Outcome struct {
	// Selection is the winning selection, or -1 when the game has no single winner.
	Selection int `json:"selection"`
	// Multipliers maps a selection to its gross payout multiplier.
	// Selections absent from the map pay nothing.
	Multipliers map[int]Odds `json:"multipliers"`
	// Detail carries game-specific data for rendering (dice, positions).
	Detail map[string]any `json:"detail,omitempty"`
}

// clone copies the outcome including its maps.
func (o Outcome) clone() *Outcome {
	c := o
	if o.Multipliers != nil {
		c.Multipliers = make(map[int]Odds, len(o.Multipliers))
		for k, v := range o.Multipliers {
			c.Multipliers[k] = v
		}
	}
	if o.Detail != nil {
		c.Detail = make(map[string]any, len(o.Detail))
		for k, v := range o.Detail {
			c.Detail[k] = v
		}
	}
	return &c
}

// Session is one time-boxed multiplayer round.
// Identity fields are immutable; everything else is guarded by mu and only
// mutated by the Manager while it holds the session's lock.
type Session struct {
	ID        string
	ScopeKey  string
	OwnerID   int64
	Config    Config
	CreatedAt time.Time

	mu         sync.RWMutex
	phase      Phase
	deadlineAt time.Time
	stakes     []Stake
	staked     map[int64]int
	outcome    *Outcome
	settlement *Settlement
	history    []Transition
}

func newSession(id, scopeKey string, ownerID int64, cfg Config, now time.Time) *Session {
	return &Session{
		ID:         id,
		ScopeKey:   scopeKey,
		OwnerID:    ownerID,
		Config:     cfg,
		CreatedAt:  now,
		phase:      PhaseForming,
		deadlineAt: now.Add(cfg.FormingWindow),
		staked:     make(map[int64]int),
		history: []Transition{{
			Seq: 0, To: PhaseForming, Reason: ReasonCreated, At: now,
		}},
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// DeadlineAt returns the end of the forming window.
func (s *Session) DeadlineAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deadlineAt
}

// Stakes returns the staged stakes in join order.
func (s *Session) Stakes() []Stake {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Stake, len(s.stakes))
	copy(out, s.stakes)
	return out
}

// History returns the phase transitions recorded so far.
func (s *Session) History() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

// Outcome returns a copy of the simulation outcome, or nil before resolution.
func (s *Session) Outcome() *Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outcome == nil {
		return nil
	}
	return s.outcome.clone()
}

func (s *Session) participantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stakes)
}

// checkStake validates a prospective stake without recording it.
func (s *Session) checkStake(participantID, amount int64, selection int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkStakeLocked(participantID, amount, selection)
}

func (s *Session) checkStakeLocked(participantID, amount int64, selection int) error {
	if s.phase != PhaseForming {
		return ErrSessionNotForming
	}
	if amount <= 0 || amount < s.Config.MinStake || (s.Config.MaxStake > 0 && amount > s.Config.MaxStake) {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if selection < 0 || selection >= s.Config.Selections {
		return fmt.Errorf("%w: %d", ErrInvalidSelection, selection)
	}
	if _, ok := s.staked[participantID]; ok {
		return ErrAlreadyStaked
	}
	if len(s.stakes) >= s.Config.Capacity {
		return ErrCapacityReached
	}
	return nil
}

// stage records a stake. Participants are append-only while forming.
func (s *Session) stage(participantID, amount int64, selection int, at time.Time) (Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStakeLocked(participantID, amount, selection); err != nil {
		return Stake{}, err
	}
	st := Stake{ParticipantID: participantID, Amount: amount, Selection: selection, At: at}
	s.staked[participantID] = len(s.stakes)
	s.stakes = append(s.stakes, st)
	return st, nil
}

// transition moves the session to next and appends a history record.
func (s *Session) transition(next Phase, reason string, at time.Time) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !canTransition(s.phase, next) {
		return Transition{}, invalidTransition(s.phase, next)
	}
	t := Transition{
		Seq:    len(s.history),
		From:   s.phase,
		To:     next,
		Reason: reason,
		At:     at,
	}
	s.phase = next
	s.history = append(s.history, t)
	return t, nil
}

// setOutcome stores the outcome once; later calls are ignored.
func (s *Session) setOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		s.outcome = &o
	}
}

func (s *Session) extendDeadline(d time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlineAt = s.deadlineAt.Add(d)
	return s.deadlineAt
}

func (s *Session) getSettlement() *Settlement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settlement
}

func (s *Session) setSettlement(st *Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlement = st
}

// SessionView is a read-only projection of a session for rendering.
type SessionView struct {
	ID              string        `json:"id"`
	ScopeKey        string        `json:"scope_key"`
	OwnerID         int64         `json:"owner_id"`
	Kind            string        `json:"kind"`
	Phase           Phase         `json:"phase"`
	Participants    []Stake       `json:"participants"`
	MinParticipants int           `json:"min_participants"`
	Capacity        int           `json:"capacity"`
	CreatedAt       time.Time     `json:"created_at"`
	DeadlineAt      time.Time     `json:"deadline_at"`
	Remaining       time.Duration `json:"remaining"`
	Outcome         *Outcome      `json:"outcome,omitempty"`
	// Payouts holds payouts once settled, or refunds once cancelled.
	Payouts        []Payout      `json:"payouts,omitempty"`
	TotalDisbursed int64         `json:"total_disbursed"`
	PartialFailure bool          `json:"partial_failure"`
	Unpaid         []UnpaidEntry `json:"unpaid,omitempty"`
}

// View builds a snapshot as of now. Remaining is never negative.
func (s *Session) View(now time.Time) SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := SessionView{
		ID:              s.ID,
		ScopeKey:        s.ScopeKey,
		OwnerID:         s.OwnerID,
		Kind:            s.Config.Kind,
		Phase:           s.phase,
		Participants:    make([]Stake, len(s.stakes)),
		MinParticipants: s.Config.MinParticipants,
		Capacity:        s.Config.Capacity,
		CreatedAt:       s.CreatedAt,
		DeadlineAt:      s.deadlineAt,
	}
	copy(v.Participants, s.stakes)

	if s.phase == PhaseForming {
		if r := s.deadlineAt.Sub(now); r > 0 {
			v.Remaining = r
		}
	}
	if s.outcome != nil {
		v.Outcome = s.outcome.clone()
	}
	if st := s.settlement; st != nil {
		pr := st.Progress()
		v.Payouts = append([]Payout(nil), st.Result.Payouts...)
		v.TotalDisbursed = pr.Paid
		v.PartialFailure = pr.PartialFailure
		v.Unpaid = pr.Unpaid
	}
	return v
}
