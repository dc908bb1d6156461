package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/pkg/lock"
)

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Store           *Store
	Scheduler       Scheduler
	Now             func() time.Time
	Retry           RetryPolicy
	SimulateTimeout time.Duration
}

// Manager orchestrates session lifecycles: creation, joins, the deadline
// decision, simulation, settlement and cleanup.
// Every operation on a session runs under that session's lock.
type Manager struct {
	store           *Store
	scheduler       Scheduler
	games           Games
	ledger          Ledger
	engine          *Engine
	rng             Random
	now             func() time.Time
	locks           *lock.KeyedLock[string]
	simulateTimeout time.Duration

	mu           sync.RWMutex
	listeners    []PhaseListener
	participants []ParticipantListener
}

// NewManager creates a Manager.
func NewManager(games Games, ledger Ledger, rng Random, opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewTimerScheduler()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Retry = opts.Retry.Bounded()
	if opts.SimulateTimeout <= 0 {
		opts.SimulateTimeout = 10 * time.Second
	}

	return &Manager{
		store:           opts.Store,
		scheduler:       opts.Scheduler,
		games:           games,
		ledger:          ledger,
		engine:          NewEngine(ledger, opts.Retry),
		rng:             rng,
		now:             opts.Now,
		locks:           lock.New[string](),
		simulateTimeout: opts.SimulateTimeout,
	}
}

// OnPhaseChange registers a listener. If l also implements
// ParticipantListener it is notified of joins as well.
func (m *Manager) OnPhaseChange(l PhaseListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
	if pl, ok := l.(ParticipantListener); ok {
		m.participants = append(m.participants, pl)
	}
}

// CreateSession opens a forming session of the given game kind under scopeKey.
func (m *Manager) CreateSession(ctx context.Context, scopeKey string, ownerID int64, kind string, opts ...SessionOption) (string, error) {
	_, cfg, ok := m.games.Lookup(kind)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGame, kind)
	}
	cfg.Kind = kind
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	now := m.now()
	// The session lock is taken before the session becomes visible, so no
	// join can lock or cancel it before its timer is armed.
	sess, err := m.store.create(scopeKey, ownerID, cfg, now, func(s *Session) {
		m.locks.Lock(s.ID)
	})
	if err != nil {
		return "", err
	}
	m.scheduler.Schedule(sess.ID, sess.DeadlineAt(), func() { m.onDeadline(sess) })
	view := sess.View(now)
	m.locks.Unlock(sess.ID)

	log.Info().
		Str("session_id", sess.ID).
		Str("scope_key", scopeKey).
		Str("kind", kind).
		Int64("owner", ownerID).
		Time("deadline", sess.DeadlineAt()).
		Msg("Session created")

	m.publish(ctx, &batch{changes: []PhaseChange{{
		SessionID: sess.ID,
		ScopeKey:  scopeKey,
		Next:      PhaseForming,
		Reason:    ReasonCreated,
		At:        now,
		View:      view,
	}}})
	return sess.ID, nil
}

// JoinSession stakes amount on selection for participantID.
// The debit happens at commitment; the stake is refunded if the session is
// later cancelled. Reaching capacity starts the session immediately.
func (m *Manager) JoinSession(ctx context.Context, scopeKey string, participantID, amount int64, selection int) error {
	b := &batch{}
	err := m.withSession(ctx, scopeKey, func(sess *Session) error {
		if err := sess.checkStake(participantID, amount, selection); err != nil {
			return err
		}

		ref := Ref{SessionID: sess.ID, Kind: EntryStake, Game: sess.Config.Kind}
		if err := m.ledger.Debit(ctx, participantID, amount, ref); err != nil {
			return err
		}

		stake, err := sess.stage(participantID, amount, selection, m.now())
		if err != nil {
			// Unreachable under the session lock; return the funds anyway.
			m.refundOne(sess, participantID, amount)
			return err
		}
		b.joins = append(b.joins, joinEvent{view: sess.View(m.now()), stake: stake})

		log.Debug().
			Str("session_id", sess.ID).
			Int64("participant", participantID).
			Int64("amount", amount).
			Int("selection", selection).
			Msg("Stake committed")

		if sess.participantCount() >= sess.Config.Capacity {
			return m.start(context.WithoutCancel(ctx), sess, ReasonCapacity, b)
		}
		return nil
	})
	m.publish(ctx, b)
	return err
}

// ForceStart locks the session before its deadline. Host only.
func (m *Manager) ForceStart(ctx context.Context, scopeKey string, requesterID int64) error {
	b := &batch{}
	err := m.withSession(ctx, scopeKey, func(sess *Session) error {
		if requesterID != sess.OwnerID {
			return ErrUnauthorized
		}
		if sess.Phase() != PhaseForming {
			return ErrSessionNotForming
		}
		if n := sess.participantCount(); n < sess.Config.MinParticipants {
			return fmt.Errorf("%w: %d of %d", ErrBelowMinimum, n, sess.Config.MinParticipants)
		}
		return m.start(context.WithoutCancel(ctx), sess, ReasonForceStart, b)
	})
	m.publish(ctx, b)
	return err
}

// CancelSession cancels a forming session and refunds every stake before
// returning. Host only.
func (m *Manager) CancelSession(ctx context.Context, scopeKey string, requesterID int64) error {
	b := &batch{}
	err := m.withSession(ctx, scopeKey, func(sess *Session) error {
		if requesterID != sess.OwnerID {
			return ErrUnauthorized
		}
		if sess.Phase() != PhaseForming {
			return ErrSessionNotForming
		}
		return m.cancel(context.WithoutCancel(ctx), sess, ReasonHostCancel, b)
	})
	m.publish(ctx, b)
	return err
}

// ExtendDeadline pushes the forming deadline back by d and re-arms the
// timer. Host only.
func (m *Manager) ExtendDeadline(ctx context.Context, scopeKey string, requesterID int64, d time.Duration) (time.Time, error) {
	var deadline time.Time
	err := m.withSession(ctx, scopeKey, func(sess *Session) error {
		if requesterID != sess.OwnerID {
			return ErrUnauthorized
		}
		if sess.Phase() != PhaseForming {
			return ErrSessionNotForming
		}
		if d <= 0 {
			return fmt.Errorf("%w: extension must be positive", ErrInvalidConfig)
		}
		deadline = sess.extendDeadline(d)
		m.scheduler.Schedule(sess.ID, deadline, func() { m.onDeadline(sess) })
		return nil
	})
	return deadline, err
}

// GetSnapshot returns a view of the session under scopeKey, or nil.
func (m *Manager) GetSnapshot(scopeKey string) *SessionView {
	sess := m.store.Get(scopeKey)
	if sess == nil {
		return nil
	}
	v := sess.View(m.now())
	return &v
}

// Settle disburses a resolving session, or returns the recorded result of
// an already settled one without touching the ledger again.
func (m *Manager) Settle(ctx context.Context, sess *Session) (SettlementResult, error) {
	b := &batch{}
	if err := m.locks.LockContext(ctx, sess.ID); err != nil {
		return SettlementResult{}, err
	}
	res, err := m.settleLocked(context.WithoutCancel(ctx), sess, b)
	m.locks.Unlock(sess.ID)
	m.publish(ctx, b)
	return res, err
}

func (m *Manager) settleLocked(ctx context.Context, sess *Session, b *batch) (SettlementResult, error) {
	switch sess.Phase() {
	case PhaseSettled:
		return sess.getSettlement().Result, nil
	case PhaseResolving:
		if err := m.settle(ctx, sess, b); err != nil {
			return SettlementResult{}, err
		}
		return sess.getSettlement().Result, nil
	default:
		return SettlementResult{}, invalidTransition(sess.Phase(), PhaseSettled)
	}
}

// withSession resolves scopeKey and runs fn under the session lock.
func (m *Manager) withSession(ctx context.Context, scopeKey string, fn func(*Session) error) error {
	sess := m.store.Get(scopeKey)
	if sess == nil {
		return ErrSessionNotFound
	}
	if err := m.locks.LockContext(ctx, sess.ID); err != nil {
		return err
	}
	defer m.locks.Unlock(sess.ID)

	if !m.store.owns(sess) {
		return ErrSessionNotFound
	}
	return fn(sess)
}

// onDeadline is the single authoritative forming-window decision.
// It observes every join accepted before it acquired the lock.
func (m *Manager) onDeadline(sess *Session) {
	ctx := context.Background()
	b := &batch{}

	m.locks.Lock(sess.ID)
	if sess.Phase() == PhaseForming && m.store.owns(sess) {
		var err error
		if sess.participantCount() >= sess.Config.MinParticipants {
			err = m.start(ctx, sess, ReasonDeadline, b)
		} else {
			err = m.cancel(ctx, sess, ReasonBelowMinimum, b)
		}
		if err != nil {
			log.Error().Err(err).Str("session_id", sess.ID).Msg("Deadline transition failed")
		}
	}
	m.locks.Unlock(sess.ID)

	m.publish(ctx, b)
}

// start locks the session, runs the simulation and settles it.
// A failed simulation cancels and refunds.
func (m *Manager) start(ctx context.Context, sess *Session, reason string, b *batch) error {
	m.scheduler.Cancel(sess.ID)
	if err := m.transition(sess, PhaseLocked, reason, b); err != nil {
		return err
	}

	sim, _, ok := m.games.Lookup(sess.Config.Kind)
	if !ok {
		log.Error().Str("session_id", sess.ID).Str("kind", sess.Config.Kind).Msg("Game disappeared from registry")
		return m.cancel(ctx, sess, ReasonSimulationFailed, b)
	}

	simCtx, cancel := context.WithTimeout(ctx, m.simulateTimeout)
	outcome, err := sim.Simulate(simCtx, sess.Stakes(), m.rng)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Simulation failed, cancelling session")
		return m.cancel(ctx, sess, ReasonSimulationFailed, b)
	}

	sess.setOutcome(outcome)
	if err := m.transition(sess, PhaseResolving, ReasonSimulated, b); err != nil {
		return err
	}
	return m.settle(ctx, sess, b)
}

// settle disburses payouts and moves the session to settled. Repeated calls
// resume from the settlement cursor and never credit an entry twice.
func (m *Manager) settle(ctx context.Context, sess *Session, b *batch) error {
	st := sess.getSettlement()
	if st == nil {
		outcome := sess.Outcome()
		if outcome == nil {
			return fmt.Errorf("settle session %s: no outcome", sess.ID)
		}
		st = NewSettlement(ComputePayouts(sess.ID, sess.Stakes(), *outcome), EntryPayout, sess.Config.Kind)
		sess.setSettlement(st)
	}

	err := m.engine.Disburse(ctx, st)
	if err != nil && !errors.Is(err, ErrDisbursementFailure) {
		// Interrupted; the session stays resolving until resumed.
		return err
	}

	progress := st.Progress()
	reason := ReasonSettled
	if progress.PartialFailure {
		reason = ReasonPartialFailure
	}
	if err := m.transition(sess, PhaseSettled, reason, b); err != nil {
		return err
	}
	m.store.removeSession(sess)

	log.Info().
		Str("session_id", sess.ID).
		Str("scope_key", sess.ScopeKey).
		Int64("total", st.Result.TotalDisbursed).
		Int64("paid", progress.Paid).
		Bool("partial_failure", progress.PartialFailure).
		Msg("Session settled")
	return nil
}

// cancel moves the session to cancelled and refunds every stake.
func (m *Manager) cancel(ctx context.Context, sess *Session, reason string, b *batch) error {
	m.scheduler.Cancel(sess.ID)
	t, err := sess.transition(PhaseCancelled, reason, m.now())
	if err != nil {
		return err
	}

	st := NewSettlement(computeRefunds(sess.ID, sess.Stakes()), EntryRefund, sess.Config.Kind)
	sess.setSettlement(st)
	if err := m.engine.Disburse(ctx, st); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Refunds incomplete")
	}
	m.store.removeSession(sess)
	m.record(b, sess, t)

	log.Info().
		Str("session_id", sess.ID).
		Str("scope_key", sess.ScopeKey).
		Str("reason", reason).
		Int64("refunded", st.Paid()).
		Msg("Session cancelled")
	return nil
}

// refundOne returns a single debit outside the normal cancel path.
func (m *Manager) refundOne(sess *Session, participantID, amount int64) {
	st := NewSettlement(SettlementResult{
		SessionID:      sess.ID,
		Payouts:        []Payout{{ParticipantID: participantID, Stake: amount, Amount: amount}},
		TotalDisbursed: amount,
	}, EntryRefund, sess.Config.Kind)
	if err := m.engine.Disburse(context.Background(), st); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Int64("participant", participantID).Msg("Refund of rejected stake failed")
	}
}

func (m *Manager) transition(sess *Session, next Phase, reason string, b *batch) error {
	t, err := sess.transition(next, reason, m.now())
	if err != nil {
		return err
	}
	m.record(b, sess, t)
	return nil
}

func (m *Manager) record(b *batch, sess *Session, t Transition) {
	b.changes = append(b.changes, PhaseChange{
		SessionID: sess.ID,
		ScopeKey:  sess.ScopeKey,
		Previous:  t.From,
		Next:      t.To,
		Reason:    t.Reason,
		At:        t.At,
		View:      sess.View(m.now()),
	})
}

// publish notifies listeners. It must be called without any session lock held.
func (m *Manager) publish(ctx context.Context, b *batch) {
	if b == nil || (len(b.changes) == 0 && len(b.joins) == 0) {
		return
	}

	m.mu.RLock()
	listeners := append([]PhaseListener(nil), m.listeners...)
	participants := append([]ParticipantListener(nil), m.participants...)
	m.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, j := range b.joins {
		for _, l := range participants {
			l.OnParticipantJoined(ctx, j.view, j.stake)
		}
	}
	for _, c := range b.changes {
		for _, l := range listeners {
			l.OnPhaseChange(ctx, c)
		}
	}
}
