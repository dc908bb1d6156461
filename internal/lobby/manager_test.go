package lobby

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_DeadlineSettlesWithWinner(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-1", alice, kindRace,
		WithMinParticipants(2), WithCapacity(5), WithFormingWindow(60*time.Second))
	require.NoError(t, err)
	sess := h.store.Get("table-1")
	require.NotNil(t, sess)

	require.NoError(t, h.m.JoinSession(ctx, "table-1", alice, 1000, 0))
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.m.JoinSession(ctx, "table-1", bob, 2000, 1))

	h.clock.Advance(50 * time.Second)
	require.True(t, h.sched.fire(id))

	assert.Equal(t, PhaseSettled, sess.Phase())
	assert.Nil(t, h.store.Get("table-1"), "settled session should be evicted")

	res := sess.getSettlement().Result
	require.Len(t, res.Payouts, 2)
	assert.Equal(t, Payout{ParticipantID: alice, Selection: 0, Stake: 1000, Amount: 0}, res.Payouts[0])
	assert.Equal(t, Payout{ParticipantID: bob, Selection: 1, Stake: 2000, Amount: 7000}, res.Payouts[1])
	assert.Equal(t, int64(7000), res.TotalDisbursed)

	assert.Equal(t, int64(9000), h.ledger.balance(alice))
	assert.Equal(t, int64(15000), h.ledger.balance(bob))

	assert.Equal(t, []Phase{PhaseForming, PhaseLocked, PhaseResolving, PhaseSettled}, h.log.phases())
	assert.Equal(t, ReasonDeadline, h.log.changes[1].Reason)
	assert.Len(t, h.log.joins, 2)
}

func TestManager_DeadlineBelowMinimumCancelsAndRefunds(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-2", alice, kindRace, WithMinParticipants(3))
	require.NoError(t, err)
	sess := h.store.Get("table-2")

	require.NoError(t, h.m.JoinSession(ctx, "table-2", bob, 1500, 2))
	assert.Equal(t, int64(8500), h.ledger.balance(bob))

	h.clock.Advance(60 * time.Second)
	require.True(t, h.sched.fire(id))

	assert.Equal(t, PhaseCancelled, sess.Phase())
	assert.Equal(t, int64(10_000), h.ledger.balance(bob))
	assert.Equal(t, int64(1500), h.ledger.creditedTotal(EntryRefund))
	assert.Len(t, h.ledger.creditCalls(), 1)

	last := h.log.last()
	assert.Equal(t, PhaseCancelled, last.Next)
	assert.Equal(t, ReasonBelowMinimum, last.Reason)
	assert.Equal(t, int64(1500), last.View.TotalDisbursed)

	// Scope is free immediately.
	_, err = h.m.CreateSession(ctx, "table-2", carol, kindRace)
	assert.NoError(t, err)
}

func TestManager_CreateOnActiveScope(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-3", alice, kindRace)
	require.NoError(t, err)
	require.NoError(t, h.m.JoinSession(ctx, "table-3", bob, 300, 0))
	before := h.m.GetSnapshot("table-3")

	_, err = h.m.CreateSession(ctx, "table-3", carol, kindRace)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	after := h.m.GetSnapshot("table-3")
	require.NotNil(t, after)
	assert.Equal(t, id, after.ID)
	assert.Equal(t, *before, *after)
	_, armed := h.sched.pending(id)
	assert.True(t, armed)
}

func TestManager_SettleIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-4", alice, kindRace)
	require.NoError(t, err)
	sess := h.store.Get("table-4")
	require.NoError(t, h.m.JoinSession(ctx, "table-4", alice, 1000, 1))
	require.NoError(t, h.m.JoinSession(ctx, "table-4", bob, 500, 1))
	h.sched.fire(id)
	require.Equal(t, PhaseSettled, sess.Phase())

	credits := len(h.ledger.creditCalls())
	first := sess.getSettlement().Result

	again, err := h.m.Settle(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	again, err = h.m.Settle(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, h.ledger.creditCalls(), credits)
	assert.Equal(t, int64(10_000-1000+3500), h.ledger.balance(alice))
}

func TestManager_SettleRejectsUnresolvedSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.m.CreateSession(ctx, "table-5", alice, kindRace)
	require.NoError(t, err)

	_, err = h.m.Settle(ctx, h.store.Get("table-5"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_CapacityStartsImmediately(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-6", alice, kindRace, WithCapacity(2))
	require.NoError(t, err)
	sess := h.store.Get("table-6")

	require.NoError(t, h.m.JoinSession(ctx, "table-6", alice, 100, 0))
	require.NoError(t, h.m.JoinSession(ctx, "table-6", bob, 100, 1))

	assert.Equal(t, PhaseSettled, sess.Phase())
	_, armed := h.sched.pending(id)
	assert.False(t, armed, "deadline timer must be cancelled")
	assert.Equal(t, ReasonCapacity, sess.History()[1].Reason)

	err = h.m.JoinSession(ctx, "table-6", carol, 100, 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_JoinValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.m.CreateSession(ctx, "table-7", alice, kindRace, WithStakeBounds(10, 5000))
	require.NoError(t, err)
	require.NoError(t, h.m.JoinSession(ctx, "table-7", alice, 100, 0))

	tests := []struct {
		name      string
		user      int64
		amount    int64
		selection int
		wantErr   error
	}{
		{"zero amount", bob, 0, 0, ErrInvalidAmount},
		{"negative amount", bob, -5, 0, ErrInvalidAmount},
		{"below min stake", bob, 9, 0, ErrInvalidAmount},
		{"above max stake", bob, 5001, 0, ErrInvalidAmount},
		{"negative selection", bob, 100, -1, ErrInvalidSelection},
		{"selection out of range", bob, 100, 3, ErrInvalidSelection},
		{"already staked", alice, 100, 1, ErrAlreadyStaked},
		{"unknown scope", bob, 100, 0, ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := "table-7"
			if tt.wantErr == ErrSessionNotFound {
				scope = "nowhere"
			}
			err := h.m.JoinSession(ctx, scope, tt.user, tt.amount, tt.selection)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, int64(10_000), h.ledger.balance(bob), "rejected joins must not debit")
	assert.Len(t, h.m.GetSnapshot("table-7").Participants, 1)
}

func TestManager_InsufficientFundsAbortsOnlyThatJoin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.ledger.balances[carol] = 50

	_, err := h.m.CreateSession(ctx, "table-8", alice, kindRace)
	require.NoError(t, err)
	require.NoError(t, h.m.JoinSession(ctx, "table-8", alice, 100, 0))

	err = h.m.JoinSession(ctx, "table-8", carol, 100, 0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	snap := h.m.GetSnapshot("table-8")
	require.NotNil(t, snap)
	assert.Equal(t, PhaseForming, snap.Phase)
	assert.Len(t, snap.Participants, 1)
	assert.Equal(t, int64(50), h.ledger.balance(carol))

	// Carol can retry once funded.
	h.ledger.balances[carol] = 500
	assert.NoError(t, h.m.JoinSession(ctx, "table-8", carol, 100, 0))
}

func TestManager_ForceStart(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-9", alice, kindRace)
	require.NoError(t, err)
	sess := h.store.Get("table-9")
	require.NoError(t, h.m.JoinSession(ctx, "table-9", alice, 100, 0))

	assert.ErrorIs(t, h.m.ForceStart(ctx, "table-9", bob), ErrUnauthorized)
	assert.ErrorIs(t, h.m.ForceStart(ctx, "table-9", alice), ErrBelowMinimum)

	require.NoError(t, h.m.JoinSession(ctx, "table-9", bob, 100, 1))
	require.NoError(t, h.m.ForceStart(ctx, "table-9", alice))

	assert.Equal(t, PhaseSettled, sess.Phase())
	assert.Equal(t, ReasonForceStart, sess.History()[1].Reason)
	assert.False(t, h.sched.fire(id), "timer must be cancelled by force start")
}

func TestManager_CancelSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-10", alice, kindRace)
	require.NoError(t, err)
	sess := h.store.Get("table-10")
	require.NoError(t, h.m.JoinSession(ctx, "table-10", alice, 400, 0))
	require.NoError(t, h.m.JoinSession(ctx, "table-10", bob, 600, 1))

	assert.ErrorIs(t, h.m.CancelSession(ctx, "table-10", bob), ErrUnauthorized)
	require.NoError(t, h.m.CancelSession(ctx, "table-10", alice))

	assert.Equal(t, PhaseCancelled, sess.Phase())
	assert.Equal(t, int64(10_000), h.ledger.balance(alice))
	assert.Equal(t, int64(10_000), h.ledger.balance(bob))
	assert.Nil(t, h.m.GetSnapshot("table-10"))
	assert.False(t, h.sched.fire(id))

	assert.ErrorIs(t, h.m.CancelSession(ctx, "table-10", alice), ErrSessionNotFound)
}

func TestManager_SimulationFailureRefunds(t *testing.T) {
	boom := SimulatorFunc(func(context.Context, []Stake, Random) (Outcome, error) {
		return Outcome{}, errors.New("dice fell off the table")
	})
	h := newHarness(t, boom)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-11", alice, kindRace)
	require.NoError(t, err)
	sess := h.store.Get("table-11")
	require.NoError(t, h.m.JoinSession(ctx, "table-11", alice, 400, 0))
	require.NoError(t, h.m.JoinSession(ctx, "table-11", bob, 600, 1))
	h.sched.fire(id)

	assert.Equal(t, PhaseCancelled, sess.Phase())
	assert.Equal(t, ReasonSimulationFailed, sess.History()[2].Reason)
	assert.Equal(t, int64(10_000), h.ledger.balance(alice))
	assert.Equal(t, int64(10_000), h.ledger.balance(bob))
}

func TestManager_SimulationHonorsTimeout(t *testing.T) {
	slow := SimulatorFunc(func(ctx context.Context, _ []Stake, _ Random) (Outcome, error) {
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	})
	h := newHarness(t, slow)
	h.m.simulateTimeout = 10 * time.Millisecond
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-12", alice, kindRace)
	require.NoError(t, err)
	sess := h.store.Get("table-12")
	require.NoError(t, h.m.JoinSession(ctx, "table-12", alice, 400, 0))
	require.NoError(t, h.m.JoinSession(ctx, "table-12", bob, 600, 1))
	h.sched.fire(id)

	assert.Equal(t, PhaseCancelled, sess.Phase())
}

func TestManager_PartialFailureFlagged(t *testing.T) {
	h := newHarness(t, fixedOutcome(1, WholeOdds(2)))
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-13", alice, kindRace)
	require.NoError(t, err)
	sess := h.store.Get("table-13")
	require.NoError(t, h.m.JoinSession(ctx, "table-13", alice, 100, 1))
	require.NoError(t, h.m.JoinSession(ctx, "table-13", bob, 200, 1))
	require.NoError(t, h.m.JoinSession(ctx, "table-13", carol, 300, 1))

	h.ledger.failCredits[bob] = -1
	h.sched.fire(id)

	assert.Equal(t, PhaseSettled, sess.Phase())
	st := sess.getSettlement()
	assert.True(t, st.PartialFailure())
	require.Len(t, st.Unpaid(), 1)
	assert.Equal(t, 1, st.Unpaid()[0].Index)
	assert.Equal(t, bob, st.Unpaid()[0].Payout.ParticipantID)
	assert.Equal(t, int64(800), st.Paid())

	assert.Equal(t, int64(10_000+100), h.ledger.balance(alice))
	assert.Equal(t, int64(10_000-200), h.ledger.balance(bob))
	assert.Equal(t, int64(10_000+300), h.ledger.balance(carol))

	last := h.log.last()
	assert.Equal(t, ReasonPartialFailure, last.Reason)
	assert.True(t, last.View.PartialFailure)

	// Settling again does not retry the flagged entry or re-credit others.
	attempts := h.ledger.attempts
	_, err = h.m.Settle(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, attempts, h.ledger.attempts)
}

func TestManager_TransientCreditFailureRetried(t *testing.T) {
	h := newHarness(t, fixedOutcome(0, WholeOdds(2)))
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-14", alice, kindRace)
	require.NoError(t, err)
	sess := h.store.Get("table-14")
	require.NoError(t, h.m.JoinSession(ctx, "table-14", alice, 100, 0))
	require.NoError(t, h.m.JoinSession(ctx, "table-14", bob, 100, 0))

	h.ledger.failCredits[alice] = 2
	h.sched.fire(id)

	st := sess.getSettlement()
	assert.False(t, st.PartialFailure())
	assert.Equal(t, int64(10_100), h.ledger.balance(alice))
	assert.Equal(t, int64(10_100), h.ledger.balance(bob))
}

func TestManager_ExtendDeadline(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id, err := h.m.CreateSession(ctx, "table-15", alice, kindRace)
	require.NoError(t, err)
	original, _ := h.sched.pending(id)

	_, err = h.m.ExtendDeadline(ctx, "table-15", bob, time.Minute)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.m.ExtendDeadline(ctx, "table-15", alice, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	deadline, err := h.m.ExtendDeadline(ctx, "table-15", alice, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, original.Add(30*time.Second), deadline)

	armed, ok := h.sched.pending(id)
	require.True(t, ok)
	assert.Equal(t, deadline, armed)
	assert.Equal(t, deadline, h.m.GetSnapshot("table-15").DeadlineAt)
}

func TestManager_SnapshotRemainingNeverNegative(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.m.CreateSession(ctx, "table-16", alice, kindRace, WithFormingWindow(30*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, h.m.GetSnapshot("table-16").Remaining)
	h.clock.Advance(20 * time.Second)
	assert.Equal(t, 10*time.Second, h.m.GetSnapshot("table-16").Remaining)
	h.clock.Advance(time.Minute)
	assert.Equal(t, time.Duration(0), h.m.GetSnapshot("table-16").Remaining)

	assert.Nil(t, h.m.GetSnapshot("no-such-table"))
}

func TestManager_UnknownGameAndBadConfig(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.m.CreateSession(ctx, "table-17", alice, "roulette")
	assert.ErrorIs(t, err, ErrUnknownGame)

	_, err = h.m.CreateSession(ctx, "table-17", alice, kindRace, WithCapacity(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 0, h.store.Len())
}

func TestManager_StaleTimerAfterReuseIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.m.CreateSession(ctx, "table-18", alice, kindRace)
	require.NoError(t, err)
	first := h.store.Get("table-18")
	require.NoError(t, h.m.CancelSession(ctx, "table-18", alice))

	_, err = h.m.CreateSession(ctx, "table-18", bob, kindRace)
	require.NoError(t, err)
	second := h.store.Get("table-18")

	// A callback bound to the first session must not touch the second.
	h.m.onDeadline(first)
	assert.Equal(t, PhaseForming, second.Phase())
	assert.Equal(t, PhaseCancelled, first.Phase())
}

func TestManager_RealTimerFires(t *testing.T) {
	ledger := newMemLedger(1000, alice)
	games := fakeGames{kindRace: {sim: fixedOutcome(0, WholeOdds(2)), cfg: Config{
		MinParticipants: 2, Capacity: 4, FormingWindow: 20 * time.Millisecond, Selections: 2,
	}}}
	m := NewManager(games, ledger, stubRandom{}, Options{})
	ctx := context.Background()

	_, err := m.CreateSession(ctx, "table-19", alice, kindRace)
	require.NoError(t, err)
	require.NoError(t, m.JoinSession(ctx, "table-19", alice, 250, 0))

	assert.Eventually(t, func() bool {
		return m.GetSnapshot("table-19") == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1000), ledger.balance(alice))
}
