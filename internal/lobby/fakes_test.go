package lobby

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errLedgerDown = errors.New("ledger unavailable")

// memLedger is an in-memory Ledger with failure injection.
type memLedger struct {
	mu       sync.Mutex
	balances map[int64]int64
	credits  []ledgerCall
	debits   []ledgerCall
	// failCredits is the number of failing credit attempts left per user;
	// a negative value fails forever.
	failCredits map[int64]int
	attempts    int
}

type ledgerCall struct {
	UserID int64
	Amount int64
	Ref    Ref
}

func newMemLedger(initial int64, users ...int64) *memLedger {
	l := &memLedger{
		balances:    make(map[int64]int64),
		failCredits: make(map[int64]int),
	}
	for _, u := range users {
		l.balances[u] = initial
	}
	return l
}

func (l *memLedger) Debit(_ context.Context, userID, amount int64, ref Ref) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	l.balances[userID] -= amount
	l.debits = append(l.debits, ledgerCall{userID, amount, ref})
	return nil
}

func (l *memLedger) Credit(_ context.Context, userID, amount int64, ref Ref) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if n := l.failCredits[userID]; n != 0 {
		if n > 0 {
			l.failCredits[userID] = n - 1
		}
		return errLedgerDown
	}
	l.balances[userID] += amount
	l.credits = append(l.credits, ledgerCall{userID, amount, ref})
	return nil
}

func (l *memLedger) balance(userID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *memLedger) creditCalls() []ledgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledgerCall(nil), l.credits...)
}

func (l *memLedger) creditedTotal(kind EntryKind) int64 {
	var total int64
	for _, c := range l.creditCalls() {
		if c.Ref.Kind == kind {
			total += c.Amount
		}
	}
	return total
}

// manualScheduler fires callbacks only when told to.
type manualScheduler struct {
	mu  sync.Mutex
	fns map[string]func()
	at  map[string]time.Time
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{fns: make(map[string]func()), at: make(map[string]time.Time)}
}

func (s *manualScheduler) Schedule(id string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns[id] = fn
	s.at[id] = at
}

func (s *manualScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fns[id]
	delete(s.fns, id)
	delete(s.at, id)
	return ok
}

func (s *manualScheduler) pending(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.at[id]
	return at, ok
}

// fire runs the callback for id as the timer would. Returns false if none
// was armed.
func (s *manualScheduler) fire(id string) bool {
	s.mu.Lock()
	fn, ok := s.fns[id]
	delete(s.fns, id)
	delete(s.at, id)
	s.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type gameEntry struct {
	sim Simulator
	cfg Config
}

type fakeGames map[string]gameEntry

func (g fakeGames) Lookup(kind string) (Simulator, Config, bool) {
	e, ok := g[kind]
	return e.sim, e.cfg, ok
}

// fixedOutcome always picks winner and pays it odds.
func fixedOutcome(winner int, odds Odds) Simulator {
	return SimulatorFunc(func(_ context.Context, _ []Stake, _ Random) (Outcome, error) {
		return Outcome{Selection: winner, Multipliers: map[int]Odds{winner: odds}}, nil
	})
}

type stubRandom struct{}

func (stubRandom) UniformInt(min, _ int) int        { return min }
func (stubRandom) WeightedChoice(weights []int) int { return 0 }

type changeLog struct {
	mu      sync.Mutex
	changes []PhaseChange
	joins   []Stake
}

func (c *changeLog) OnPhaseChange(_ context.Context, change PhaseChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, change)
}

func (c *changeLog) OnParticipantJoined(_ context.Context, _ SessionView, stake Stake) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, stake)
}

func (c *changeLog) phases() []Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Phase, 0, len(c.changes))
	for _, ch := range c.changes {
		out = append(out, ch.Next)
	}
	return out
}

func (c *changeLog) last() PhaseChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes[len(c.changes)-1]
}

const (
	kindRace = "race"
	alice    = int64(101)
	bob      = int64(102)
	carol    = int64(103)
	dave     = int64(104)
)

var raceOdds = MustParseOdds("3.5")

type harness struct {
	m      *Manager
	store  *Store
	sched  *manualScheduler
	ledger *memLedger
	clock  *fakeClock
	log    *changeLog
}

func newHarness(t interface{ Helper() }, sim Simulator) *harness {
	t.Helper()
	if sim == nil {
		sim = fixedOutcome(1, raceOdds)
	}
	h := &harness{
		store:  NewStore(),
		sched:  newManualScheduler(),
		ledger: newMemLedger(10_000, alice, bob, carol, dave),
		clock:  newFakeClock(),
		log:    &changeLog{},
	}
	games := fakeGames{kindRace: {sim: sim, cfg: Config{
		MinParticipants: 2,
		Capacity:        5,
		FormingWindow:   60 * time.Second,
		Selections:      3,
	}}}
	h.m = NewManager(games, h.ledger, stubRandom{}, Options{
		Store:     h.store,
		Scheduler: h.sched,
		Now:       h.clock.Now,
		Retry:     RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	})
	h.m.OnPhaseChange(h.log)
	return h
}
