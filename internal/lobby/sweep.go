package lobby

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SweepStale reaps sessions older than maxAge regardless of their own
// deadlines. Forming and locked sessions are cancelled with refunds,
// resolving sessions resume settlement, terminal leftovers are evicted.
// Returns the number of sessions removed.
func (m *Manager) SweepStale(ctx context.Context, maxAge time.Duration) int {
	removed := 0
	for _, sess := range m.store.Stale(maxAge, m.now()) {
		if err := m.locks.LockContext(ctx, sess.ID); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("Sweep could not lock session")
			continue
		}

		b := &batch{}
		if m.store.owns(sess) {
			var err error
			switch sess.Phase() {
			case PhaseForming, PhaseLocked:
				err = m.cancel(context.WithoutCancel(ctx), sess, ReasonSweep, b)
			case PhaseResolving:
				err = m.settle(context.WithoutCancel(ctx), sess, b)
			default:
				m.scheduler.Cancel(sess.ID)
				m.store.removeSession(sess)
			}
			if err != nil {
				log.Error().Err(err).Str("session_id", sess.ID).Msg("Sweep failed to close session")
			}
			if !m.store.owns(sess) {
				removed++
			}
		}
		m.locks.Unlock(sess.ID)
		m.publish(ctx, b)
	}

	if removed > 0 {
		log.Warn().Int("removed", removed).Dur("max_age", maxAge).Msg("Swept stale sessions")
	}
	return removed
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepStale(ctx, maxAge)
		}
	}
}
