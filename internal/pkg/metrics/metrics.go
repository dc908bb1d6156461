// Package metrics exposes lobby activity to Prometheus.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"telegram-casino-bot/internal/lobby"
)

// Recorder turns lobby notifications into collectors.
type Recorder struct {
	transitions     *prometheus.CounterVec
	active          *prometheus.GaugeVec
	duration        *prometheus.HistogramVec
	joins           *prometheus.CounterVec
	staked          *prometheus.CounterVec
	disbursed       *prometheus.CounterVec
	partialFailures *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// Default returns the recorder registered on the global registry.
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewRecorder(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// NewRecorder registers the lobby collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casino",
			Subsystem: "lobby",
			Name:      "transitions_total",
			Help:      "Phase transitions by game, target phase and reason.",
		}, []string{"kind", "to", "reason"}),
		active: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "casino",
			Subsystem: "lobby",
			Name:      "active_sessions",
			Help:      "Sessions not yet settled or cancelled.",
		}, []string{"kind"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casino",
			Subsystem: "lobby",
			Name:      "session_duration_seconds",
			Help:      "Time from creation to a terminal phase.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"kind", "phase"}),
		joins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casino",
			Subsystem: "lobby",
			Name:      "joins_total",
			Help:      "Committed stakes.",
		}, []string{"kind"}),
		staked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casino",
			Subsystem: "lobby",
			Name:      "staked_coins_total",
			Help:      "Coins debited as stakes.",
		}, []string{"kind"}),
		disbursed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casino",
			Subsystem: "lobby",
			Name:      "disbursed_coins_total",
			Help:      "Coins credited by settlements and refunds.",
		}, []string{"kind", "phase"}),
		partialFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casino",
			Subsystem: "lobby",
			Name:      "partial_failures_total",
			Help:      "Sessions finished with unpaid entries.",
		}, []string{"kind"}),
	}
}

// OnPhaseChange implements lobby.PhaseListener.
func (r *Recorder) OnPhaseChange(_ context.Context, change lobby.PhaseChange) {
	kind := change.View.Kind
	r.transitions.WithLabelValues(kind, string(change.Next), change.Reason).Inc()

	if change.Previous == "" {
		r.active.WithLabelValues(kind).Inc()
		return
	}
	if !change.Next.IsTerminal() {
		return
	}

	r.active.WithLabelValues(kind).Dec()
	phase := string(change.Next)
	r.duration.WithLabelValues(kind, phase).Observe(change.At.Sub(change.View.CreatedAt).Seconds())
	r.disbursed.WithLabelValues(kind, phase).Add(float64(change.View.TotalDisbursed))
	if change.View.PartialFailure {
		r.partialFailures.WithLabelValues(kind).Inc()
	}
}

// OnParticipantJoined implements lobby.ParticipantListener.
func (r *Recorder) OnParticipantJoined(_ context.Context, view lobby.SessionView, stake lobby.Stake) {
	r.joins.WithLabelValues(view.Kind).Inc()
	r.staked.WithLabelValues(view.Kind).Add(float64(stake.Amount))
}
