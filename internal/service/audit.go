package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/lobby"
	"telegram-casino-bot/internal/model"
)

// settlementStore persists finished sessions.
type settlementStore interface {
	Save(ctx context.Context, s *model.LobbySettlement) error
	Get(ctx context.Context, sessionID string) (*model.LobbySettlement, error)
	ListPartial(ctx context.Context, limit int) ([]string, error)
	MarkPaid(ctx context.Context, sessionID string, position int) error
}

// AuditService records every terminal session and re-drives unpaid entries.
type AuditService struct {
	store  settlementStore
	ledger lobby.Ledger
}

// NewAuditService creates an AuditService. ledger is used for reconciliation.
func NewAuditService(store settlementStore, ledger lobby.Ledger) *AuditService {
	return &AuditService{store: store, ledger: ledger}
}

// OnPhaseChange implements lobby.PhaseListener.
func (a *AuditService) OnPhaseChange(ctx context.Context, change lobby.PhaseChange) {
	if !change.Next.IsTerminal() {
		return
	}
	rec, err := SettlementRecord(change)
	if err != nil {
		log.Error().Err(err).Str("session_id", change.SessionID).Msg("Failed to build settlement record")
		return
	}
	if err := a.store.Save(ctx, rec); err != nil {
		log.Error().Err(err).Str("session_id", change.SessionID).Msg("Failed to persist settlement")
		return
	}
	log.Info().
		Str("session_id", rec.SessionID).
		Str("phase", rec.Phase).
		Int64("total_disbursed", rec.TotalDisbursed).
		Bool("partial_failure", rec.PartialFailure).
		Msg("Settlement recorded")
}

// SettlementRecord converts a terminal phase change into its audit record.
func SettlementRecord(change lobby.PhaseChange) (*model.LobbySettlement, error) {
	v := change.View
	rec := &model.LobbySettlement{
		SessionID:      v.ID,
		ScopeKey:       v.ScopeKey,
		Kind:           v.Kind,
		OwnerID:        v.OwnerID,
		Phase:          string(change.Next),
		Reason:         change.Reason,
		TotalDisbursed: v.TotalDisbursed,
		PartialFailure: v.PartialFailure,
		FinishedAt:     change.At,
	}
	for _, st := range v.Participants {
		rec.TotalStaked += st.Amount
	}
	if v.Outcome != nil {
		raw, err := json.Marshal(v.Outcome)
		if err != nil {
			return nil, fmt.Errorf("failed to encode outcome: %w", err)
		}
		rec.Outcome = raw
	}

	unpaid := make(map[int]bool, len(v.Unpaid))
	for _, u := range v.Unpaid {
		unpaid[u.Index] = true
	}
	for i, p := range v.Payouts {
		rec.Payouts = append(rec.Payouts, model.LobbyPayout{
			SessionID:     v.ID,
			Position:      i,
			ParticipantID: p.ParticipantID,
			Selection:     p.Selection,
			Stake:         p.Stake,
			Amount:        p.Amount,
			Paid:          !unpaid[i],
		})
	}
	return rec, nil
}

// Reconcile credits the unpaid entries of one session. Credits reuse the
// original ledger refs, so an entry that did land earlier is not paid twice.
// It returns how many entries were paid.
func (a *AuditService) Reconcile(ctx context.Context, sessionID string) (int, error) {
	rec, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !rec.PartialFailure {
		return 0, nil
	}

	kind := lobby.EntryPayout
	if lobby.Phase(rec.Phase) == lobby.PhaseCancelled {
		kind = lobby.EntryRefund
	}
	ref := lobby.Ref{SessionID: rec.SessionID, Kind: kind, Game: rec.Kind}

	paid := 0
	for _, p := range rec.Payouts {
		if p.Paid || p.Amount <= 0 {
			continue
		}
		if err := a.ledger.Credit(ctx, p.ParticipantID, p.Amount, ref); err != nil {
			return paid, fmt.Errorf("credit participant %d: %w", p.ParticipantID, err)
		}
		if err := a.store.MarkPaid(ctx, rec.SessionID, p.Position); err != nil {
			return paid, err
		}
		paid++
		log.Info().
			Str("session_id", rec.SessionID).
			Int64("participant_id", p.ParticipantID).
			Int64("amount", p.Amount).
			Msg("Unpaid entry reconciled")
	}
	return paid, nil
}

// ReconcileAll re-drives up to limit sessions with unpaid entries.
// It returns the number of entries paid; failures are joined.
func (a *AuditService) ReconcileAll(ctx context.Context, limit int) (int, error) {
	ids, err := a.store.ListPartial(ctx, limit)
	if err != nil {
		return 0, err
	}
	var (
		total int
		errs  []error
	)
	for _, id := range ids {
		n, err := a.Reconcile(ctx, id)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return total, errors.Join(errs...)
}
