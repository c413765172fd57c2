package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fundsync/internal/domain"
)

// CacheStore is the persistence boundary for the secondary campaign index.
// Implementations must make UpsertCampaign and SetRaisedAmount safe to call
// repeatedly and concurrently for the same identifier; the store never
// accumulates, it only replaces.
type CacheStore interface {
	UpsertCampaign(ctx context.Context, record domain.CampaignRecord) error
	SetRaisedAmount(ctx context.Context, campaignID uint64, amount uint64) error
	GetCampaignRecord(ctx context.Context, campaignID uint64) (domain.CampaignRecord, bool, error)
	ListByOwner(ctx context.Context, ownerRef string) ([]domain.CampaignRecord, error)
	SetDeleted(ctx context.Context, campaignID uint64, deleted bool) error
	Ping(ctx context.Context) error
}

// ReconcileObserver receives reconciliation outcomes so that cache drift is
// measurable instead of silent.
type ReconcileObserver interface {
	OnReconcile(campaignID uint64, amount uint64)
	OnCacheFailure(op string)
}

// AuditSink records every reconciliation attempt for offline inspection.
// Optional; failures are logged and dropped.
type AuditSink interface {
	RecordReconciliation(ctx context.Context, entry domain.ReconciliationEntry) error
}

// Reconciler overwrites cache-store state with ledger-derived truth. Both
// operations wrap store failures in domain.ErrCacheUnavailable, which callers
// must treat as non-fatal: the ledger write already succeeded and is final.
type Reconciler struct {
	ledger   LedgerReader
	store    CacheStore
	observer ReconcileObserver
	audit    AuditSink
}

// NewReconciler accepts a nil ledger: the process is then unconfigured and
// ReconcileAmount reports domain.ErrLedgerUnconfigured.
func NewReconciler(ledger LedgerReader, store CacheStore, observer ReconcileObserver, audit AuditSink) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	return &Reconciler{ledger: ledger, store: store, observer: observer, audit: audit}, nil
}

// RecordCreation upserts the cache record for a freshly created campaign.
// RaisedAmount starts at zero without a ledger read, since a campaign cannot
// have funding before its creation confirms.
func (r *Reconciler) RecordCreation(ctx context.Context, record domain.CampaignRecord) error {
	if record.CampaignID == 0 {
		return errors.New("campaign id is required")
	}
	record.RaisedAmount = 0
	record.Deleted = false
	if err := r.store.UpsertCampaign(ctx, record); err != nil {
		if r.observer != nil {
			r.observer.OnCacheFailure("record_creation")
		}
		return fmt.Errorf("campaign %d: %w: %v", record.CampaignID, domain.ErrCacheUnavailable, err)
	}
	return nil
}

// ReconcileAmount re-reads the canonical collected amount from the ledger and
// overwrites the cached value with it. Idempotent: repeated calls with no
// intervening ledger change store the same value. Concurrent calls are safe
// because each one independently re-derives the value from the same
// authoritative source; last writer wins.
func (r *Reconciler) ReconcileAmount(ctx context.Context, campaignID uint64) (uint64, error) {
	if r.ledger == nil {
		return 0, domain.ErrLedgerUnconfigured
	}
	campaign, err := r.ledger.GetCampaign(ctx, campaignID)
	if err != nil {
		r.recordAudit(ctx, campaignID, 0, "ledger_read_failed")
		return 0, err
	}

	amount := campaign.AmountCollected
	if err := r.store.SetRaisedAmount(ctx, campaignID, amount); err != nil {
		if r.observer != nil {
			r.observer.OnCacheFailure("reconcile_amount")
		}
		r.recordAudit(ctx, campaignID, amount, "cache_write_failed")
		return amount, fmt.Errorf("campaign %d: %w: %v", campaignID, domain.ErrCacheUnavailable, err)
	}

	if r.observer != nil {
		r.observer.OnReconcile(campaignID, amount)
	}
	r.recordAudit(ctx, campaignID, amount, "ok")
	return amount, nil
}

func (r *Reconciler) recordAudit(ctx context.Context, campaignID, amount uint64, outcome string) {
	if r.audit == nil {
		return
	}
	entry := domain.ReconciliationEntry{
		CampaignID: campaignID,
		Amount:     amount,
		Outcome:    outcome,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.audit.RecordReconciliation(ctx, entry); err != nil {
		slog.Warn("reconciliation audit write failed", "campaign_id", campaignID, "err", err)
	}
}
