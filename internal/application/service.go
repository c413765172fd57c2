package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fundsync/internal/domain"
)

// LedgerClient is the full ledger surface the service depends on.
type LedgerClient interface {
	LedgerReader
	SubmitCreate(ctx context.Context, title, description string, goal, durationDays uint64) (domain.PendingTx, error)
	SubmitFund(ctx context.Context, id, amount uint64) (domain.PendingTx, error)
	AwaitConfirmation(ctx context.Context, tx domain.PendingTx) (domain.Receipt, error)
	TxReceipt(ctx context.Context, hash string) (domain.Receipt, bool, error)
}

// SyncQueue carries deferred reconciliation work. PublishPendingSync queues a
// confirmed creation whose identifier is still unknown, keyed by transaction
// hash; PublishReconcile queues an amount re-read for a known identifier.
type SyncQueue interface {
	PublishPendingSync(ctx context.Context, txHash, ownerRef string, attempt int) error
	PublishReconcile(ctx context.Context, campaignID uint64, attempt int) error
}

type ServiceObserver interface {
	OnCampaignCreated(campaignID uint64, provisional bool)
	OnDonation(campaignID uint64, amount uint64)
	OnDeferredQueued()
	OnQueueError()
}

type ServiceConfig struct {
	ConfirmTimeout time.Duration
	SyncAttempts   int
	SyncBackoff    time.Duration
}

// Service ties submission, identifier resolution, aggregation and cache
// reconciliation together. The ledger client is an optional dependency: nil
// means the process runs unconfigured and every ledger-touching operation
// reports domain.ErrLedgerUnconfigured (reads degrade to empty results).
type Service struct {
	ledger     LedgerClient
	resolver   *Resolver
	aggregator *Aggregator
	reconciler *Reconciler
	store      CacheStore
	queue      SyncQueue
	observer   ServiceObserver
	cfg        ServiceConfig
}

func NewService(ledger LedgerClient, reconciler *Reconciler, store CacheStore, queue SyncQueue, observer ServiceObserver, cfg ServiceConfig) (*Service, error) {
	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 90 * time.Second
	}
	if cfg.SyncAttempts <= 0 {
		cfg.SyncAttempts = 3
	}
	if cfg.SyncBackoff <= 0 {
		cfg.SyncBackoff = 500 * time.Millisecond
	}

	s := &Service{
		ledger:     ledger,
		reconciler: reconciler,
		store:      store,
		queue:      queue,
		observer:   observer,
		cfg:        cfg,
	}
	if ledger != nil {
		resolver, err := NewResolver(ledger)
		if err != nil {
			return nil, err
		}
		aggregator, err := NewAggregator(ledger)
		if err != nil {
			return nil, err
		}
		s.resolver = resolver
		s.aggregator = aggregator
	}
	return s, nil
}

// Configured reports whether a ledger client was injected at startup.
func (s *Service) Configured() bool {
	return s.ledger != nil
}

type CreateRequest struct {
	Title        string
	Description  string
	Goal         uint64
	DurationDays uint64
	OwnerRef     string
}

type CreateResult struct {
	TxHash      string
	CampaignID  uint64
	Provisional bool
}

// CreateCampaign submits a creation, waits for confirmation, resolves the
// assigned identifier and records the cache entry. The ledger write is final
// once confirmed; any later failure degrades only the secondary index. When
// the identifier cannot be resolved, the creation is queued for deferred
// reconciliation keyed by transaction hash and the error is surfaced — a
// placeholder identifier is never written.
func (s *Service) CreateCampaign(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if s.ledger == nil {
		return CreateResult{}, domain.ErrLedgerUnconfigured
	}

	tx, err := s.ledger.SubmitCreate(ctx, req.Title, req.Description, req.Goal, req.DurationDays)
	if err != nil {
		return CreateResult{}, fmt.Errorf("submit create: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()
	receipt, err := s.ledger.AwaitConfirmation(confirmCtx, tx)
	if err != nil {
		return CreateResult{TxHash: tx.Hash}, fmt.Errorf("await confirmation: %w", err)
	}

	resolution, err := s.resolver.Resolve(ctx, receipt)
	if err != nil {
		s.queueDeferredCreation(receipt.TxHash, req.OwnerRef)
		return CreateResult{TxHash: receipt.TxHash}, err
	}

	record := domain.CampaignRecord{
		CampaignID:  resolution.CampaignID,
		Title:       req.Title,
		Description: req.Description,
		TargetGoal:  req.Goal,
		OwnerRef:    req.OwnerRef,
		TxHash:      receipt.TxHash,
	}
	if err := s.reconciler.RecordCreation(ctx, record); err != nil {
		// Secondary index only; the campaign exists on the ledger.
		slog.Warn("creation cache write degraded", "campaign_id", resolution.CampaignID, "err", err)
		s.queueReconcile(resolution.CampaignID)
	}

	if s.observer != nil {
		s.observer.OnCampaignCreated(resolution.CampaignID, resolution.Provisional)
	}
	return CreateResult{
		TxHash:      receipt.TxHash,
		CampaignID:  resolution.CampaignID,
		Provisional: resolution.Provisional,
	}, nil
}

type DonateResult struct {
	TxHash string
}

// Donate submits a funding transaction and, once confirmed, reconciles the
// cached amount in the background. Cache reconciliation never blocks or
// fails the donation: the ledger already holds the canonical amount.
func (s *Service) Donate(ctx context.Context, campaignID, amount uint64) (DonateResult, error) {
	if s.ledger == nil {
		return DonateResult{}, domain.ErrLedgerUnconfigured
	}
	if campaignID == 0 {
		return DonateResult{}, fmt.Errorf("campaign %d: %w", campaignID, domain.ErrNotFound)
	}

	tx, err := s.ledger.SubmitFund(ctx, campaignID, amount)
	if err != nil {
		return DonateResult{}, fmt.Errorf("submit fund: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()
	receipt, err := s.ledger.AwaitConfirmation(confirmCtx, tx)
	if err != nil {
		return DonateResult{TxHash: tx.Hash}, fmt.Errorf("await confirmation: %w", err)
	}

	if s.observer != nil {
		s.observer.OnDonation(campaignID, amount)
	}
	go s.reconcileAsync(campaignID)
	return DonateResult{TxHash: receipt.TxHash}, nil
}

// ListCampaigns returns the ledger-derived campaign list in ascending id
// order. An unconfigured or unreachable ledger yields an empty list, never an
// error, so read paths always render something.
func (s *Service) ListCampaigns(ctx context.Context) []domain.Campaign {
	if s.aggregator == nil {
		return []domain.Campaign{}
	}
	campaigns, err := s.aggregator.ListAll(ctx)
	if err != nil {
		slog.Warn("campaign enumeration failed", "err", err)
		return []domain.Campaign{}
	}
	return campaigns
}

// GetCampaign fetches a single campaign straight from the ledger.
func (s *Service) GetCampaign(ctx context.Context, id uint64) (domain.Campaign, error) {
	if s.ledger == nil {
		return domain.Campaign{}, domain.ErrLedgerUnconfigured
	}
	if id == 0 {
		return domain.Campaign{}, fmt.Errorf("campaign %d: %w", id, domain.ErrNotFound)
	}
	return s.ledger.GetCampaign(ctx, id)
}

// Sync re-reads the canonical amount for a campaign and overwrites the cache.
// Best effort: a cache failure is downgraded to a warning and the canonical
// amount is still returned.
func (s *Service) Sync(ctx context.Context, campaignID uint64) (uint64, error) {
	if s.ledger == nil {
		return 0, domain.ErrLedgerUnconfigured
	}
	amount, err := s.reconciler.ReconcileAmount(ctx, campaignID)
	if err != nil {
		if errors.Is(err, domain.ErrCacheUnavailable) {
			slog.Warn("sync cache write degraded", "campaign_id", campaignID, "err", err)
			return amount, nil
		}
		return 0, err
	}
	return amount, nil
}

// ListByOwner returns the cache-store records owned by ownerRef, excluding
// soft-deleted entries. Existence and amounts here are best effort.
func (s *Service) ListByOwner(ctx context.Context, ownerRef string) ([]domain.CampaignRecord, error) {
	records, err := s.store.ListByOwner(ctx, ownerRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return records, nil
}

// SoftDelete hides a cache record from ownership listings. The ledger entry
// is append-only and is never touched.
func (s *Service) SoftDelete(ctx context.Context, campaignID uint64) error {
	if err := s.store.SetDeleted(ctx, campaignID, true); err != nil {
		return fmt.Errorf("campaign %d: %w: %v", campaignID, domain.ErrCacheUnavailable, err)
	}
	return nil
}

// ProcessPendingSync is the deferred reconciliation pass: re-read the receipt
// for a creation whose identifier was unresolved, resolve it, and write the
// cache record. Returns domain.ErrIdentifierUnresolved while the receipt is
// still missing so the worker can re-queue the attempt.
func (s *Service) ProcessPendingSync(ctx context.Context, txHash, ownerRef string) error {
	if s.ledger == nil {
		return domain.ErrLedgerUnconfigured
	}

	receipt, ok, err := s.ledger.TxReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("receipt read: %w", err)
	}
	if !ok {
		return fmt.Errorf("tx %s: %w: receipt not yet available", txHash, domain.ErrIdentifierUnresolved)
	}
	if receipt.Reverted {
		// Nothing to index; the creation never happened.
		slog.Info("deferred sync dropped for reverted creation", "tx_hash", txHash)
		return nil
	}

	resolution, err := s.resolver.Resolve(ctx, receipt)
	if err != nil {
		return err
	}

	campaign, err := s.ledger.GetCampaign(ctx, resolution.CampaignID)
	if err != nil {
		return err
	}
	record := domain.CampaignRecord{
		CampaignID:  resolution.CampaignID,
		Title:       campaign.Title,
		Description: campaign.Description,
		TargetGoal:  campaign.Goal,
		OwnerRef:    ownerRef,
		TxHash:      txHash,
	}
	if err := s.reconciler.RecordCreation(ctx, record); err != nil {
		return err
	}
	_, err = s.reconciler.ReconcileAmount(ctx, resolution.CampaignID)
	return err
}

// Reconcile applies one queued amount reconciliation.
func (s *Service) Reconcile(ctx context.Context, campaignID uint64) error {
	_, err := s.reconciler.ReconcileAmount(ctx, campaignID)
	return err
}

// reconcileAsync is the fire-and-forget cache update after a confirmed
// donation: bounded retries with doubling backoff, then hand off to the
// deferred queue. Failures are counted by the reconciler's observer.
func (s *Service) reconcileAsync(campaignID uint64) {
	backoff := s.cfg.SyncBackoff
	for attempt := 1; attempt <= s.cfg.SyncAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := s.reconciler.ReconcileAmount(ctx, campaignID)
		cancel()
		if err == nil {
			return
		}
		slog.Warn("background reconciliation failed",
			"campaign_id", campaignID,
			"attempt", attempt,
			"err", err,
		)
		time.Sleep(backoff)
		backoff *= 2
	}
	s.queueReconcile(campaignID)
}

func (s *Service) queueDeferredCreation(txHash, ownerRef string) {
	if s.queue == nil {
		slog.Error("identifier unresolved and no sync queue configured", "tx_hash", txHash)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.queue.PublishPendingSync(ctx, txHash, ownerRef, 1); err != nil {
		if s.observer != nil {
			s.observer.OnQueueError()
		}
		slog.Error("deferred sync publish failed", "tx_hash", txHash, "err", err)
		return
	}
	if s.observer != nil {
		s.observer.OnDeferredQueued()
	}
}

func (s *Service) queueReconcile(campaignID uint64) {
	if s.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.queue.PublishReconcile(ctx, campaignID, 1); err != nil {
		if s.observer != nil {
			s.observer.OnQueueError()
		}
		slog.Error("reconcile publish failed", "campaign_id", campaignID, "err", err)
	}
}
