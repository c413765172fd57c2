package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundsync/internal/domain"
)

func newTestService(t *testing.T, ledger LedgerClient, store CacheStore, queue SyncQueue, observer *fakeObserver) *Service {
	t.Helper()
	var reconcileLedger LedgerReader
	if ledger != nil {
		reconcileLedger = ledger
	}
	var reconcileObserver ReconcileObserver
	if observer != nil {
		reconcileObserver = observer
	}
	reconciler, err := NewReconciler(reconcileLedger, store, reconcileObserver, nil)
	if err != nil {
		t.Fatal(err)
	}
	var serviceObserver ServiceObserver
	if observer != nil {
		serviceObserver = observer
	}
	service, err := NewService(ledger, reconciler, store, queue, serviceObserver, ServiceConfig{
		ConfirmTimeout: time.Second,
		SyncAttempts:   2,
		SyncBackoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return service
}

// The full write path: create resolves the assigned identifier, the cache
// record starts at zero, and a confirmed donation reconciles to the canonical
// ledger amount.
func TestCreateDonateSyncRoundTrip(t *testing.T) {
	ledger := newFakeLedger(true)
	store := newFakeStore()
	observer := newFakeObserver()
	service := newTestService(t, ledger, store, nil, observer)
	ctx := context.Background()

	created, err := service.CreateCampaign(ctx, CreateRequest{
		Title:        "Well for Kianda",
		Description:  "clean water",
		Goal:         100000,
		DurationDays: 30,
		OwnerRef:     "user-7",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CampaignID != 1 {
		t.Fatalf("campaign id = %d, want 1", created.CampaignID)
	}
	if created.Provisional {
		t.Fatal("event-resolved creation must not be provisional")
	}
	if created.TxHash == "" {
		t.Fatal("missing tx hash")
	}

	raised, ok := store.raised(1)
	if !ok {
		t.Fatal("cache record not written")
	}
	if raised != 0 {
		t.Fatalf("initial raised = %d, want 0", raised)
	}

	if _, err := service.Donate(ctx, 1, 100); err != nil {
		t.Fatalf("donate: %v", err)
	}
	amount, err := service.Sync(ctx, 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if amount != 100 {
		t.Fatalf("synced amount = %d, want 100", amount)
	}

	campaign, err := service.GetCampaign(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if campaign.AmountCollected != 100 {
		t.Fatalf("ledger amount = %d, want 100", campaign.AmountCollected)
	}
	if observer.creates != 1 || observer.donations != 1 {
		t.Fatalf("observer creates=%d donations=%d, want 1 and 1", observer.creates, observer.donations)
	}
}

func TestCreateFallsBackToCountResolution(t *testing.T) {
	ledger := newFakeLedger(false)
	store := newFakeStore()
	service := newTestService(t, ledger, store, nil, nil)

	created, err := service.CreateCampaign(context.Background(), CreateRequest{
		Title: "t", Description: "d", Goal: 10, DurationDays: 1, OwnerRef: "user-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CampaignID != 1 || !created.Provisional {
		t.Fatalf("got %+v, want provisional id 1", created)
	}
}

func TestCreateUnresolvedQueuesDeferredSync(t *testing.T) {
	ledger := newFakeLedger(false)
	ledger.countErr = errors.New("connection refused")
	store := newFakeStore()
	queue := &fakeQueue{}
	observer := newFakeObserver()
	service := newTestService(t, ledger, store, queue, observer)

	created, err := service.CreateCampaign(context.Background(), CreateRequest{
		Title: "t", Description: "d", Goal: 10, DurationDays: 1, OwnerRef: "user-1",
	})
	if !errors.Is(err, domain.ErrIdentifierUnresolved) {
		t.Fatalf("err = %v, want ErrIdentifierUnresolved", err)
	}
	if created.TxHash == "" {
		t.Fatal("tx hash must be surfaced even when resolution fails")
	}
	if len(queue.pendingSync) != 1 {
		t.Fatalf("pending sync messages = %d, want 1", len(queue.pendingSync))
	}
	if queue.pendingSync[0].txHash != created.TxHash || queue.pendingSync[0].ownerRef != "user-1" {
		t.Fatalf("unexpected queued message %+v", queue.pendingSync[0])
	}
	if observer.deferred != 1 {
		t.Fatalf("deferred counter = %d, want 1", observer.deferred)
	}
	if len(store.records) != 0 {
		t.Fatal("no cache record may be written with a placeholder id")
	}
}

func TestProcessPendingSyncCompletesDeferredCreation(t *testing.T) {
	ledger := newFakeLedger(false)
	ledger.countErr = errors.New("connection refused")
	store := newFakeStore()
	queue := &fakeQueue{}
	service := newTestService(t, ledger, store, queue, nil)
	ctx := context.Background()

	created, err := service.CreateCampaign(ctx, CreateRequest{
		Title: "deferred", Description: "d", Goal: 10, DurationDays: 1, OwnerRef: "user-2",
	})
	if !errors.Is(err, domain.ErrIdentifierUnresolved) {
		t.Fatalf("err = %v, want ErrIdentifierUnresolved", err)
	}

	// Ledger recovers; the worker replays the queued creation.
	ledger.mu.Lock()
	ledger.countErr = nil
	ledger.mu.Unlock()

	if err := service.ProcessPendingSync(ctx, created.TxHash, "user-2"); err != nil {
		t.Fatalf("process pending sync: %v", err)
	}
	record, ok, err := store.GetCampaignRecord(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("record missing, ok=%v err=%v", ok, err)
	}
	if record.Title != "deferred" || record.OwnerRef != "user-2" || record.TxHash != created.TxHash {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestProcessPendingSyncMissingReceipt(t *testing.T) {
	ledger := newFakeLedger(true)
	service := newTestService(t, ledger, newFakeStore(), nil, nil)

	err := service.ProcessPendingSync(context.Background(), "0xmissing", "user-1")
	if !errors.Is(err, domain.ErrIdentifierUnresolved) {
		t.Fatalf("err = %v, want ErrIdentifierUnresolved for requeue", err)
	}
}

func TestProcessPendingSyncDropsRevertedCreation(t *testing.T) {
	ledger := newFakeLedger(true)
	ledger.receipts["0xdead"] = domain.Receipt{TxHash: "0xdead", Reverted: true, Reason: "deadline in past"}
	store := newFakeStore()
	service := newTestService(t, ledger, store, nil, nil)

	if err := service.ProcessPendingSync(context.Background(), "0xdead", "user-1"); err != nil {
		t.Fatalf("reverted creation must be dropped without error, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatal("reverted creation must not be indexed")
	}
}

func TestDonateRevertedSurfacesError(t *testing.T) {
	ledger := newFakeLedger(true)
	service := newTestService(t, ledger, newFakeStore(), nil, nil)

	_, err := service.Donate(context.Background(), 99, 10)
	if !errors.Is(err, domain.ErrReverted) {
		t.Fatalf("err = %v, want ErrReverted", err)
	}
}

func TestDonateRejectsZeroID(t *testing.T) {
	service := newTestService(t, newFakeLedger(true), newFakeStore(), nil, nil)
	_, err := service.Donate(context.Background(), 0, 10)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUnconfiguredServiceBehavior(t *testing.T) {
	store := newFakeStore()
	service := newTestService(t, nil, store, nil, nil)
	ctx := context.Background()

	if service.Configured() {
		t.Fatal("service must report unconfigured without a ledger client")
	}
	if campaigns := service.ListCampaigns(ctx); campaigns == nil || len(campaigns) != 0 {
		t.Fatalf("list = %v, want empty non-nil slice", campaigns)
	}
	if _, err := service.CreateCampaign(ctx, CreateRequest{Title: "t", Description: "d", Goal: 1, DurationDays: 1}); !errors.Is(err, domain.ErrLedgerUnconfigured) {
		t.Fatalf("create err = %v, want ErrLedgerUnconfigured", err)
	}
	if _, err := service.Donate(ctx, 1, 10); !errors.Is(err, domain.ErrLedgerUnconfigured) {
		t.Fatalf("donate err = %v, want ErrLedgerUnconfigured", err)
	}
	if _, err := service.Sync(ctx, 1); !errors.Is(err, domain.ErrLedgerUnconfigured) {
		t.Fatalf("sync err = %v, want ErrLedgerUnconfigured", err)
	}
	if _, err := service.GetCampaign(ctx, 1); !errors.Is(err, domain.ErrLedgerUnconfigured) {
		t.Fatalf("get err = %v, want ErrLedgerUnconfigured", err)
	}
}

func TestListCampaignsDegradesToEmptyOnLedgerFailure(t *testing.T) {
	ledger := newFakeLedger(true)
	seedCampaigns(t, ledger, 2)
	service := newTestService(t, ledger, newFakeStore(), nil, nil)
	ctx := context.Background()

	if campaigns := service.ListCampaigns(ctx); len(campaigns) != 2 {
		t.Fatalf("len = %d, want 2", len(campaigns))
	}

	ledger.mu.Lock()
	ledger.countErr = errors.New("connection refused")
	ledger.mu.Unlock()

	campaigns := service.ListCampaigns(ctx)
	if campaigns == nil || len(campaigns) != 0 {
		t.Fatalf("list = %v, want empty non-nil slice", campaigns)
	}
}

func TestSyncSwallowsCacheFailure(t *testing.T) {
	ledger := newFakeLedger(true)
	seedCampaigns(t, ledger, 1)
	ctx := context.Background()
	if _, err := ledger.SubmitFund(ctx, 1, 77); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	store.setErr = errors.New("connection reset")
	observer := newFakeObserver()
	service := newTestService(t, ledger, store, nil, observer)

	amount, err := service.Sync(ctx, 1)
	if err != nil {
		t.Fatalf("sync must not fail on cache errors, got %v", err)
	}
	if amount != 77 {
		t.Fatalf("amount = %d, want 77", amount)
	}
	if observer.cacheFailures["reconcile_amount"] != 1 {
		t.Fatalf("cache failure count = %d, want 1", observer.cacheFailures["reconcile_amount"])
	}
}

func TestSoftDeleteHidesFromOwnerListing(t *testing.T) {
	ledger := newFakeLedger(true)
	store := newFakeStore()
	service := newTestService(t, ledger, store, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := service.CreateCampaign(ctx, CreateRequest{
			Title: "t", Description: "d", Goal: 10, DurationDays: 1, OwnerRef: "user-9",
		}); err != nil {
			t.Fatal(err)
		}
	}
	records, err := service.ListByOwner(ctx, "user-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("owner records = %d, want 2", len(records))
	}

	if err := service.SoftDelete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	records, err = service.ListByOwner(ctx, "user-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].CampaignID != 2 {
		t.Fatalf("owner records after delete = %+v, want only campaign 2", records)
	}
}
