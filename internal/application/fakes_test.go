package application

import (
	"context"
	"fmt"
	"sync"

	"fundsync/internal/domain"
)

// fakeLedger is an in-memory ledger: ids are 1..len(campaigns), receipts are
// kept per tx hash, and funding mutates amounts the way confirmed funding
// transactions would.
type fakeLedger struct {
	mu        sync.Mutex
	campaigns []domain.Campaign
	receipts  map[string]domain.Receipt
	nextTx    int

	emitEvents bool
	countErr   error
	fetchErr   map[uint64]error
}

func newFakeLedger(emitEvents bool) *fakeLedger {
	return &fakeLedger{
		receipts:   make(map[string]domain.Receipt),
		fetchErr:   make(map[uint64]error),
		emitEvents: emitEvents,
	}
}

func (f *fakeLedger) CampaignCount(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return uint64(len(f.campaigns)), nil
}

func (f *fakeLedger) GetCampaign(ctx context.Context, id uint64) (domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fetchErr[id]; ok {
		return domain.Campaign{}, err
	}
	if id == 0 || id > uint64(len(f.campaigns)) {
		return domain.Campaign{}, fmt.Errorf("campaign %d: %w", id, domain.ErrNotFound)
	}
	return f.campaigns[id-1], nil
}

func (f *fakeLedger) SubmitCreate(ctx context.Context, title, description string, goal, durationDays uint64) (domain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uint64(len(f.campaigns)) + 1
	f.campaigns = append(f.campaigns, domain.Campaign{
		ID:          id,
		Creator:     "0xcreator",
		Title:       title,
		Description: description,
		Goal:        goal,
		Deadline:    durationDays * 86400,
	})

	f.nextTx++
	hash := fmt.Sprintf("0xtx%04d", f.nextTx)
	receipt := domain.Receipt{TxHash: hash, BlockNumber: uint64(f.nextTx)}
	if f.emitEvents {
		receipt.Events = []domain.Event{{Name: domain.EventCampaignCreated, CampaignID: id}}
	}
	f.receipts[hash] = receipt
	return domain.PendingTx{Hash: hash}, nil
}

func (f *fakeLedger) SubmitFund(ctx context.Context, id, amount uint64) (domain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 0 || id > uint64(len(f.campaigns)) {
		return domain.PendingTx{}, fmt.Errorf("%w: no campaign %d", domain.ErrReverted, id)
	}
	f.campaigns[id-1].AmountCollected += amount

	f.nextTx++
	hash := fmt.Sprintf("0xtx%04d", f.nextTx)
	f.receipts[hash] = domain.Receipt{TxHash: hash, BlockNumber: uint64(f.nextTx)}
	return domain.PendingTx{Hash: hash}, nil
}

func (f *fakeLedger) AwaitConfirmation(ctx context.Context, tx domain.PendingTx) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[tx.Hash]
	if !ok {
		return domain.Receipt{}, fmt.Errorf("tx %s: %w", tx.Hash, domain.ErrConfirmationTimeout)
	}
	if receipt.Reverted {
		return receipt, fmt.Errorf("tx %s: %w: %s", tx.Hash, domain.ErrReverted, receipt.Reason)
	}
	return receipt, nil
}

func (f *fakeLedger) TxReceipt(ctx context.Context, hash string) (domain.Receipt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[hash]
	return receipt, ok, nil
}

// stripEvents makes future resolutions fall back to the counter path.
func (f *fakeLedger) stripEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitEvents = false
	for hash, receipt := range f.receipts {
		receipt.Events = nil
		f.receipts[hash] = receipt
	}
}

type fakeStore struct {
	mu      sync.Mutex
	records map[uint64]domain.CampaignRecord

	upsertErr error
	setErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uint64]domain.CampaignRecord)}
}

func (f *fakeStore) UpsertCampaign(ctx context.Context, record domain.CampaignRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.records[record.CampaignID]; ok {
		record.RaisedAmount = existing.RaisedAmount
	}
	f.records[record.CampaignID] = record
	return nil
}

func (f *fakeStore) SetRaisedAmount(ctx context.Context, campaignID uint64, amount uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	record, ok := f.records[campaignID]
	if !ok {
		return nil
	}
	record.RaisedAmount = amount
	f.records[campaignID] = record
	return nil
}

func (f *fakeStore) GetCampaignRecord(ctx context.Context, campaignID uint64) (domain.CampaignRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[campaignID]
	return record, ok, nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, ownerRef string) ([]domain.CampaignRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []domain.CampaignRecord
	for _, record := range f.records {
		if record.OwnerRef == ownerRef && !record.Deleted {
			records = append(records, record)
		}
	}
	return records, nil
}

func (f *fakeStore) SetDeleted(ctx context.Context, campaignID uint64, deleted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[campaignID]
	if !ok {
		return nil
	}
	record.Deleted = deleted
	f.records[campaignID] = record
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) raised(campaignID uint64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[campaignID]
	return record.RaisedAmount, ok
}

type fakeObserver struct {
	mu            sync.Mutex
	reconciles    int
	cacheFailures map[string]int
	creates       int
	donations     int
	deferred      int
	queueErrors   int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{cacheFailures: make(map[string]int)}
}

func (f *fakeObserver) OnReconcile(campaignID uint64, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciles++
}

func (f *fakeObserver) OnCacheFailure(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheFailures[op]++
}

func (f *fakeObserver) OnCampaignCreated(campaignID uint64, provisional bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
}

func (f *fakeObserver) OnDonation(campaignID uint64, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.donations++
}

func (f *fakeObserver) OnDeferredQueued() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deferred++
}

func (f *fakeObserver) OnQueueError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueErrors++
}

type queuedSync struct {
	txHash     string
	ownerRef   string
	campaignID uint64
	attempt    int
}

type fakeQueue struct {
	mu          sync.Mutex
	pendingSync []queuedSync
	reconciles  []queuedSync
}

func (f *fakeQueue) PublishPendingSync(ctx context.Context, txHash, ownerRef string, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingSync = append(f.pendingSync, queuedSync{txHash: txHash, ownerRef: ownerRef, attempt: attempt})
	return nil
}

func (f *fakeQueue) PublishReconcile(ctx context.Context, campaignID uint64, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciles = append(f.reconciles, queuedSync{campaignID: campaignID, attempt: attempt})
	return nil
}
