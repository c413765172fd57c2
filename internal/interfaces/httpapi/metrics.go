package httpapi

import (
	"sync"
	"time"
)

// Metrics collects service counters, including the cache-failure counter
// that makes degraded best-effort writes observable.
type Metrics struct {
	mu                     sync.RWMutex
	startTime              time.Time
	createsTotal           uint64
	provisionalResolutions uint64
	lastResolvedID         uint64
	donationsTotal         uint64
	donatedAmountTotal     uint64
	reconcilesTotal        uint64
	lastReconciledID       uint64
	lastReconciledAmount   uint64
	cacheFailures          uint64
	cacheFailuresByOp      map[string]uint64
	deferredQueued         uint64
	queueErrors            uint64
	workerMessages         uint64
	workerErrors           uint64
	workerDropped          uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:         time.Now(),
		cacheFailuresByOp: make(map[string]uint64),
	}
}

func (m *Metrics) OnCampaignCreated(campaignID uint64, provisional bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createsTotal++
	m.lastResolvedID = campaignID
	if provisional {
		m.provisionalResolutions++
	}
}

func (m *Metrics) OnDonation(campaignID uint64, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.donationsTotal++
	m.donatedAmountTotal += amount
}

func (m *Metrics) OnReconcile(campaignID uint64, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcilesTotal++
	m.lastReconciledID = campaignID
	m.lastReconciledAmount = amount
}

func (m *Metrics) OnCacheFailure(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheFailures++
	m.cacheFailuresByOp[op]++
}

func (m *Metrics) OnDeferredQueued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferredQueued++
}

func (m *Metrics) OnQueueError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueErrors++
}

func (m *Metrics) IncWorkerMessage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workerMessages++
}

func (m *Metrics) IncWorkerError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workerErrors++
}

func (m *Metrics) IncWorkerDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workerDropped++
}

type Snapshot struct {
	StartTime              time.Time
	CreatesTotal           uint64
	ProvisionalResolutions uint64
	LastResolvedID         uint64
	DonationsTotal         uint64
	DonatedAmountTotal     uint64
	ReconcilesTotal        uint64
	LastReconciledID       uint64
	LastReconciledAmount   uint64
	CacheFailures          uint64
	CacheFailuresByOp      map[string]uint64
	DeferredQueued         uint64
	QueueErrors            uint64
	WorkerMessages         uint64
	WorkerErrors           uint64
	WorkerDropped          uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byOp := make(map[string]uint64, len(m.cacheFailuresByOp))
	for op, count := range m.cacheFailuresByOp {
		byOp[op] = count
	}
	return Snapshot{
		StartTime:              m.startTime,
		CreatesTotal:           m.createsTotal,
		ProvisionalResolutions: m.provisionalResolutions,
		LastResolvedID:         m.lastResolvedID,
		DonationsTotal:         m.donationsTotal,
		DonatedAmountTotal:     m.donatedAmountTotal,
		ReconcilesTotal:        m.reconcilesTotal,
		LastReconciledID:       m.lastReconciledID,
		LastReconciledAmount:   m.lastReconciledAmount,
		CacheFailures:          m.cacheFailures,
		CacheFailuresByOp:      byOp,
		DeferredQueued:         m.deferredQueued,
		QueueErrors:            m.queueErrors,
		WorkerMessages:         m.workerMessages,
		WorkerErrors:           m.workerErrors,
		WorkerDropped:          m.workerDropped,
	}
}
