package domain

import "time"

// ReconciliationEntry is one audited reconciliation attempt.
type ReconciliationEntry struct {
	CampaignID uint64
	TxHash     string
	Amount     uint64
	Outcome    string
	OccurredAt time.Time
}
