package application

import (
	"context"
	"fmt"

	"fundsync/internal/domain"
)

type CampaignCounter interface {
	CampaignCount(ctx context.Context) (uint64, error)
}

// Resolution is the outcome of identifier resolution for a confirmed
// creation. Provisional marks a value derived from the count fallback, which
// can be off by one or more if another creation confirmed concurrently.
type Resolution struct {
	CampaignID  uint64
	Provisional bool
}

// Resolver determines the canonical campaign identifier the ledger assigned
// to a just-confirmed creation transaction.
type Resolver struct {
	counter CampaignCounter
}

func NewResolver(counter CampaignCounter) (*Resolver, error) {
	if counter == nil {
		return nil, fmt.Errorf("campaign counter is required")
	}
	return &Resolver{counter: counter}, nil
}

// Resolve scans the receipt for a creation event first; that value reflects
// exactly what the ledger recorded for this transaction and is authoritative.
// Without such an event it falls back to reading the post-confirmation count,
// which equals the newest identifier since ids are assigned 1..count in
// creation order. If the fallback read also fails, resolution fails with
// domain.ErrIdentifierUnresolved; no identifier is ever invented.
func (r *Resolver) Resolve(ctx context.Context, receipt domain.Receipt) (Resolution, error) {
	for _, event := range receipt.Events {
		if event.Name == domain.EventCampaignCreated && event.CampaignID > 0 {
			return Resolution{CampaignID: event.CampaignID}, nil
		}
	}

	count, err := r.counter.CampaignCount(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("tx %s: %w: fallback count read: %v", receipt.TxHash, domain.ErrIdentifierUnresolved, err)
	}
	if count == 0 {
		return Resolution{}, fmt.Errorf("tx %s: %w: ledger reports zero campaigns", receipt.TxHash, domain.ErrIdentifierUnresolved)
	}
	return Resolution{CampaignID: count, Provisional: true}, nil
}
