package application

import (
	"context"
	"errors"
	"log/slog"

	"fundsync/internal/domain"
)

type LedgerReader interface {
	CampaignCount(ctx context.Context) (uint64, error)
	GetCampaign(ctx context.Context, id uint64) (domain.Campaign, error)
}

// Aggregator enumerates ledger campaigns into a best-effort ordered list.
// There is no caching here: every call re-reads the ledger, because the
// ledger is the sole source of truth for existence and amounts.
type Aggregator struct {
	ledger LedgerReader
}

func NewAggregator(ledger LedgerReader) (*Aggregator, error) {
	if ledger == nil {
		return nil, errors.New("ledger reader is required")
	}
	return &Aggregator{ledger: ledger}, nil
}

// ListAll reads the count once and fetches every identifier in 1..count in
// ascending order. A failed fetch skips that identifier without aborting the
// enumeration, so the result can be shorter than count. No atomic-snapshot
// guarantee: the ledger may advance mid-enumeration.
func (a *Aggregator) ListAll(ctx context.Context) ([]domain.Campaign, error) {
	count, err := a.ledger.CampaignCount(ctx)
	if err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, count)
	for id := uint64(1); id <= count; id++ {
		campaign, err := a.ledger.GetCampaign(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				slog.Debug("campaign gap during enumeration", "id", id)
			} else {
				slog.Warn("campaign fetch skipped", "id", id, "err", err)
			}
			continue
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, nil
}
