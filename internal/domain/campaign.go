package domain

// Campaign is the authoritative campaign record read from the ledger.
// Identifiers are assigned by the ledger in creation order starting at 1;
// AmountCollected only grows, via confirmed funding transactions.
type Campaign struct {
	ID              uint64
	Creator         string
	Title           string
	Description     string
	Goal            uint64
	Deadline        uint64
	AmountCollected uint64
}

// CampaignRecord is the secondary cache-store document keyed by campaign id.
// Title, description and amounts are denormalized copies and may drift from
// the ledger until the next reconciliation.
type CampaignRecord struct {
	CampaignID   uint64
	Title        string
	Description  string
	TargetGoal   uint64
	RaisedAmount uint64
	OwnerRef     string
	TxHash       string
	Deleted      bool
}
