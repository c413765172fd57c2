package domain

// PendingTx identifies a transaction that was submitted to the ledger but
// whose inclusion is not yet known.
type PendingTx struct {
	Hash string
}

// Event is a typed event emitted by a confirmed transaction.
type Event struct {
	Name       string
	CampaignID uint64
}

// Receipt is the confirmation artifact returned once a submitted transaction
// is durably included in the ledger.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Reverted    bool
	Reason      string
	Events      []Event
}

// EventCampaignCreated is emitted by the ledger for every accepted creation
// and carries the assigned campaign identifier.
const EventCampaignCreated = "CampaignCreated"
