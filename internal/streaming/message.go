package streaming

import (
	"encoding/json"
	"errors"
)

type MessageType string

const (
	// MessageTypePendingSync queues a confirmed creation whose campaign
	// identifier is still unknown, keyed by transaction hash.
	MessageTypePendingSync MessageType = "pending_sync"
	// MessageTypeReconcile queues an amount re-read for a known identifier.
	MessageTypeReconcile MessageType = "reconcile"
)

type Message struct {
	Type       MessageType `json:"type"`
	TxHash     string      `json:"tx_hash,omitempty"`
	CampaignID uint64      `json:"campaign_id,omitempty"`
	OwnerRef   string      `json:"owner_ref,omitempty"`
	Attempt    int         `json:"attempt,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	switch msg.Type {
	case MessageTypePendingSync:
		if msg.TxHash == "" {
			return nil, errors.New("tx_hash is required for pending_sync")
		}
	case MessageTypeReconcile:
		if msg.CampaignID == 0 {
			return nil, errors.New("campaign_id is required for reconcile")
		}
	default:
		return nil, errors.New("message type is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	switch msg.Type {
	case MessageTypePendingSync:
		if msg.TxHash == "" {
			return Message{}, errors.New("tx_hash is missing")
		}
	case MessageTypeReconcile:
		if msg.CampaignID == 0 {
			return Message{}, errors.New("campaign_id is missing")
		}
	default:
		return Message{}, errors.New("message type is missing")
	}
	return msg, nil
}
