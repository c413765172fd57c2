package ledgerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"fundsync/internal/domain"
)

// Ledger node error codes for campaign methods.
const (
	codeNotFound = -32001
	codeReverted = -32002
)

type Client struct {
	url          string
	httpClient   *http.Client
	idCounter    uint64
	pollInterval time.Duration
}

type Config struct {
	URL          string
	PollInterval time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("ledger rpc url is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Client{
		url:          cfg.URL,
		httpClient:   &http.Client{},
		pollInterval: cfg.PollInterval,
	}, nil
}

// CampaignCount returns the number of campaigns recorded on the ledger.
// Valid identifiers are 1..count inclusive.
func (c *Client) CampaignCount(ctx context.Context) (uint64, error) {
	var result uint64
	if err := c.call(ctx, "campaign_count", []any{}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetCampaign fetches one campaign record. An out-of-range or unknown
// identifier fails with domain.ErrNotFound so callers can tell "no such
// campaign" apart from a connection failure.
func (c *Client) GetCampaign(ctx context.Context, id uint64) (domain.Campaign, error) {
	var result *rpcCampaign
	if err := c.call(ctx, "campaign_get", []any{id}, &result); err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) && rpcErr.Code == codeNotFound {
			return domain.Campaign{}, fmt.Errorf("campaign %d: %w", id, domain.ErrNotFound)
		}
		return domain.Campaign{}, err
	}
	if result == nil {
		return domain.Campaign{}, fmt.Errorf("campaign %d: %w", id, domain.ErrNotFound)
	}
	return domain.Campaign{
		ID:              result.ID,
		Creator:         result.Creator,
		Title:           result.Title,
		Description:     result.Description,
		Goal:            result.Goal,
		Deadline:        result.Deadline,
		AmountCollected: result.AmountCollected,
	}, nil
}

// SubmitCreate submits a campaign creation and returns the pending
// transaction. Acceptance, ordering and identifier assignment are unknown
// until the transaction is confirmed.
func (c *Client) SubmitCreate(ctx context.Context, title, description string, goal, durationDays uint64) (domain.PendingTx, error) {
	params := []any{map[string]any{
		"title":         title,
		"description":   description,
		"goal":          goal,
		"duration_days": durationDays,
	}}
	var hash string
	if err := c.call(ctx, "campaign_create", params, &hash); err != nil {
		return domain.PendingTx{}, mapSubmitError(err)
	}
	return domain.PendingTx{Hash: hash}, nil
}

// SubmitFund submits a funding transaction carrying the given amount.
func (c *Client) SubmitFund(ctx context.Context, id, amount uint64) (domain.PendingTx, error) {
	params := []any{map[string]any{
		"campaign_id": id,
		"amount":      amount,
	}}
	var hash string
	if err := c.call(ctx, "campaign_fund", params, &hash); err != nil {
		return domain.PendingTx{}, mapSubmitError(err)
	}
	return domain.PendingTx{Hash: hash}, nil
}

// TxReceipt looks up the receipt for a transaction hash. The second return
// value is false while the transaction is not yet included.
func (c *Client) TxReceipt(ctx context.Context, hash string) (domain.Receipt, bool, error) {
	var result *rpcReceipt
	if err := c.call(ctx, "tx_receipt", []any{hash}, &result); err != nil {
		return domain.Receipt{}, false, err
	}
	if result == nil {
		return domain.Receipt{}, false, nil
	}
	return mapReceipt(*result), true, nil
}

// AwaitConfirmation polls the ledger until the pending transaction is durably
// included or ctx expires. A reverted inclusion is returned together with
// domain.ErrReverted. Expiry is reported as domain.ErrConfirmationTimeout:
// the transaction state is unknown, so the caller must poll ledger state
// rather than resubmit.
func (c *Client) AwaitConfirmation(ctx context.Context, tx domain.PendingTx) (domain.Receipt, error) {
	if tx.Hash == "" {
		return domain.Receipt{}, errors.New("pending tx hash is empty")
	}

	var lastErr error
	for {
		receipt, ok, err := c.TxReceipt(ctx, tx.Hash)
		if err != nil {
			lastErr = err
		} else if ok {
			if receipt.Reverted {
				reason := receipt.Reason
				if reason == "" {
					reason = "no reason given"
				}
				return receipt, fmt.Errorf("tx %s: %w: %s", tx.Hash, domain.ErrReverted, reason)
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return domain.Receipt{}, fmt.Errorf("tx %s: %w: last error: %v", tx.Hash, domain.ErrConfirmationTimeout, lastErr)
			}
			return domain.Receipt{}, fmt.Errorf("tx %s: %w", tx.Hash, domain.ErrConfirmationTimeout)
		case <-time.After(c.pollInterval):
		}
	}
}

func mapReceipt(r rpcReceipt) domain.Receipt {
	events := make([]domain.Event, 0, len(r.Events))
	for _, event := range r.Events {
		events = append(events, domain.Event{
			Name:       event.Name,
			CampaignID: event.CampaignID,
		})
	}
	return domain.Receipt{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		Reverted:    r.Status == 0,
		Reason:      r.Reason,
		Events:      events,
	}
}

// mapSubmitError distinguishes a ledger rejection from a transport failure,
// since only the latter is meaningfully retryable.
func mapSubmitError(err error) error {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) && rpcErr.Code == codeReverted {
		return fmt.Errorf("%w: %s", domain.ErrReverted, rpcErr.Message)
	}
	return err
}

type rpcCampaign struct {
	ID              uint64 `json:"id"`
	Creator         string `json:"creator"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Goal            uint64 `json:"goal"`
	Deadline        uint64 `json:"deadline"`
	AmountCollected uint64 `json:"amount_collected"`
}

type rpcEvent struct {
	Name       string `json:"name"`
	CampaignID uint64 `json:"campaign_id"`
}

type rpcReceipt struct {
	TxHash      string     `json:"tx_hash"`
	BlockNumber uint64     `json:"block_number"`
	Status      uint64     `json:"status"`
	Reason      string     `json:"reason"`
	Events      []rpcEvent `json:"events"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: rpc status %d", domain.ErrLedgerUnavailable, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return errors.New("rpc result is empty")
	}
	return json.Unmarshal(decoded.Result, result)
}
