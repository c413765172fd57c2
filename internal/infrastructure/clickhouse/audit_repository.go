package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"fundsync/internal/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// AuditRepository appends every reconciliation attempt to ClickHouse so that
// cache drift can be inspected after the fact. Rows are never updated.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(dsn string) (*AuditRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("clickhouse dsn is required")
	}
	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db := clickhouse.OpenDB(options)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		return nil, err
	}
	return &AuditRepository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS reconciliations (
		campaign_id UInt64,
		tx_hash String,
		amount UInt64,
		outcome String,
		occurred_at DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (campaign_id, occurred_at)`)
	return err
}

func (r *AuditRepository) RecordReconciliation(ctx context.Context, entry domain.ReconciliationEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO reconciliations (campaign_id, tx_hash, amount, outcome, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.CampaignID, entry.TxHash, entry.Amount, entry.Outcome, occurredAt)
	return err
}

func (r *AuditRepository) Close() error {
	return r.db.Close()
}
