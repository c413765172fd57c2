package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fundsync/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the MySQL-backed cache store for campaign ownership metadata.
// All writes are keyed by campaign_id and use replace semantics; the store
// never accumulates amounts.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			campaign_id BIGINT UNSIGNED NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			target_goal BIGINT UNSIGNED NOT NULL,
			raised_amount BIGINT UNSIGNED NOT NULL DEFAULT 0,
			owner_ref VARCHAR(128) NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			deleted TINYINT(1) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (campaign_id),
			KEY campaigns_owner_idx (owner_ref)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertCampaign inserts or refreshes the record for a campaign id. The
// raised amount is only set on first insert; repeats of the same creation
// must not clobber a later reconciliation.
func (s *Store) UpsertCampaign(ctx context.Context, record domain.CampaignRecord) error {
	ctx, span := startDBSpan(ctx, "mysql.UpsertCampaign",
		attribute.Int64("campaign.id", int64(record.CampaignID)),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	deleted := 0
	if record.Deleted {
		deleted = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO campaigns (campaign_id, title, description, target_goal, raised_amount, owner_ref, tx_hash, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title),
			description = VALUES(description),
			target_goal = VALUES(target_goal),
			owner_ref = VALUES(owner_ref),
			tx_hash = VALUES(tx_hash),
			deleted = VALUES(deleted)`,
		record.CampaignID, record.Title, record.Description, record.TargetGoal, record.RaisedAmount, record.OwnerRef, record.TxHash, deleted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// SetRaisedAmount overwrites the cached amount with a canonical ledger read.
// A missing row is not an error: reconciliation for an unindexed campaign is
// a no-op until the creation record lands.
func (s *Store) SetRaisedAmount(ctx context.Context, campaignID uint64, amount uint64) error {
	ctx, span := startDBSpan(ctx, "mysql.SetRaisedAmount",
		attribute.Int64("campaign.id", int64(campaignID)),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `UPDATE campaigns SET raised_amount = ? WHERE campaign_id = ?`, amount, campaignID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Store) GetCampaignRecord(ctx context.Context, campaignID uint64) (domain.CampaignRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var record domain.CampaignRecord
	var deleted int
	err := s.db.QueryRowContext(ctx, `SELECT campaign_id, title, description, target_goal, raised_amount, owner_ref, tx_hash, deleted
		FROM campaigns WHERE campaign_id = ?`, campaignID).
		Scan(&record.CampaignID, &record.Title, &record.Description, &record.TargetGoal, &record.RaisedAmount, &record.OwnerRef, &record.TxHash, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CampaignRecord{}, false, nil
		}
		return domain.CampaignRecord{}, false, err
	}
	record.Deleted = deleted != 0
	return record, true, nil
}

// ListByOwner returns the owner's records, soft-deleted entries excluded.
func (s *Store) ListByOwner(ctx context.Context, ownerRef string) ([]domain.CampaignRecord, error) {
	ctx, span := startDBSpan(ctx, "mysql.ListByOwner",
		attribute.String("owner.ref", ownerRef),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT campaign_id, title, description, target_goal, raised_amount, owner_ref, tx_hash, deleted
		FROM campaigns WHERE owner_ref = ? AND deleted = 0 ORDER BY campaign_id ASC`, ownerRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var records []domain.CampaignRecord
	for rows.Next() {
		var record domain.CampaignRecord
		var deleted int
		if err := rows.Scan(&record.CampaignID, &record.Title, &record.Description, &record.TargetGoal, &record.RaisedAmount, &record.OwnerRef, &record.TxHash, &deleted); err != nil {
			return nil, err
		}
		record.Deleted = deleted != 0
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) SetDeleted(ctx context.Context, campaignID uint64, deleted bool) error {
	ctx, span := startDBSpan(ctx, "mysql.SetDeleted",
		attribute.Int64("campaign.id", int64(campaignID)),
		attribute.Bool("deleted", deleted),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	flag := 0
	if deleted {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE campaigns SET deleted = ? WHERE campaign_id = ?`, flag, campaignID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("fundsync/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
