package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fundsync/internal/domain"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed cache store, used for standalone and dev runs.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS campaigns (
		campaign_id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		target_goal INTEGER NOT NULL,
		raised_amount INTEGER NOT NULL DEFAULT 0,
		owner_ref TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS campaigns_owner_idx ON campaigns (owner_ref)`)
	return err
}

func (s *Store) UpsertCampaign(ctx context.Context, record domain.CampaignRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	deleted := 0
	if record.Deleted {
		deleted = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO campaigns (campaign_id, title, description, target_goal, raised_amount, owner_ref, tx_hash, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			target_goal = excluded.target_goal,
			owner_ref = excluded.owner_ref,
			tx_hash = excluded.tx_hash,
			deleted = excluded.deleted`,
		record.CampaignID, record.Title, record.Description, record.TargetGoal, record.RaisedAmount, record.OwnerRef, record.TxHash, deleted)
	return err
}

func (s *Store) SetRaisedAmount(ctx context.Context, campaignID uint64, amount uint64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `UPDATE campaigns SET raised_amount = ? WHERE campaign_id = ?`, amount, campaignID)
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

func (s *Store) ListByOwner(ctx context.Context, ownerRef string) ([]domain.CampaignRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT campaign_id, title, description, target_goal, raised_amount, owner_ref, tx_hash, deleted
		FROM campaigns WHERE owner_ref = ? AND deleted = 0 ORDER BY campaign_id ASC`, ownerRef)
	if err != nil {
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
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	flag := 0
	if deleted {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE campaigns SET deleted = ? WHERE campaign_id = ?`, flag, campaignID)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
