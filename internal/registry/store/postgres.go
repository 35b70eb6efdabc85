package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"datamarket/internal/registry/models"
	id "datamarket/pkg/domain"
	"datamarket/pkg/platform/sentinel"
	"datamarket/pkg/requestcontext"
)

const schema = `
CREATE TABLE IF NOT EXISTS platform_config (
    singleton      BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    fee_percentage INTEGER NOT NULL CHECK (fee_percentage BETWEEN 0 AND 20),
    next_record_id BIGINT  NOT NULL,
    grant_seq      BIGINT  NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
    id              BIGINT PRIMARY KEY,
    owner           TEXT    NOT NULL,
    content_address TEXT    NOT NULL,
    price           BIGINT  NOT NULL CHECK (price > 0),
    metadata        TEXT    NOT NULL,
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      BIGINT  NOT NULL,
    registered_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS records_owner_idx  ON records (owner, id);
CREATE INDEX IF NOT EXISTS records_active_idx ON records (active, id DESC);

CREATE TABLE IF NOT EXISTS record_access (
    record_id  BIGINT NOT NULL REFERENCES records (id),
    account    TEXT   NOT NULL,
    grant_seq  BIGINT NOT NULL,
    granted_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (record_id, account)
);

CREATE INDEX IF NOT EXISTS record_access_account_idx ON record_access (account, grant_seq);
`

// Postgres persists the ledger in PostgreSQL. Mutations run in transactions;
// the platform_config singleton row serializes id assignment so record ids
// stay dense even across concurrent writers, and a rolled-back transaction
// rolls the counter back with it.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the ledger tables and seeds the singleton config row
// with the default fee. Existing state is left untouched.
func (s *Postgres) EnsureSchema(ctx context.Context, defaultFee int) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO platform_config (singleton, fee_percentage, next_record_id, grant_seq)
		 VALUES (TRUE, $1, 1, 1)
		 ON CONFLICT (singleton) DO NOTHING`, defaultFee)
	if err != nil {
		return fmt.Errorf("seed platform config: %w", err)
	}
	return nil
}

func (s *Postgres) CreateRecord(ctx context.Context, record *models.Record) (id.RecordID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin create record: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Locking the singleton row keeps id assignment dense and serialized.
	var recordID uint64
	err = tx.QueryRow(ctx,
		`UPDATE platform_config SET next_record_id = next_record_id + 1
		 RETURNING next_record_id - 1`).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("allocate record id: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO records (id, owner, content_address, price, metadata, active, created_at, registered_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $1, $6)`,
		recordID, record.Owner.String(), record.ContentAddress, record.Price, record.Metadata, record.RegisteredAt)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit create record: %w", err)
	}
	return id.RecordID(recordID), nil
}

func (s *Postgres) FindRecord(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	record, err := scanRecord(s.pool.QueryRow(ctx, selectRecord+` WHERE id = $1`, uint64(recordID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return record, nil
}

func (s *Postgres) ExecuteRecord(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin execute record: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	record, err := scanRecord(tx.QueryRow(ctx, selectRecord+` WHERE id = $1 FOR UPDATE`, uint64(recordID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock record: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	_, err = tx.Exec(ctx,
		`UPDATE records SET metadata = $2, active = $3 WHERE id = $1`,
		uint64(recordID), record.Metadata, record.Active)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit execute record: %w", err)
	}
	return record, nil
}

func (s *Postgres) GrantAccess(ctx context.Context, recordID id.RecordID, account id.AccountID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin grant access: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM records WHERE id = $1)`, uint64(recordID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check record exists: %w", err)
	}
	if !exists {
		return false, sentinel.ErrNotFound
	}

	// grant_seq gives the purchase index its insertion order; the primary key
	// makes repeat grants no-ops.
	tag, err := tx.Exec(ctx,
		`INSERT INTO record_access (record_id, account, grant_seq, granted_at)
		 SELECT $1, $2, grant_seq, $3 FROM platform_config
		 ON CONFLICT (record_id, account) DO NOTHING`,
		uint64(recordID), account.String(), requestcontext.Now(ctx))
	if err != nil {
		return false, fmt.Errorf("insert access grant: %w", err)
	}

	firstGrant := tag.RowsAffected() == 1
	if firstGrant {
		if _, err := tx.Exec(ctx, `UPDATE platform_config SET grant_seq = grant_seq + 1`); err != nil {
			return false, fmt.Errorf("advance grant sequence: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit grant access: %w", err)
	}
	return firstGrant, nil
}

func (s *Postgres) HasAccess(ctx context.Context, recordID id.RecordID, account id.AccountID) (bool, error) {
	var granted bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM record_access WHERE record_id = $1 AND account = $2)`,
		uint64(recordID), account.String()).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return granted, nil
}

func (s *Postgres) ListOwned(ctx context.Context, account id.AccountID) ([]id.RecordID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM records WHERE owner = $1 ORDER BY id`, account.String())
	if err != nil {
		return nil, fmt.Errorf("list owned: %w", err)
	}
	return collectIDs(rows)
}

func (s *Postgres) ListPurchased(ctx context.Context, account id.AccountID) ([]id.RecordID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record_id FROM record_access WHERE account = $1 ORDER BY grant_seq`, account.String())
	if err != nil {
		return nil, fmt.Errorf("list purchased: %w", err)
	}
	return collectIDs(rows)
}

func (s *Postgres) ListActive(ctx context.Context, limit, offset int) ([]*models.Record, error) {
	rows, err := s.pool.Query(ctx,
		selectRecord+` WHERE active ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	records := make([]*models.Record, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active records: %w", err)
	}
	return records, nil
}

func (s *Postgres) FeePercentage(ctx context.Context) (int, error) {
	var fee int
	if err := s.pool.QueryRow(ctx, `SELECT fee_percentage FROM platform_config`).Scan(&fee); err != nil {
		return 0, fmt.Errorf("read fee percentage: %w", err)
	}
	return fee, nil
}

func (s *Postgres) SetFeePercentage(ctx context.Context, fee int) error {
	if _, err := s.pool.Exec(ctx, `UPDATE platform_config SET fee_percentage = $1`, fee); err != nil {
		return fmt.Errorf("set fee percentage: %w", err)
	}
	return nil
}

func (s *Postgres) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT next_record_id - 1 FROM platform_config),
		        (SELECT count(*) FROM records WHERE active),
		        (SELECT count(*) FROM record_access)`).
		Scan(&stats.TotalRecords, &stats.ActiveRecords, &stats.TotalGrants)
	if err != nil {
		return models.Stats{}, fmt.Errorf("read stats: %w", err)
	}
	return stats, nil
}

const selectRecord = `SELECT id, owner, content_address, price, metadata, active, created_at, registered_at FROM records`

func scanRecord(row pgx.Row) (*models.Record, error) {
	var record models.Record
	err := row.Scan(
		&record.ID,
		&record.Owner,
		&record.ContentAddress,
		&record.Price,
		&record.Metadata,
		&record.Active,
		&record.CreatedAt,
		&record.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func collectIDs(rows pgx.Rows) ([]id.RecordID, error) {
	defer rows.Close()

	ids := make([]id.RecordID, 0)
	for rows.Next() {
		var recordID uint64
		if err := rows.Scan(&recordID); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id.RecordID(recordID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record ids: %w", err)
	}
	return ids, nil
}
