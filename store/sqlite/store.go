package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	tallystore "github.com/xraph/tally/store"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: %w: %w", tally.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== File Store ====================

func (s *Store) CreateFile(ctx context.Context, f *ledger.File) error {
	m := toFileModel(f)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(filename) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create file: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, fileID id.FileID) (*ledger.File, error) {
	m := new(fileModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", fileID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrFileNotFound
		}
		return nil, err
	}
	return fromFileModel(m)
}

func (s *Store) GetFileByName(ctx context.Context, filename string) (*ledger.File, error) {
	m := new(fileModel)
	err := s.sdb.NewSelect(m).
		Where("filename = ?", filename).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrFileNotFound
		}
		return nil, err
	}
	return fromFileModel(m)
}

func (s *Store) ListFiles(ctx context.Context, opts ledger.FileListOpts) ([]*ledger.File, error) {
	var models []fileModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("processed_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*ledger.File, len(models))
	for i := range models {
		f, err := fromFileModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = f
	}
	return result, nil
}

func (s *Store) UpdateFileStatus(ctx context.Context, fileID id.FileID, status ledger.FileStatus) error {
	res, err := s.sdb.NewUpdate((*fileModel)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", now()).
		Where("id = ?", fileID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrFileNotFound
	}
	return nil
}

// ==================== Record Store ====================

// CreateRecord inserts the claim. The unique (file_id, customer_identity)
// constraint makes concurrent claims for one customer collapse to a single
// row.
func (s *Store) CreateRecord(ctx context.Context, r *ledger.Record) error {
	m := toRecordModel(r)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(file_id, customer_identity) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, fileID id.FileID, customer string) (*ledger.Record, error) {
	m := new(recordModel)
	err := s.sdb.NewSelect(m).
		Where("file_id = ?", fileID.String()).
		Where("customer_identity = ?", customer).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrRecordNotFound
		}
		return nil, err
	}
	return fromRecordModel(m)
}

func (s *Store) ListRecords(ctx context.Context, fileID id.FileID, opts ledger.ListOpts) ([]*ledger.Record, error) {
	var models []recordModel
	q := s.sdb.NewSelect(&models).
		Where("file_id = ?", fileID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, customer_identity ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*ledger.Record, len(models))
	for i := range models {
		r, err := fromRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) TransitionRecord(ctx context.Context, fileID id.FileID, customer string, t ledger.Transition) (bool, error) {
	res, err := s.sdb.NewUpdate((*recordModel)(nil)).
		Set("status = ?", string(t.To)).
		Set("run_id = ?", t.RunID.String()).
		Set("invoice_number = ?", t.InvoiceNumber).
		Set("invoice_id = ?", t.InvoiceID).
		Set("amount_cents = ?", t.Amount.Amount).
		Set("amount_currency = ?", t.Amount.Currency).
		Set("error = ?", t.Error).
		Set("updated_at = ?", t.At.UTC()).
		Where("file_id = ?", fileID.String()).
		Where("customer_identity = ?", customer).
		Where("status = ?", string(t.From)).
		Where("run_id = ?", t.ExpectRunID.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("tally/sqlite: transition record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
