// Package sqldb implements store.Store on database/sql with the lib/pq
// driver. It needs no host container, which makes it the store the
// standalone CLI uses.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

var _ tallystore.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS tally_processed_files (
    id           TEXT PRIMARY KEY,
    filename     TEXT NOT NULL UNIQUE,
    invoice_date DATE,
    status       TEXT NOT NULL DEFAULT 'processing',
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tally_invoice_creation (
    id                TEXT PRIMARY KEY,
    file_id           TEXT NOT NULL REFERENCES tally_processed_files (id),
    customer_identity TEXT NOT NULL,
    contact_name      TEXT NOT NULL DEFAULT '',
    usage_names       JSONB NOT NULL DEFAULT '[]',
    invoice_number    TEXT NOT NULL DEFAULT '',
    invoice_id        TEXT NOT NULL DEFAULT '',
    amount_cents      BIGINT NOT NULL DEFAULT 0,
    amount_currency   TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'pending',
    run_id            TEXT NOT NULL DEFAULT '',
    error             TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (file_id, customer_identity)
);

CREATE INDEX IF NOT EXISTS idx_tally_records_status ON tally_invoice_creation (file_id, status);
`

const (
	fileColumns   = `id, filename, invoice_date, status, processed_at, created_at, updated_at`
	recordColumns = `id, file_id, customer_identity, contact_name, usage_names, invoice_number, invoice_id,
		amount_cents, amount_currency, status, run_id, error, created_at, updated_at`
)

// Store implements store.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using a lib/pq connection string.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("tally/sqldb: open: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("tally/sqldb: %w: %w", tally.ErrMigrationFailed, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== File Store ====================

func (s *Store) CreateFile(ctx context.Context, f *ledger.File) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tally_processed_files (`+fileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (filename) DO NOTHING`,
		f.ID.String(), f.Filename, nullDate(f.InvoiceDate), string(f.Status), f.ProcessedAt, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("tally/sqldb: create file: %w", err)
	}
	return expectOne(res, tally.ErrAlreadyExists)
}

func (s *Store) GetFile(ctx context.Context, fileID id.FileID) (*ledger.File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM tally_processed_files WHERE id = $1`, fileID.String())
	return scanFile(row)
}

func (s *Store) GetFileByName(ctx context.Context, filename string) (*ledger.File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM tally_processed_files WHERE filename = $1`, filename)
	return scanFile(row)
}

func (s *Store) ListFiles(ctx context.Context, opts ledger.FileListOpts) ([]*ledger.File, error) {
	var q query
	q.add("status = ", string(opts.Status), opts.Status != "")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM tally_processed_files`+q.where()+` ORDER BY processed_at DESC`+q.page(opts.Limit, opts.Offset),
		q.args...)
	if err != nil {
		return nil, fmt.Errorf("tally/sqldb: list files: %w", err)
	}
	defer rows.Close()

	var result []*ledger.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) UpdateFileStatus(ctx context.Context, fileID id.FileID, status ledger.FileStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tally_processed_files SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now(), fileID.String())
	if err != nil {
		return fmt.Errorf("tally/sqldb: update file status: %w", err)
	}
	return expectOne(res, tally.ErrFileNotFound)
}

// ==================== Record Store ====================

func (s *Store) CreateRecord(ctx context.Context, r *ledger.Record) error {
	names, err := encodeNames(r.UsageNames)
	if err != nil {
		return fmt.Errorf("tally/sqldb: encode usage names: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tally_invoice_creation (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (file_id, customer_identity) DO NOTHING`,
		r.ID.String(), r.FileID.String(), r.Customer, r.ContactName, names,
		r.InvoiceNumber, r.InvoiceID, r.Amount.Amount, r.Amount.Currency,
		string(r.Status), r.RunID.String(), r.Error, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("tally/sqldb: create record: %w", err)
	}
	return expectOne(res, tally.ErrAlreadyExists)
}

func (s *Store) GetRecord(ctx context.Context, fileID id.FileID, customer string) (*ledger.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM tally_invoice_creation WHERE file_id = $1 AND customer_identity = $2`,
		fileID.String(), customer)
	return scanRecord(row)
}

func (s *Store) ListRecords(ctx context.Context, fileID id.FileID, opts ledger.ListOpts) ([]*ledger.Record, error) {
	var q query
	q.add("file_id = ", fileID.String(), true)
	q.add("status = ", string(opts.Status), opts.Status != "")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM tally_invoice_creation`+q.where()+
			` ORDER BY created_at ASC, customer_identity ASC`+q.page(opts.Limit, opts.Offset),
		q.args...)
	if err != nil {
		return nil, fmt.Errorf("tally/sqldb: list records: %w", err)
	}
	defer rows.Close()

	var result []*ledger.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) TransitionRecord(ctx context.Context, fileID id.FileID, customer string, t ledger.Transition) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tally_invoice_creation
		SET status = $1, run_id = $2, invoice_number = $3, invoice_id = $4,
		    amount_cents = $5, amount_currency = $6, error = $7, updated_at = $8
		WHERE file_id = $9 AND customer_identity = $10 AND status = $11 AND run_id = $12`,
		string(t.To), t.RunID.String(), t.InvoiceNumber, t.InvoiceID,
		t.Amount.Amount, t.Amount.Currency, t.Error, t.At.UTC(),
		fileID.String(), customer, string(t.From), t.ExpectRunID.String())
	if err != nil {
		return false, fmt.Errorf("tally/sqldb: transition record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ==================== Helpers ====================

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*ledger.File, error) {
	var (
		f           ledger.File
		rawID       string
		status      string
		invoiceDate sql.NullTime
	)
	err := row.Scan(&rawID, &f.Filename, &invoiceDate, &status, &f.ProcessedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrFileNotFound
		}
		return nil, err
	}
	if f.ID, err = id.ParseFileID(rawID); err != nil {
		return nil, err
	}
	f.Status = ledger.FileStatus(status)
	if invoiceDate.Valid {
		f.InvoiceDate = invoiceDate.Time
	}
	return &f, nil
}

func scanRecord(row scanner) (*ledger.Record, error) {
	var (
		r        ledger.Record
		rawID    string
		rawFile  string
		rawRun   string
		status   string
		cents    int64
		currency string
		names    []byte
	)
	err := row.Scan(&rawID, &rawFile, &r.Customer, &r.ContactName, &names,
		&r.InvoiceNumber, &r.InvoiceID, &cents, &currency, &status, &rawRun, &r.Error,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrRecordNotFound
		}
		return nil, err
	}
	if r.ID, err = id.ParseRecordID(rawID); err != nil {
		return nil, err
	}
	if r.FileID, err = id.ParseFileID(rawFile); err != nil {
		return nil, err
	}
	if rawRun != "" {
		if r.RunID, err = id.ParseRunID(rawRun); err != nil {
			return nil, err
		}
	}
	if len(names) > 0 {
		if err := json.Unmarshal(names, &r.UsageNames); err != nil {
			return nil, fmt.Errorf("tally/sqldb: decode usage names: %w", err)
		}
	}
	r.Status = ledger.Status(status)
	r.Amount = types.Money{Amount: cents, Currency: currency}
	return &r, nil
}

// encodeNames renders usage names as a JSON array, the same column
// encoding the grove postgres store uses.
func encodeNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// query accumulates WHERE clauses with numbered placeholders.
type query struct {
	clauses []string
	args    []any
}

func (q *query) add(expr string, arg any, when bool) {
	if !when {
		return
	}
	q.args = append(q.args, arg)
	q.clauses = append(q.clauses, expr+"$"+strconv.Itoa(len(q.args)))
}

func (q *query) where() string {
	if len(q.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.clauses, " AND ")
}

func (q *query) page(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(limit))
	}
	if offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(offset))
	}
	return sb.String()
}

func expectOne(res sql.Result, zero error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return zero
	}
	return nil
}

func nullDate(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
