package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	tallystore "github.com/xraph/tally/store"
)

// Collection name constants.
const (
	colFiles   = "tally_processed_files"
	colRecords = "tally_invoice_creation"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the tally collections. The unique
// (file_id, customer_identity) index is what makes claims atomic.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create file: %w", err)
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, fileID id.FileID) (*ledger.File, error) {
	var m fileModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": fileID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrFileNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get file: %w", err)
	}
	return fromFileModel(&m)
}

func (s *Store) GetFileByName(ctx context.Context, filename string) (*ledger.File, error) {
	var m fileModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"filename": filename}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrFileNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get file by name: %w", err)
	}
	return fromFileModel(&m)
}

func (s *Store) ListFiles(ctx context.Context, opts ledger.FileListOpts) ([]*ledger.File, error) {
	var models []fileModel
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "processed_at", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list files: %w", err)
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
	res, err := s.mdb.NewUpdate((*fileModel)(nil)).
		Filter(bson.M{"_id": fileID.String()}).
		Set("status", string(status)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update file status: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrFileNotFound
	}
	return nil
}

// ==================== Record Store ====================

func (s *Store) CreateRecord(ctx context.Context, r *ledger.Record) error {
	m := toRecordModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create record: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, fileID id.FileID, customer string) (*ledger.Record, error) {
	var m recordModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"file_id": fileID.String(), "customer_identity": customer}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrRecordNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get record: %w", err)
	}
	return fromRecordModel(&m)
}

func (s *Store) ListRecords(ctx context.Context, fileID id.FileID, opts ledger.ListOpts) ([]*ledger.Record, error) {
	var models []recordModel
	filter := bson.M{"file_id": fileID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "customer_identity", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list records: %w", err)
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
	res, err := s.mdb.NewUpdate((*recordModel)(nil)).
		Filter(bson.M{
			"file_id":           fileID.String(),
			"customer_identity": customer,
			"status":            string(t.From),
			"run_id":            t.ExpectRunID.String(),
		}).
		Set("status", string(t.To)).
		Set("run_id", t.RunID.String()).
		Set("invoice_number", t.InvoiceNumber).
		Set("invoice_id", t.InvoiceID).
		Set("amount_cents", t.Amount.Amount).
		Set("amount_currency", t.Amount.Currency).
		Set("error", t.Error).
		Set("updated_at", t.At.UTC()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("tally/mongo: transition record: %w", err)
	}
	return res.MatchedCount() == 1, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for the tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colFiles: {
			{
				Keys:    bson.D{{Key: "filename", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "processed_at", Value: -1}}},
		},
		colRecords: {
			{
				Keys:    bson.D{{Key: "file_id", Value: 1}, {Key: "customer_identity", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "file_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}
}
