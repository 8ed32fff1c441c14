package store

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
)

// Store is the unified storage interface for tally's emission ledger.
type Store interface {
	// File methods
	CreateFile(ctx context.Context, f *ledger.File) error
	GetFile(ctx context.Context, fileID id.FileID) (*ledger.File, error)
	GetFileByName(ctx context.Context, filename string) (*ledger.File, error)
	ListFiles(ctx context.Context, opts ledger.FileListOpts) ([]*ledger.File, error)
	UpdateFileStatus(ctx context.Context, fileID id.FileID, status ledger.FileStatus) error

	// Record methods. CreateRecord returns tally.ErrAlreadyExists when a
	// record for (FileID, Customer) exists. TransitionRecord reports false
	// when the record no longer matches t.From and t.ExpectRunID.
	CreateRecord(ctx context.Context, r *ledger.Record) error
	GetRecord(ctx context.Context, fileID id.FileID, customer string) (*ledger.Record, error)
	ListRecords(ctx context.Context, fileID id.FileID, opts ledger.ListOpts) ([]*ledger.Record, error)
	TransitionRecord(ctx context.Context, fileID id.FileID, customer string, t ledger.Transition) (bool, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
