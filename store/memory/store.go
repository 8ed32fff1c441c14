package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	tallystore "github.com/xraph/tally/store"
)

var _ tallystore.Store = (*Store)(nil)

// Store keeps the ledger in process memory. Every value handed in or out is
// a copy, so callers never share records with the store.
type Store struct {
	mu sync.RWMutex

	// File storage
	files  map[string]*ledger.File
	byName map[string]string

	// Record storage, keyed by file ID then customer identity
	records map[string]map[string]*ledger.Record
}

func New() *Store {
	return &Store{
		files:   make(map[string]*ledger.File),
		byName:  make(map[string]string),
		records: make(map[string]map[string]*ledger.Record),
	}
}

// File Store implementation
func (s *Store) CreateFile(_ context.Context, f *ledger.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[f.Filename]; exists {
		return tally.ErrAlreadyExists
	}
	if _, exists := s.files[f.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *f
	s.files[f.ID.String()] = &cp
	s.byName[f.Filename] = f.ID.String()
	return nil
}

func (s *Store) GetFile(_ context.Context, fileID id.FileID) (*ledger.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.files[fileID.String()]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, tally.ErrFileNotFound
}

func (s *Store) GetFileByName(_ context.Context, filename string) (*ledger.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.byName[filename]; ok {
		cp := *s.files[key]
		return &cp, nil
	}
	return nil, tally.ErrFileNotFound
}

func (s *Store) ListFiles(_ context.Context, opts ledger.FileListOpts) ([]*ledger.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ledger.File, 0, len(s.files))
	for _, f := range s.files {
		if opts.Status == "" || f.Status == opts.Status {
			cp := *f
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *ledger.File) int {
		return b.ProcessedAt.Compare(a.ProcessedAt)
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateFileStatus(_ context.Context, fileID id.FileID, status ledger.FileStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID.String()]
	if !ok {
		return tally.ErrFileNotFound
	}
	f.Status = status
	f.Touch(now())
	return nil
}

// Record Store implementation
func (s *Store) CreateRecord(_ context.Context, r *ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCustomer, ok := s.records[r.FileID.String()]
	if !ok {
		byCustomer = make(map[string]*ledger.Record)
		s.records[r.FileID.String()] = byCustomer
	}
	if _, exists := byCustomer[r.Customer]; exists {
		return tally.ErrAlreadyExists
	}
	byCustomer[r.Customer] = cloneRecord(r)
	return nil
}

func (s *Store) GetRecord(_ context.Context, fileID id.FileID, customer string) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[fileID.String()][customer]; ok {
		return cloneRecord(r), nil
	}
	return nil, tally.ErrRecordNotFound
}

func (s *Store) ListRecords(_ context.Context, fileID id.FileID, opts ledger.ListOpts) ([]*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ledger.Record, 0)
	for _, r := range s.records[fileID.String()] {
		if opts.Status == "" || r.Status == opts.Status {
			result = append(result, cloneRecord(r))
		}
	}
	slices.SortFunc(result, func(a, b *ledger.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Customer, b.Customer)
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) TransitionRecord(_ context.Context, fileID id.FileID, customer string, t ledger.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[fileID.String()][customer]
	if !ok {
		return false, tally.ErrRecordNotFound
	}
	if !t.Matches(r) {
		return false, nil
	}
	t.Apply(r)
	return true, nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func cloneRecord(r *ledger.Record) *ledger.Record {
	cp := *r
	cp.UsageNames = slices.Clone(r.UsageNames)
	return &cp
}

func page[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
