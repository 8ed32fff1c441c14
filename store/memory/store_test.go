package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/types"
)

func TestFileLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	f := &ledger.File{
		Entity:   types.NewEntity(time.Now()),
		ID:       id.NewFileID(),
		Filename: "usage_2024-12-31.csv",
		Status:   ledger.FileProcessing,
	}
	if err := s.CreateFile(ctx, f); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	dup := *f
	dup.ID = id.NewFileID()
	if err := s.CreateFile(ctx, &dup); !errors.Is(err, tally.ErrAlreadyExists) {
		t.Errorf("duplicate filename: got %v", err)
	}

	if err := s.UpdateFileStatus(ctx, f.ID, ledger.FileCompleted); err != nil {
		t.Fatalf("UpdateFileStatus: %v", err)
	}
	got, err := s.GetFileByName(ctx, f.Filename)
	if err != nil {
		t.Fatalf("GetFileByName: %v", err)
	}
	if got.Status != ledger.FileCompleted {
		t.Errorf("Status: got %s", got.Status)
	}

	if _, err := s.GetFile(ctx, id.NewFileID()); !errors.Is(err, tally.ErrFileNotFound) {
		t.Errorf("GetFile unknown: got %v", err)
	}
}

func TestRecordUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	fileID := id.NewFileID()

	r := &ledger.Record{ID: id.NewRecordID(), FileID: fileID, Customer: "c1", Status: ledger.StatusPending, RunID: id.NewRunID()}
	if err := s.CreateRecord(ctx, r); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	other := *r
	other.ID = id.NewRecordID()
	if err := s.CreateRecord(ctx, &other); !errors.Is(err, tally.ErrAlreadyExists) {
		t.Errorf("duplicate (file, customer): got %v", err)
	}

	// same customer under another file is a different record
	other.FileID = id.NewFileID()
	if err := s.CreateRecord(ctx, &other); err != nil {
		t.Errorf("other file: %v", err)
	}
}

func TestTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	fileID := id.NewFileID()
	holder := id.NewRunID()

	r := &ledger.Record{ID: id.NewRecordID(), FileID: fileID, Customer: "c1", Status: ledger.StatusFailed, RunID: holder}
	if err := s.CreateRecord(ctx, r); err != nil {
		t.Fatal(err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := ledger.Plan(r, ledger.TriggerRetry, id.NewRunID(), time.Now())
			if err != nil {
				t.Error(err)
				return
			}
			ok, err := s.TransitionRecord(ctx, fileID, "c1", tr)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("exactly one retry should win, got %d", wins.Load())
	}
	got, _ := s.GetRecord(ctx, fileID, "c1")
	if got.Status != ledger.StatusPending || got.HeldBy(holder) {
		t.Errorf("record: got %+v", got)
	}
}

func TestListRecordsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	fileID := id.NewFileID()
	base := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	for i, c := range []string{"a", "b", "c", "d"} {
		status := ledger.StatusCreated
		if i%2 == 1 {
			status = ledger.StatusFailed
		}
		_ = s.CreateRecord(ctx, &ledger.Record{
			Entity:   types.NewEntity(base.Add(time.Duration(i) * time.Minute)),
			ID:       id.NewRecordID(),
			FileID:   fileID,
			Customer: c,
			Status:   status,
		})
	}

	created, _ := s.ListRecords(ctx, fileID, ledger.ListOpts{Status: ledger.StatusCreated})
	if len(created) != 2 || created[0].Customer != "a" || created[1].Customer != "c" {
		t.Errorf("created: got %d records", len(created))
	}
	paged, _ := s.ListRecords(ctx, fileID, ledger.ListOpts{Limit: 2, Offset: 1})
	if len(paged) != 2 || paged[0].Customer != "b" {
		t.Errorf("paged: got %d records", len(paged))
	}
}
