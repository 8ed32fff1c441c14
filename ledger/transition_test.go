package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from    Status
		trigger Trigger
		want    Status
		wantErr bool
	}{
		{StatusNone, TriggerBegin, StatusPending, false},
		{StatusPending, TriggerConfirm, StatusCreated, false},
		{StatusPending, TriggerFail, StatusFailed, false},
		{StatusPending, TriggerReclaim, StatusPending, false},
		{StatusFailed, TriggerRetry, StatusPending, false},

		{StatusNone, TriggerConfirm, StatusNone, true},
		{StatusFailed, TriggerConfirm, StatusFailed, true},
		{StatusPending, TriggerBegin, StatusPending, true},
		{StatusCreated, TriggerRetry, StatusCreated, true},
		{StatusCreated, TriggerFail, StatusCreated, true},
		{StatusCreated, TriggerReclaim, StatusCreated, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			got, err := Next(tt.from, tt.trigger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Next: err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Next: got %q, want %q", got, tt.want)
			}
			var te *TransitionError
			if err != nil && !errors.As(err, &te) {
				t.Errorf("expected *TransitionError, got %T", err)
			}
		})
	}
}

func TestPlanAndApply(t *testing.T) {
	first, second := id.NewRunID(), id.NewRunID()
	created := time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC)

	r := &Record{
		Entity:   types.NewEntity(created),
		ID:       id.NewRecordID(),
		FileID:   id.NewFileID(),
		Customer: "contact-1",
		Status:   StatusFailed,
		RunID:    first,
		Error:    "gateway timeout",
	}

	tr, err := Plan(r, TriggerRetry, second, created.Add(time.Hour))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if tr.From != StatusFailed || tr.To != StatusPending {
		t.Errorf("Plan: got %s -> %s", tr.From, tr.To)
	}
	if !tr.Matches(r) {
		t.Fatal("planned transition should match its source record")
	}

	tr.Apply(r)
	if r.Status != StatusPending || !r.HeldBy(second) || r.Error != "" {
		t.Errorf("Apply: got %+v", r)
	}
	if !r.UpdatedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("UpdatedAt: got %v", r.UpdatedAt)
	}

	// a second apply of the same plan no longer matches
	if tr.Matches(r) {
		t.Error("stale transition should not match")
	}
}

func TestPlanRejectsCreated(t *testing.T) {
	r := &Record{Status: StatusCreated, RunID: id.NewRunID()}
	if _, err := Plan(r, TriggerRetry, id.NewRunID(), time.Now()); err == nil {
		t.Error("created records are terminal")
	}
}
