package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/types"
)

func TestRecordClaimIndexIsUnique(t *testing.T) {
	var found bool
	for _, idx := range migrationIndexes()[colRecords] {
		keys, ok := idx.Keys.(bson.D)
		if !ok || len(keys) != 2 || keys[0].Key != "file_id" || keys[1].Key != "customer_identity" {
			continue
		}
		found = true
		if idx.Options == nil {
			t.Fatal("claim index has no options")
		}
	}
	if !found {
		t.Error("missing (file_id, customer_identity) index")
	}
}

func TestRecordModelRoundTrip(t *testing.T) {
	r := &ledger.Record{
		ID:            id.NewRecordID(),
		FileID:        id.NewFileID(),
		Customer:      "contact-1",
		UsageNames:    []string{"ACME"},
		InvoiceNumber: "INV-0042",
		Amount:        types.NZD(2295),
		Status:        ledger.StatusCreated,
	}

	got, err := fromRecordModel(toRecordModel(r))
	if err != nil {
		t.Fatalf("fromRecordModel: %v", err)
	}
	if got.ID.String() != r.ID.String() || got.Status != r.Status || !got.Amount.Equal(r.Amount) {
		t.Errorf("got %+v", got)
	}
	if !got.RunID.IsNil() {
		t.Errorf("empty run id should parse to Nil, got %s", got.RunID)
	}
}
