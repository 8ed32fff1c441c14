// Package ledger defines the persisted records that make invoice emission
// idempotent: one File per billing-cycle report and one Record per
// (file, customer) pair.
package ledger

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// FileStatus tracks a billing-cycle file through a run.
type FileStatus string

const (
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FilePartial    FileStatus = "partial"
)

// File is a registered usage report. Filename is unique.
type File struct {
	types.Entity
	ID          id.FileID  `json:"id"`
	Filename    string     `json:"filename"`
	InvoiceDate time.Time  `json:"invoice_date"`
	Status      FileStatus `json:"status"`
	ProcessedAt time.Time  `json:"processed_at"`
}

// Status is the emission state of one customer within one file.
type Status string

const (
	// StatusNone is the state of a record that does not exist yet.
	StatusNone    Status = ""
	StatusPending Status = "pending"
	StatusCreated Status = "created"
	StatusFailed  Status = "failed"
)

// Record is the emission entry for one customer of one file. The pair
// (FileID, Customer) is unique in every store.
type Record struct {
	types.Entity
	ID            id.RecordID `json:"id"`
	FileID        id.FileID   `json:"file_id"`
	Customer      string      `json:"customer_identity"`
	ContactName   string      `json:"contact_name"`
	UsageNames    []string    `json:"usage_names,omitempty"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	InvoiceID     string      `json:"invoice_id,omitempty"`
	Amount        types.Money `json:"amount"`
	Status        Status      `json:"status"`
	RunID         id.RunID    `json:"run_id"`
	Error         string      `json:"error,omitempty"`
}

// HeldBy reports whether run owns the record's current claim.
func (r *Record) HeldBy(run id.RunID) bool {
	return r.RunID.String() == run.String()
}

// ListOpts filters record listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

// FileListOpts filters file listings.
type FileListOpts struct {
	Status FileStatus
	Limit  int
	Offset int
}
