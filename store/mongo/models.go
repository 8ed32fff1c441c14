package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/types"
)

// ==================== File models ====================

type fileModel struct {
	grove.BaseModel `grove:"table:tally_processed_files"`

	ID          string    `grove:"id,pk"        bson:"_id"`
	Filename    string    `grove:"filename"     bson:"filename"`
	InvoiceDate time.Time `grove:"invoice_date" bson:"invoice_date"`
	Status      string    `grove:"status"       bson:"status"`
	ProcessedAt time.Time `grove:"processed_at" bson:"processed_at"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
}

func toFileModel(f *ledger.File) *fileModel {
	return &fileModel{
		ID:          f.ID.String(),
		Filename:    f.Filename,
		InvoiceDate: f.InvoiceDate,
		Status:      string(f.Status),
		ProcessedAt: f.ProcessedAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func fromFileModel(m *fileModel) (*ledger.File, error) {
	fileID, err := id.ParseFileID(m.ID)
	if err != nil {
		return nil, err
	}
	return &ledger.File{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          fileID,
		Filename:    m.Filename,
		InvoiceDate: m.InvoiceDate,
		Status:      ledger.FileStatus(m.Status),
		ProcessedAt: m.ProcessedAt,
	}, nil
}

// ==================== Record models ====================

type recordModel struct {
	grove.BaseModel `grove:"table:tally_invoice_creation"`

	ID               string    `grove:"id,pk"             bson:"_id"`
	FileID           string    `grove:"file_id"           bson:"file_id"`
	CustomerIdentity string    `grove:"customer_identity" bson:"customer_identity"`
	ContactName      string    `grove:"contact_name"      bson:"contact_name"`
	UsageNames       []string  `grove:"usage_names"       bson:"usage_names,omitempty"`
	InvoiceNumber    string    `grove:"invoice_number"    bson:"invoice_number"`
	InvoiceID        string    `grove:"invoice_id"        bson:"invoice_id"`
	AmountCents      int64     `grove:"amount_cents"      bson:"amount_cents"`
	AmountCurrency   string    `grove:"amount_currency"   bson:"amount_currency"`
	Status           string    `grove:"status"            bson:"status"`
	RunID            string    `grove:"run_id"            bson:"run_id"`
	Error            string    `grove:"error"             bson:"error"`
	CreatedAt        time.Time `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"        bson:"updated_at"`
}

func toRecordModel(r *ledger.Record) *recordModel {
	return &recordModel{
		ID:               r.ID.String(),
		FileID:           r.FileID.String(),
		CustomerIdentity: r.Customer,
		ContactName:      r.ContactName,
		UsageNames:       r.UsageNames,
		InvoiceNumber:    r.InvoiceNumber,
		InvoiceID:        r.InvoiceID,
		AmountCents:      r.Amount.Amount,
		AmountCurrency:   r.Amount.Currency,
		Status:           string(r.Status),
		RunID:            r.RunID.String(),
		Error:            r.Error,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func fromRecordModel(m *recordModel) (*ledger.Record, error) {
	recordID, err := id.ParseRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	fileID, err := id.ParseFileID(m.FileID)
	if err != nil {
		return nil, err
	}
	var runID id.RunID
	if m.RunID != "" {
		if runID, err = id.ParseRunID(m.RunID); err != nil {
			return nil, err
		}
	}

	return &ledger.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            recordID,
		FileID:        fileID,
		Customer:      m.CustomerIdentity,
		ContactName:   m.ContactName,
		UsageNames:    m.UsageNames,
		InvoiceNumber: m.InvoiceNumber,
		InvoiceID:     m.InvoiceID,
		Amount:        types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		Status:        ledger.Status(m.Status),
		RunID:         runID,
		Error:         m.Error,
	}, nil
}
