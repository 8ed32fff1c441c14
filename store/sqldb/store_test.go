package sqldb

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/types"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func TestCreateRecord(t *testing.T) {
	ctx := context.Background()
	fileID := id.NewFileID()
	r := &ledger.Record{
		Entity:   types.NewEntity(time.Now()),
		ID:       id.NewRecordID(),
		FileID:   fileID,
		Customer: "contact-1",
		Status:   ledger.StatusPending,
		RunID:    id.NewRunID(),
	}

	t.Run("inserted", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec("INSERT INTO tally_invoice_creation").
			WithArgs(r.ID.String(), fileID.String(), "contact-1", "", "[]", "", "", int64(0), "",
				"pending", r.RunID.String(), "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, s.CreateRecord(ctx, r))
	})

	t.Run("usage names as json", func(t *testing.T) {
		s, mock := newMock(t)
		named := *r
		named.UsageNames = []string{"ACME", "Acme Ltd"}
		mock.ExpectExec("INSERT INTO tally_invoice_creation").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				`["ACME","Acme Ltd"]`,
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, s.CreateRecord(ctx, &named))
	})

	t.Run("conflict", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (file_id, customer_identity) DO NOTHING")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, s.CreateRecord(ctx, r), tally.ErrAlreadyExists)
	})
}

func TestTransitionRecord(t *testing.T) {
	ctx := context.Background()
	fileID := id.NewFileID()
	holder, next := id.NewRunID(), id.NewRunID()

	tr := ledger.Transition{
		Trigger:       ledger.TriggerConfirm,
		From:          ledger.StatusPending,
		To:            ledger.StatusCreated,
		ExpectRunID:   holder,
		RunID:         next,
		InvoiceNumber: "INV-0042",
		Amount:        types.NZD(2295),
		At:            time.Now(),
	}

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"applied", 1, true},
		{"lost race", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectExec("UPDATE tally_invoice_creation").
				WithArgs("created", next.String(), "INV-0042", "", int64(2295), "nzd", "", sqlmock.AnyArg(),
					fileID.String(), "contact-1", "pending", holder.String()).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := s.TransitionRecord(ctx, fileID, "contact-1", tr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestGetRecord(t *testing.T) {
	ctx := context.Background()
	fileID, recordID, runID := id.NewFileID(), id.NewRecordID(), id.NewRunID()
	at := time.Date(2024, 12, 31, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		s, mock := newMock(t)
		rows := sqlmock.NewRows([]string{
			"id", "file_id", "customer_identity", "contact_name", "usage_names", "invoice_number", "invoice_id",
			"amount_cents", "amount_currency", "status", "run_id", "error", "created_at", "updated_at",
		}).AddRow(recordID.String(), fileID.String(), "contact-1", "Acme Ltd", []byte(`["ACME","Acme Ltd"]`), "INV-0042", "inv-uuid",
			int64(2295), "nzd", "created", runID.String(), "", at, at)
		mock.ExpectQuery("SELECT (.+) FROM tally_invoice_creation WHERE file_id = \\$1 AND customer_identity = \\$2").
			WithArgs(fileID.String(), "contact-1").
			WillReturnRows(rows)

		r, err := s.GetRecord(ctx, fileID, "contact-1")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusCreated, r.Status)
		assert.Equal(t, []string{"ACME", "Acme Ltd"}, r.UsageNames)
		assert.Equal(t, types.NZD(2295), r.Amount)
		assert.True(t, r.HeldBy(runID))
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM tally_invoice_creation").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := s.GetRecord(ctx, fileID, "contact-1")
		assert.ErrorIs(t, err, tally.ErrRecordNotFound)
	})
}

func TestSchemaStoresUsageNamesAsJSONB(t *testing.T) {
	assert.Contains(t, schema, "usage_names       JSONB NOT NULL DEFAULT '[]'")
	assert.NotContains(t, schema, "TEXT[]")
}

func TestListFiles(t *testing.T) {
	s, mock := newMock(t)
	fileID := id.NewFileID()
	at := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tally_processed_files WHERE status = $1 ORDER BY processed_at DESC LIMIT 10")).
		WithArgs("partial").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "filename", "invoice_date", "status", "processed_at", "created_at", "updated_at",
		}).AddRow(fileID.String(), "usage_2024-12-31.csv", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "partial", at, at, at))

	files, err := s.ListFiles(context.Background(), ledger.FileListOpts{Status: ledger.FilePartial, Limit: 10})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "usage_2024-12-31.csv", files[0].Filename)
	assert.Equal(t, 31, files[0].InvoiceDate.Day())
}

func TestUpdateFileStatusNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("UPDATE tally_processed_files SET status").
		WithArgs("completed", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateFileStatus(context.Background(), id.NewFileID(), ledger.FileCompleted)
	assert.ErrorIs(t, err, tally.ErrFileNotFound)
}
