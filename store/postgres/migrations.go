package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tally store.
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_processed_files",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_processed_files (
    id           TEXT PRIMARY KEY,
    filename     TEXT NOT NULL,
    invoice_date DATE,
    status       TEXT NOT NULL DEFAULT 'processing',
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_files_filename ON tally_processed_files (filename);
CREATE INDEX IF NOT EXISTS idx_tally_files_status ON tally_processed_files (status, processed_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_processed_files`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_invoice_creation",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
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
    CONSTRAINT uq_tally_invoice_creation UNIQUE (file_id, customer_identity)
);

CREATE INDEX IF NOT EXISTS idx_tally_records_status ON tally_invoice_creation (file_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_invoice_creation`)
				return err
			},
		},
	)
}
