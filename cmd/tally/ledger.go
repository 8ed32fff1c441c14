package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/tally/ledger"
)

func newLedgerCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the emission ledger",
	}
	cmd.AddCommand(newLedgerFilesCmd(g), newLedgerRecordsCmd(g))
	return cmd
}

func newLedgerFilesCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List processed usage reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, _, err := g.ledgerEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = t.Stop(cmd.Context()) }()

			files, err := t.ListFiles(cmd.Context(), ledger.FileListOpts{Limit: limit})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tFILENAME\tINVOICE DATE\tSTATUS\tPROCESSED AT\n")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Filename,
					f.InvoiceDate.Format("2006-01-02"), f.Status, f.ProcessedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum files to list")
	return cmd
}

func newLedgerRecordsCmd(g *globals) *cobra.Command {
	var (
		file   string
		status string
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the per-customer emission records of a report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, _, err := g.ledgerEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = t.Stop(cmd.Context()) }()

			recs, err := t.ListRecords(cmd.Context(), file, ledger.ListOpts{Status: ledger.Status(status)})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "CUSTOMER\tCONTACT\tSTATUS\tAMOUNT\tINVOICE\tRUN\tERROR\n")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Customer, r.ContactName,
					r.Status, r.Amount, r.InvoiceNumber, r.RunID, r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "report filename")
	cmd.Flags().StringVar(&status, "status", "", "only records in this status (pending|created|failed)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
