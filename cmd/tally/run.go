package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xraph/tally"
	audithook "github.com/xraph/tally/audit_hook"
	"github.com/xraph/tally/observability"
)

type runFlags struct {
	report      string
	dryRun      bool
	audit       bool
	metricsFile string
	output      string
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Invoice every billable customer of a usage report",
		Long: "Reads a carrier usage report named like usage_YYYY-MM-DD.csv and creates one draft\n" +
			"invoice per billable customer. Customers already invoiced for the report are skipped,\n" +
			"so the command is safe to re-run. Exits 1 when any customer failed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, g, f)
		},
	}

	cmd.Flags().StringVar(&f.report, "report", "", "usage report CSV")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "plan invoices without writing anything")
	cmd.Flags().BoolVar(&f.audit, "audit", false, "log an audit event for every run and invoice")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "summary format: text|json")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func runReport(cmd *cobra.Command, g *globals, f *runFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	opts := []tally.Option{tally.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)))}
	if f.dryRun {
		opts = append(opts, tally.WithDryRun(true))
	}

	t, logger, err := g.engine(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = t.Stop(context.WithoutCancel(ctx)) }()

	if f.audit {
		if err := t.Plugins().Register(audithook.New(slogRecorder(logger), audithook.WithLogger(logger))); err != nil {
			return err
		}
	}

	sum, runErr := t.RunFile(ctx, f.report)
	if sum != nil {
		if err := printSummary(cmd.OutOrStdout(), sum, f.output); err != nil {
			return err
		}
	}

	if f.metricsFile != "" {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			logger.Error("write metrics", "path", f.metricsFile, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if sum.HasFailures() || !sum.Complete() {
		return exitError{msg: "run finished with failed or unfinished customers"}
	}
	return nil
}

func slogRecorder(logger *slog.Logger) audithook.RecorderFunc {
	return func(ctx context.Context, e *audithook.AuditEvent) error {
		attrs := []any{
			"action", e.Action,
			"resource", e.Resource,
			"resource_id", e.ResourceID,
			"outcome", e.Outcome,
		}
		for k, v := range e.Metadata {
			attrs = append(attrs, k, v)
		}
		logger.InfoContext(ctx, "audit", attrs...)
		return nil
	}
}

func printSummary(w io.Writer, sum *tally.Summary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CUSTOMER\tCONTACT\tOUTCOME\tAMOUNT\tINVOICE\tERROR\n")
	for _, r := range sum.Results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Customer, r.ContactName, r.Outcome, r.Amount, r.InvoiceNumber, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	mode := ""
	if sum.DryRun {
		mode = " (dry run)"
	}
	_, err := fmt.Fprintf(w, "\n%s%s: invoice date %s, %d processed, %d already invoiced, %d failed, %d parse errors\n",
		sum.Filename, mode, sum.InvoiceDate.Format("2006-01-02"),
		sum.Count(tally.OutcomeProcessed), sum.Count(tally.OutcomeAlreadyInvoiced),
		sum.Count(tally.OutcomeFailed), len(sum.ParseErrors))
	return err
}
