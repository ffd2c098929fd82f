// Command reco reconciles GSTR-2B against purchase books from the terminal.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/archive"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/normalizer"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/service"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/workbook"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runReconcile(ctx, log, os.Args[2:], os.Stdout)
	case "template":
		err = runTemplate(log, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		cancel()
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "GST 2B vs Books reconciler")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  reco <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  run       Reconcile a workbook with GSTR_2B and BOOKS sheets")
	fmt.Fprintln(w, "  template  Write a blank input workbook")
	fmt.Fprintln(w, "  history   List archived reconciliation snapshots")
	fmt.Fprintln(w, "  help      Show this help message")
	fmt.Fprintln(w, "\nRun 'reco <command> -h' for more information on a command.")
}

func runReconcile(ctx context.Context, log zerolog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	in := fs.String("in", "", "input workbook with GSTR_2B and BOOKS sheets")
	out := fs.String("out", "", "path of the annotated output workbook")
	historyDir := fs.String("history", "", "also archive the output under this directory")
	tolerance := fs.String("tolerance", "1", "absolute amount tolerance in rupees")
	synonyms := fs.String("synonyms", "", "YAML file with extra header synonyms")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *in == "" || *out == "" {
		return errors.New("usage: reco run -in FILE -out FILE [-history DIR] [-tolerance N] [-synonyms FILE]")
	}

	tol, err := decimal.NewFromString(*tolerance)
	if err != nil || tol.IsNegative() {
		return fmt.Errorf("invalid -tolerance %q", *tolerance)
	}

	var extra map[string]string
	if *synonyms != "" {
		if extra, err = normalizer.LoadSynonyms(*synonyms); err != nil {
			return err
		}
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	regulator, books, err := workbook.Read(f)
	if err != nil {
		return err
	}

	opts := service.Options{Normalizer: normalizer.New(extra)}.WithTolerance(tol)
	result, err := service.Run(regulator, books, opts)
	if err != nil {
		return err
	}

	if result.Summary.CoercedCells > 0 {
		log.Warn().Int("coerced_cells", result.Summary.CoercedCells).
			Msg("non-numeric amounts were treated as zero")
	}
	for _, w := range result.Warnings {
		log.Warn().Str("invoice_key", w.InvoiceKey).Msg(w.String())
	}

	var buf bytes.Buffer
	if err := workbook.Write(&buf, result.Regulator, result.Books); err != nil {
		return err
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.Info().Str("file", *out).Msg("wrote reconciliation workbook")

	if *historyDir != "" {
		store, err := archive.NewFileStore(*historyDir)
		if err != nil {
			return err
		}
		location, err := store.Save(ctx, archive.SnapshotName(time.Now(), uuid.New()), buf.Bytes())
		if err != nil {
			return err
		}
		log.Info().Str("location", location).Msg("archived snapshot")
	}

	printSummary(stdout, result.Summary)
	return nil
}

func printSummary(w io.Writer, s service.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\n=== Reconciliation Summary ===")
	fmt.Fprintf(tw, "Books invoices:\t%d\n", s.Total)
	fmt.Fprintf(tw, "Matched:\t%d\n", s.Matched)
	fmt.Fprintf(tw, "Unmatched:\t%d\n", s.Unmatched)
	fmt.Fprintf(tw, "Match %%:\t%s\n", s.MatchPercent.StringFixed(2))
	fmt.Fprintf(tw, "GSTR-2B matched:\t%d / %d\n", s.RegulatorMatched, s.RegulatorTotal)
	fmt.Fprintf(tw, "Tolerance:\t%s\n", s.Tolerance.String())
	fmt.Fprintf(tw, "Elapsed:\t%s\n", s.Elapsed.Round(time.Millisecond))
	tw.Flush()
}

func runTemplate(log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("template", flag.ContinueOnError)
	out := fs.String("out", "GST_Reco_Template.xlsx", "path of the template workbook")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := workbook.Template(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	log.Info().Str("file", *out).Msg("wrote template")
	return nil
}

func runHistory(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	dir := fs.String("dir", archive.DefaultDir, "snapshot directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := archive.NewFileStore(*dir)
	if err != nil {
		return err
	}
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No snapshots yet.")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.SizeBytes, e.ModTime.Format(time.RFC3339))
	}
	return tw.Flush()
}
