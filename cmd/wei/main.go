package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wei/internal"
	"wei/internal/config"
	"wei/internal/connectors"
	imapconnector "wei/internal/connectors/imap"
	"wei/internal/erp"
	"wei/internal/extract"
	"wei/internal/listener"
	"wei/internal/llm"
	"wei/internal/pipeline"
	"wei/internal/reconcile"
	"wei/internal/refdata"
	"wei/internal/storage"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "optional report xlsx path")
		_ = fs.Parse(os.Args[2:])

		paths, err := pipeline.ScanIntakeDir(cfg.IntakeDir)
		must(err)
		if len(paths) == 0 {
			fmt.Println("intake directory is empty, nothing to do")
			return
		}

		sched := buildScheduler(db, cfg, log)
		summary, err := sched.Run(context.Background(), paths)
		must(err)

		if strings.TrimSpace(*out) != "" {
			must(pipeline.ExportOutcomesToXLSX(summary.Outcomes, *out))
		}
		printSummary(summary)
	case "process:one":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		_ = fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			must(fmt.Errorf("usage: wei process:one FILE"))
		}
		path := fs.Arg(0)
		if _, err := os.Stat(path); err != nil {
			must(err)
		}

		sched := buildScheduler(db, cfg, log)
		summary, err := sched.Run(context.Background(), []string{path})
		must(err)
		printSummary(summary)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		target := strings.TrimSpace(*out)
		if target == "" {
			target = filepath.Join(cfg.OutputDir, fmt.Sprintf("documents_%s.xlsx", time.Now().Format("20060102_150405")))
		}

		rows, err := db.ListDocuments()
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no processed documents to export"))
		}
		outcomes := rowsToOutcomes(rows)
		must(pipeline.ExportOutcomesToXLSX(outcomes, target))
		fmt.Printf("exported %d documents to %s\n", len(outcomes), target)
	case "refdata:show":
		ref := refdata.NewCache(cfg, log)
		styles := ref.StyleCodes()
		suppliers, agents := ref.Suppliers()
		deductions := ref.Deductions()
		fmt.Printf("styles: %d\n", styles.Len())
		fmt.Printf("suppliers: %d (agents mapped: %d)\n", suppliers.Len(), len(agents))
		fmt.Printf("deductions: %d\n", len(deductions))
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", cfg.MailListenerFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])

		conn, err := imapconnector.NewConnector(cfg)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, cfg.IntakeDir, conn, log)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done fetched=%d stored=%d attachments=%d\n", result.Fetched, result.Stored, result.Attachments)
	case "mail:listen":
		s := listener.NewService(db, cfg, buildScheduler(db, cfg, log), log)
		must(s.Run(context.Background()))
	default:
		usage()
		os.Exit(1)
	}
}

func buildScheduler(db *storage.DB, cfg config.Config, log *slog.Logger) *pipeline.Scheduler {
	client := llm.NewClient(cfg, log)
	ref := refdata.NewCache(cfg, log)
	orch := extract.NewOrchestrator(client, cfg, log)
	engine := reconcile.NewEngine(client, cfg, log)
	records := erp.NewClient(cfg, log)
	executor := erp.NewLogExecutor(log)
	return pipeline.NewScheduler(db, cfg, ref, orch, engine, records, executor, log)
}

func printSummary(summary pipeline.RunSummary) {
	for _, o := range summary.Outcomes {
		line := fmt.Sprintf("%s: %s", filepath.Base(o.Source), o.Status)
		if o.Style != "" {
			line += fmt.Sprintf(" style=%s", o.Style)
		}
		if o.Supplier != "" {
			line += fmt.Sprintf(" supplier=%s", o.Supplier)
		}
		if o.TaskCount > 0 {
			line += fmt.Sprintf(" tasks=%d", o.TaskCount)
		}
		if o.Reason != "" {
			line += fmt.Sprintf(" (%s)", o.Reason)
		}
		fmt.Println(line)
	}
}

func rowsToOutcomes(rows []internal.DocumentRow) []internal.DocumentOutcome {
	out := make([]internal.DocumentOutcome, len(rows))
	for i, row := range rows {
		out[i] = internal.DocumentOutcome{
			Source:       row.SourcePath,
			Status:       internal.DocumentStatus(row.Status),
			Reason:       row.Reason,
			Style:        row.Style,
			Supplier:     row.Supplier,
			Agent:        row.Agent,
			DeliveryDate: row.DeliveryDate,
			TaskCount:    row.TaskCount,
			RetryCount:   row.RetryCount,
		}
	}
	return out
}

func usage() {
	fmt.Println("usage: wei <command>")
	fmt.Println("commands:")
	fmt.Println("  run [--out=./out/report.xlsx]")
	fmt.Println("  process:one FILE")
	fmt.Println("  export:xlsx [--out=./out/report.xlsx]")
	fmt.Println("  refdata:show")
	fmt.Println("  mail:fetch [--label=INBOX] [--max=20]")
	fmt.Println("  mail:listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
