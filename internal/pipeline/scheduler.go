package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"wei/internal"
	"wei/internal/config"
	"wei/internal/erp"
	"wei/internal/extract"
	"wei/internal/reconcile"
	"wei/internal/refdata"
	"wei/internal/storage"
)

// RecordSearcher is the slice of the ERP client the scheduler needs.
type RecordSearcher interface {
	SearchRecords(ctx context.Context, styleCode string) ([]internal.SystemRecord, error)
}

// Scheduler runs the two-phase pipeline over a batch of document
// files: a wide extraction phase (vision reads are slow but
// independent) and a narrow execution phase (the ERP dislikes
// concurrent task generation). Every input file ends in exactly one
// DocumentOutcome; one document failing never aborts the batch.
type Scheduler struct {
	db       *storage.DB
	cfg      config.Config
	log      *slog.Logger
	ref      *refdata.Cache
	orch     *extract.Orchestrator
	engine   *reconcile.Engine
	records  RecordSearcher
	executor erp.Executor
}

func NewScheduler(db *storage.DB, cfg config.Config, ref *refdata.Cache, orch *extract.Orchestrator, engine *reconcile.Engine, records RecordSearcher, executor erp.Executor, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		db:       db,
		cfg:      cfg,
		log:      log,
		ref:      ref,
		orch:     orch,
		engine:   engine,
		records:  records,
		executor: executor,
	}
}

type RunSummary struct {
	TraceID  string
	Outcomes []internal.DocumentOutcome
}

type extractedEntry struct {
	path    string
	outcome extract.Outcome
}

// Run processes a batch of intake files. Documents previously finished
// with status success are skipped; earlier failures are retried from
// scratch.
func (s *Scheduler) Run(ctx context.Context, paths []string) (RunSummary, error) {
	traceID := uuid.New().String()
	start := time.Now()
	s.log.Info("pipeline.run.start", "trace_id", traceID, "documents", len(paths))

	styles := s.ref.StyleCodes()
	suppliers, agents := s.ref.Suppliers()
	deductions := s.ref.Deductions()

	outcomes := make([]internal.DocumentOutcome, len(paths))
	extracted := make([]*extractedEntry, len(paths))
	var mu sync.Mutex

	// Phase 1: extraction, wide.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(s.cfg.ExtractConcurrency))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			stem := Stem(path)

			prev, err := s.db.GetDocumentByStem(stem)
			if err == nil && prev != nil && prev.Status == string(internal.StatusSuccess) {
				s.log.Info("pipeline.extract.skip", "trace_id", traceID, "stem", stem)
				mu.Lock()
				outcomes[i] = internal.DocumentOutcome{Source: path, Status: internal.StatusSkipped, Reason: "already processed"}
				mu.Unlock()
				return nil
			}

			var seeds []internal.StyleCandidate
			if strings.EqualFold(Ext(path), ".pdf") {
				seeds = ProbePDFStyleCandidates(path, s.log)
			}

			out := s.orch.Run(gctx, path, styles, suppliers, seeds)
			mu.Lock()
			extracted[i] = &extractedEntry{path: path, outcome: out}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Phase 2: reconciliation and execution, narrow.
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(limit(s.cfg.ExecuteConcurrency))
	for i := range extracted {
		i := i
		entry := extracted[i]
		if entry == nil {
			continue
		}
		eg.Go(func() error {
			outcome := s.runOne(ectx, traceID, entry, agents, deductions)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			s.persistOutcome(entry, outcome)
			return nil
		})
	}
	_ = eg.Wait()

	counts := map[string]int{"documents": len(paths)}
	for _, o := range outcomes {
		counts[string(o.Status)]++
		counts["tasks"] += o.TaskCount
	}
	timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
	if err := s.db.InsertRun(traceID, timings, counts); err != nil {
		s.log.Warn("pipeline.run.persist_run_failed", "trace_id", traceID, "error", err)
	}

	s.log.Info("pipeline.run.done",
		"trace_id", traceID,
		"documents", len(paths),
		"success", counts[string(internal.StatusSuccess)],
		"tasks", counts["tasks"],
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return RunSummary{TraceID: traceID, Outcomes: outcomes}, nil
}

func limit(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func (s *Scheduler) runOne(ctx context.Context, traceID string, entry *extractedEntry, agents map[string]string, deductions map[string]float64) internal.DocumentOutcome {
	ex := entry.outcome
	outcome := internal.DocumentOutcome{
		Source:       entry.path,
		Status:       ex.Status,
		Reason:       ex.Reason,
		Style:        ex.Style,
		Supplier:     ex.Supplier,
		Agent:        agents[ex.Supplier],
		DeliveryDate: ex.Document.DeliveryDate,
		RetryCount:   ex.RetryCount,
	}
	if ex.Status != internal.StatusSuccess {
		return outcome
	}

	records, err := s.records.SearchRecords(ctx, ex.Style)
	if err != nil {
		s.log.Error("pipeline.execute.search_failed", "trace_id", traceID, "style", ex.Style, "error", err)
		outcome.Status = internal.StatusReconcileFailed
		outcome.Reason = fmt.Sprintf("record search failed: %v", err)
		return outcome
	}
	if len(records) == 0 {
		outcome.Status = internal.StatusReconcileFailed
		outcome.Reason = "no purchase-requirement records for style"
		return outcome
	}

	res, err := s.engine.Reconcile(ctx, ex.Document, records, outcome.Agent, deductions)
	if err != nil {
		outcome.Status = internal.StatusReconcileFailed
		outcome.Reason = err.Error()
		return outcome
	}
	if len(res.Tasks) == 0 {
		outcome.Status = internal.StatusReconcileFailed
		outcome.Reason = res.Reason
		return outcome
	}

	if err := s.executor.Execute(ctx, res.Tasks, res.SelectedIDs); err != nil {
		s.log.Error("pipeline.execute.failed", "trace_id", traceID, "source", entry.path, "error", err)
		outcome.Status = internal.StatusExecutionFailed
		outcome.Reason = err.Error()
		return outcome
	}

	outcome.TaskCount = len(res.Tasks)
	return outcome
}

func (s *Scheduler) persistOutcome(entry *extractedEntry, outcome internal.DocumentOutcome) {
	docJSON, _ := json.Marshal(entry.outcome.Document)
	row := internal.DocumentRow{
		Stem:         Stem(entry.path),
		SourcePath:   entry.path,
		Status:       string(outcome.Status),
		Reason:       outcome.Reason,
		Style:        outcome.Style,
		Supplier:     outcome.Supplier,
		Agent:        outcome.Agent,
		DeliveryDate: outcome.DeliveryDate,
		DocJSON:      string(docJSON),
		TaskCount:    outcome.TaskCount,
		RetryCount:   outcome.RetryCount,
	}
	if err := s.db.UpsertDocument(row); err != nil {
		s.log.Error("pipeline.execute.persist_failed", "stem", row.Stem, "error", err)
	}
}
