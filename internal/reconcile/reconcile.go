package reconcile

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"wei/internal"
	"wei/internal/config"
	"wei/internal/llm"
)

// Result is the outcome of reconciling one document against its
// candidate purchase-requirement records.
type Result struct {
	Tasks       []internal.ExecutionTask
	SelectedIDs []string
	Reason      string
	Attempts    int
}

// Engine drives the matching decision: it projects records into the
// reduced view the model sees, runs the decision with retries across
// both backends, and reconstructs index-safe execution tasks from the
// decision.
type Engine struct {
	decider llm.Decider
	cfg     config.Config
	log     *slog.Logger
	sleep   func(time.Duration)
	now     func() time.Time
}

func NewEngine(decider llm.Decider, cfg config.Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		decider: decider,
		cfg:     cfg,
		log:     log,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

var msDatePattern = regexp.MustCompile(`\/Date\((-?\d+)\)\/`)

// decodeCreateTime turns the ERP's /Date(ms)/ envelope into a local
// YYYY-MM-DD string. Non-positive timestamps and missing envelopes
// yield "Unknown"; an unparseable number yields "Invalid".
func decodeCreateTime(raw string) string {
	m := msDatePattern.FindStringSubmatch(raw)
	if m == nil {
		return "Unknown"
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return "Invalid"
	}
	if ms <= 0 {
		return "Unknown"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02")
}

// ProjectRecords reduces raw ERP records to the fields the decision
// prompt carries.
func ProjectRecords(records []internal.SystemRecord) []internal.RecordView {
	views := make([]internal.RecordView, len(records))
	for i, rec := range records {
		views[i] = internal.RecordView{
			ID:                 rec.ID,
			SupplierName:       rec.SupplierName,
			SupplierShortName:  rec.SupplierShortName,
			CreateTimeReadable: decodeCreateTime(rec.CreateTime),
			TotalAmount:        rec.TotalAmount,
			MaterialName:       rec.MaterialName,
			MaterialSpec:       rec.MaterialSpec,
		}
	}
	return views
}

// Reconcile matches the document's line items against records. A
// decision that never reaches status success after MatchMaxRetries
// attempts is a hard stop: empty tasks plus the failure reason.
func (e *Engine) Reconcile(ctx context.Context, doc internal.ExtractedDocument, records []internal.SystemRecord, agent string, deductions map[string]float64) (Result, error) {
	prompt, err := llm.MatchPrompt(llm.MatchPromptInput{
		Document:   doc,
		Records:    ProjectRecords(records),
		Agent:      agent,
		Deductions: deductions,
		Now:        e.now(),
	})
	if err != nil {
		return Result{}, err
	}

	decision, attempts := e.decide(ctx, prompt)
	if decision.Status != internal.DecisionSuccess {
		reason := decision.Reason
		if reason == "" {
			reason = "no reconciliation decision after retries"
		}
		e.log.Warn("reconcile.decide.exhausted",
			"supplier", doc.SupplierName,
			"attempts", attempts,
			"reason", reason,
		)
		return Result{Reason: reason, Attempts: attempts}, nil
	}

	tasks, ids := BuildTasks(decision, doc, records)
	e.log.Info("reconcile.decide.ok",
		"supplier", doc.SupplierName,
		"attempts", attempts,
		"tasks", len(tasks),
		"records_selected", len(ids),
	)
	return Result{Tasks: tasks, SelectedIDs: ids, Attempts: attempts}, nil
}

// decide runs the decision loop: attempt 1 on the primary backend,
// later attempts on the secondary, a fixed delay between attempts,
// early exit on success.
func (e *Engine) decide(ctx context.Context, prompt string) (internal.MatchDecision, int) {
	max := e.cfg.MatchMaxRetries
	if max < 1 {
		max = 1
	}
	delay := time.Duration(e.cfg.MatchRetryDelaySec) * time.Second

	var last internal.MatchDecision
	for attempt := 1; attempt <= max; attempt++ {
		backend := llm.BackendPrimary
		if attempt > 1 {
			backend = llm.BackendSecondary
		}
		decision, err := e.decider.Decide(ctx, prompt, backend)
		if err != nil {
			e.log.Warn("reconcile.decide.attempt_failed", "attempt", attempt, "backend", string(backend), "error", err)
		} else {
			last = decision
			if decision.Status == internal.DecisionSuccess {
				return decision, attempt
			}
			e.log.Warn("reconcile.decide.not_successful", "attempt", attempt, "reason", decision.Reason)
		}
		if attempt < max {
			e.sleep(delay)
		}
	}
	return last, max
}

// BuildTasks reconstructs execution tasks from a decision. Indices that
// fall outside the document's item list and record ids that are not in
// the candidate set are silently skipped; what remains is guaranteed
// consistent. SelectedIDs preserves first-seen order and carries each
// record id once, however many tasks reference it.
func BuildTasks(decision internal.MatchDecision, doc internal.ExtractedDocument, records []internal.SystemRecord) ([]internal.ExecutionTask, []string) {
	recordByID := make(map[string]internal.SystemRecord, len(records))
	for _, rec := range records {
		recordByID[rec.ID] = rec
	}
	itemAt := func(idx int) (internal.LineItem, bool) {
		if idx < 0 || idx >= len(doc.Items) {
			return internal.LineItem{}, false
		}
		return doc.Items[idx], true
	}

	var tasks []internal.ExecutionTask

	for _, m := range decision.Direct {
		rec, okRec := recordByID[m.RecordID]
		item, okItem := itemAt(m.OCRIndex)
		if okRec && okItem {
			tasks = append(tasks, internal.ExecutionTask{
				MatchType: internal.MatchDirect,
				Record:    rec,
				Items:     []internal.LineItem{item},
				Context:   &doc,
			})
		}
	}

	for _, m := range decision.Merge {
		rec, okRec := recordByID[m.RecordID]
		if !okRec {
			continue
		}
		var items []internal.LineItem
		for _, idx := range m.OCRIndices {
			if item, ok := itemAt(idx); ok {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			tasks = append(tasks, internal.ExecutionTask{
				MatchType: internal.MatchMerge,
				Record:    rec,
				Items:     items,
				Context:   &doc,
			})
		}
	}

	for _, m := range decision.Split {
		rec, okRec := recordByID[m.RecordID]
		item, okItem := itemAt(m.OCRIndex)
		if okRec && okItem {
			tasks = append(tasks, internal.ExecutionTask{
				MatchType: internal.MatchSplit,
				Record:    rec,
				Items:     []internal.LineItem{item},
				Context:   &doc,
			})
		}
	}

	seen := make(map[string]struct{}, len(tasks))
	var ids []string
	for _, task := range tasks {
		if task.Record.ID == "" {
			continue
		}
		if _, ok := seen[task.Record.ID]; ok {
			continue
		}
		seen[task.Record.ID] = struct{}{}
		ids = append(ids, task.Record.ID)
	}

	return tasks, ids
}
