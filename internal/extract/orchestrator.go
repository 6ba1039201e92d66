package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"wei/internal"
	"wei/internal/config"
	"wei/internal/llm"
	"wei/internal/refdata"
	"wei/internal/resolve"
)

// Outcome is the terminal result of reading one document image.
type Outcome struct {
	Document   internal.ExtractedDocument
	Style      string
	Supplier   string
	Status     internal.DocumentStatus
	Reason     string
	RetryCount int
}

// Orchestrator runs the full read-resolve-retry flow for one document:
// initial extraction on the primary backend, a salvage re-read on the
// secondary backend when the supplier cannot be resolved, a corrective
// re-read when the delivery date deviates too far from today, and up to
// StyleMaxRetries re-reads when no valid style code emerges.
type Orchestrator struct {
	extractor llm.Extractor
	styles    *resolve.StyleResolver
	suppliers *resolve.SupplierResolver
	cfg       config.Config
	log       *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(extractor llm.Extractor, cfg config.Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		extractor: extractor,
		styles:    resolve.NewStyleResolver(cfg.FallbackStylePrefixes, log),
		suppliers: resolve.NewSupplierResolver(log),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Run reads one image. seedCandidates, when non-nil, are merged ahead
// of the model's own candidate pool (PDF text-layer probes land here).
func (o *Orchestrator) Run(ctx context.Context, imagePath string, styles *refdata.Set, suppliers *refdata.Set, seedCandidates []internal.StyleCandidate) Outcome {
	instructions := llm.ExtractionPrompt(suppliers.Values())

	doc, err := o.extractor.Extract(ctx, imagePath, instructions, llm.BackendPrimary)
	if err != nil {
		o.log.Error("extract.run.initial_failed", "image", imagePath, "error", err)
		return Outcome{Status: internal.StatusExtractionFailed, Reason: err.Error(), RetryCount: 1}
	}
	if len(seedCandidates) > 0 {
		doc.StyleCandidates = append(append([]internal.StyleCandidate{}, seedCandidates...), doc.StyleCandidates...)
	}

	style := o.styles.Resolve(doc.StyleCandidates, styles)
	doc.FinalStyle = style

	// Supplier resolution, with one salvage re-read on the alternate
	// backend before giving up.
	supplier := o.suppliers.Resolve(doc.SupplierName, suppliers)
	if supplier == "" {
		o.log.Warn("extract.run.supplier_unresolved", "image", imagePath, "raw", doc.SupplierName)
		salvage, sErr := o.extractor.Extract(ctx, imagePath, instructions, llm.BackendSecondary)
		salvaged := false
		if sErr == nil {
			if name := o.suppliers.Resolve(salvage.SupplierName, suppliers); name != "" {
				doc = salvage
				doc.SupplierName = name
				supplier = name
				style = o.styles.Resolve(doc.StyleCandidates, styles)
				doc.FinalStyle = style
				salvaged = true
				o.log.Info("extract.run.supplier_salvaged", "image", imagePath, "supplier", name)
			}
		}
		if !salvaged {
			return Outcome{
				Document:   doc,
				Style:      style,
				Status:     internal.StatusSupplierUnresolved,
				Reason:     "supplier not recognized after salvage re-read",
				RetryCount: 1,
			}
		}
	} else {
		doc.SupplierName = supplier
	}

	// A delivery date far from today usually means a misread digit.
	// One corrective re-read; adopt it fully only when its supplier
	// still resolves, otherwise take just the date.
	if doc.DeliveryDate != "" && o.dateDeviates(doc.DeliveryDate) {
		o.log.Warn("extract.run.date_deviation", "image", imagePath, "delivery_date", doc.DeliveryDate)
		recheck, rErr := o.extractor.Extract(ctx, imagePath, instructions, llm.BackendSecondary)
		if rErr == nil {
			if name := o.suppliers.Resolve(recheck.SupplierName, suppliers); name != "" {
				doc = recheck
				doc.SupplierName = name
				supplier = name
				style = o.styles.Resolve(doc.StyleCandidates, styles)
				doc.FinalStyle = style
			} else {
				doc.DeliveryDate = recheck.DeliveryDate
			}
		}
	}

	// Style retries: only a style with a valid prefix AND a resolvable
	// supplier is accepted as a replacement.
	retryCount := 1
	if !o.validStyle(style) {
		for attempt := 1; attempt <= o.cfg.StyleMaxRetries; attempt++ {
			retryCount = attempt + 1
			o.log.Info("extract.run.style_retry", "image", imagePath, "attempt", attempt)
			retry, rErr := o.extractor.Extract(ctx, imagePath, instructions, llm.BackendSecondary)
			if rErr != nil {
				o.log.Warn("extract.run.style_retry_failed", "image", imagePath, "attempt", attempt, "error", rErr)
				continue
			}
			retryStyle := o.styles.Resolve(retry.StyleCandidates, styles)
			if !o.validStyle(retryStyle) {
				continue
			}
			name := o.suppliers.Resolve(retry.SupplierName, suppliers)
			if name == "" {
				o.log.Warn("extract.run.style_retry_supplier_miss", "image", imagePath, "attempt", attempt)
				continue
			}
			doc = retry
			doc.FinalStyle = retryStyle
			doc.SupplierName = name
			style = retryStyle
			supplier = name
			break
		}
	}

	if !o.validStyle(style) {
		o.log.Error("extract.run.style_unresolved", "image", imagePath, "style", style)
		return Outcome{
			Document:   doc,
			Style:      style,
			Supplier:   supplier,
			Status:     internal.StatusStyleUnresolved,
			Reason:     "no valid style code after retries",
			RetryCount: retryCount,
		}
	}

	return Outcome{
		Document:   doc,
		Style:      style,
		Supplier:   supplier,
		Status:     internal.StatusSuccess,
		RetryCount: retryCount,
	}
}

func (o *Orchestrator) validStyle(style string) bool {
	if style == "" {
		return false
	}
	upper := strings.ToUpper(style)
	for _, prefix := range o.cfg.ValidStylePrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

var dateLayouts = []string{"2006/01/02", "01/02/2006", "02/01/2006", "2006.01.02"}

// dateDeviates reports whether the extracted delivery date is more than
// DateThresholdDays away from today. Unparseable dates do not trigger a
// re-read.
func (o *Orchestrator) dateDeviates(raw string) bool {
	raw = strings.TrimSpace(raw)
	var parsed time.Time
	if len(raw) == 10 && strings.Count(raw, "-") == 2 {
		p, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return false
		}
		parsed = p
	} else {
		ok := false
		for _, layout := range dateLayouts {
			if p, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
				parsed = p
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	y, m, d := o.now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	days := int(today.Sub(parsed).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days > o.cfg.DateThresholdDays
}
