package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"wei/internal"
	"wei/internal/config"
	"wei/internal/llm"
	"wei/internal/refdata"
)

type scriptedCall struct {
	doc     internal.ExtractedDocument
	err     error
	backend llm.Backend
}

// scriptedExtractor returns queued responses in order and records the
// backend each call asked for.
type scriptedExtractor struct {
	queue    []scriptedCall
	backends []llm.Backend
}

func (s *scriptedExtractor) Extract(_ context.Context, _ string, _ string, backend llm.Backend) (internal.ExtractedDocument, error) {
	s.backends = append(s.backends, backend)
	if len(s.queue) == 0 {
		return internal.ExtractedDocument{}, errors.New("script exhausted")
	}
	call := s.queue[0]
	s.queue = s.queue[1:]
	return call.doc, call.err
}

func testCfg() config.Config {
	return config.Config{
		ValidStylePrefixes:    []string{"T", "H", "X", "D"},
		FallbackStylePrefixes: []string{"T", "H", "X", "D", "L", "S", "F"},
		DateThresholdDays:     7,
		StyleMaxRetries:       3,
	}
}

func goodDoc(supplier, style, date string) internal.ExtractedDocument {
	return internal.ExtractedDocument{
		DeliveryDate:    date,
		SupplierName:    supplier,
		StyleCandidates: []internal.StyleCandidate{{Text: style, Position: "表格内"}},
		Items:           []internal.LineItem{{Qty: 10, Unit: "米", RawStyleText: style}},
	}
}

func newTestOrchestrator(fake *scriptedExtractor) *Orchestrator {
	o := NewOrchestrator(fake, testCfg(), nil)
	o.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local) }
	return o
}

func TestRunHappyPath(t *testing.T) {
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: goodDoc("罗卡", "T8821", "2026-03-14")},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet([]string{"T8821"}), refdata.NewSet([]string{"罗卡"}), nil)

	if out.Status != internal.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", out.Status, out.Reason)
	}
	if out.Style != "T8821" || out.Supplier != "罗卡" {
		t.Errorf("got style=%q supplier=%q", out.Style, out.Supplier)
	}
	if out.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", out.RetryCount)
	}
	if len(fake.backends) != 1 || fake.backends[0] != llm.BackendPrimary {
		t.Errorf("backends = %v, want one primary call", fake.backends)
	}
}

func TestRunSupplierSalvage(t *testing.T) {
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: goodDoc("完全未知商家", "T8821", "2026-03-14")},
		{doc: goodDoc("杭州罗卡", "H1635", "2026-03-14")},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet([]string{"T8821", "H1635"}), refdata.NewSet([]string{"罗卡"}), nil)

	if out.Status != internal.StatusSuccess {
		t.Fatalf("status = %s (%s), want success after salvage", out.Status, out.Reason)
	}
	if out.Supplier != "罗卡" {
		t.Errorf("supplier = %q, want 罗卡", out.Supplier)
	}
	// Salvage replaces the whole document, so the style is re-resolved
	// from the second read.
	if out.Style != "H1635" {
		t.Errorf("style = %q, want H1635 from salvage read", out.Style)
	}
	if len(fake.backends) != 2 || fake.backends[1] != llm.BackendSecondary {
		t.Errorf("backends = %v, want primary then secondary", fake.backends)
	}
}

func TestRunSupplierSalvageFails(t *testing.T) {
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: goodDoc("完全未知商家", "T8821", "2026-03-14")},
		{doc: goodDoc("还是未知商家", "T8821", "2026-03-14")},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet([]string{"T8821"}), refdata.NewSet([]string{"罗卡"}), nil)

	if out.Status != internal.StatusSupplierUnresolved {
		t.Fatalf("status = %s, want supplier_unresolved", out.Status)
	}
	if out.Style != "T8821" {
		t.Errorf("partial outcome should keep the resolved style, got %q", out.Style)
	}
}

func TestRunDateRecheckMergesDateOnly(t *testing.T) {
	// First read resolves supplier but carries a date months off.
	// The re-read has a sane date but an unknown supplier, so only the
	// date field is adopted.
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: goodDoc("罗卡", "T8821", "2025-03-14")},
		{doc: goodDoc("未知商家", "H9999", "2026-03-14")},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet([]string{"T8821"}), refdata.NewSet([]string{"罗卡"}), nil)

	if out.Status != internal.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", out.Status, out.Reason)
	}
	if out.Document.DeliveryDate != "2026-03-14" {
		t.Errorf("delivery date = %q, want the re-read date", out.Document.DeliveryDate)
	}
	if out.Style != "T8821" || out.Supplier != "罗卡" {
		t.Errorf("original style/supplier must survive a date-only merge, got %q/%q", out.Style, out.Supplier)
	}
}

func TestRunDateRecheckFullAdoption(t *testing.T) {
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: goodDoc("罗卡", "T8821", "2026/01/02")},
		{doc: goodDoc("素本服饰", "H1635", "2026-03-14")},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet([]string{"T8821", "H1635"}), refdata.NewSet([]string{"罗卡", "素本服饰"}), nil)

	if out.Status != internal.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", out.Status, out.Reason)
	}
	if out.Supplier != "素本服饰" || out.Style != "H1635" {
		t.Errorf("re-read with resolvable supplier should replace the document, got %q/%q", out.Supplier, out.Style)
	}
}

func TestRunStyleRetrySucceeds(t *testing.T) {
	// Initial read yields no candidate a valid style can come from;
	// second retry produces a valid one.
	noStyle := goodDoc("罗卡", "99999", "2026-03-14")
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: noStyle},
		{doc: noStyle},
		{doc: goodDoc("罗卡", "T8821", "2026-03-14")},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet([]string{"T8821"}), refdata.NewSet([]string{"罗卡"}), nil)

	if out.Status != internal.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", out.Status, out.Reason)
	}
	if out.Style != "T8821" {
		t.Errorf("style = %q, want T8821", out.Style)
	}
	if out.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", out.RetryCount)
	}
	for i, b := range fake.backends[1:] {
		if b != llm.BackendSecondary {
			t.Errorf("retry call %d used backend %s, want secondary", i+1, b)
		}
	}
}

func TestRunStyleRetryExhausted(t *testing.T) {
	noStyle := goodDoc("罗卡", "99999", "2026-03-14")
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: noStyle}, {doc: noStyle}, {doc: noStyle}, {doc: noStyle},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet([]string{"T8821"}), refdata.NewSet([]string{"罗卡"}), nil)

	if out.Status != internal.StatusStyleUnresolved {
		t.Fatalf("status = %s, want style_unresolved", out.Status)
	}
	if out.RetryCount != 4 {
		t.Errorf("retry count = %d, want 4 (initial + 3 retries)", out.RetryCount)
	}
	if out.Supplier != "罗卡" {
		t.Errorf("partial outcome should keep the supplier, got %q", out.Supplier)
	}
	if len(fake.backends) != 4 {
		t.Errorf("calls = %d, want 4", len(fake.backends))
	}
}

func TestRunInitialExtractionError(t *testing.T) {
	fake := &scriptedExtractor{queue: []scriptedCall{
		{err: errors.New("backend down")},
	}}
	o := newTestOrchestrator(fake)

	out := o.Run(context.Background(), "a.jpg", refdata.NewSet(nil), refdata.NewSet(nil), nil)
	if out.Status != internal.StatusExtractionFailed {
		t.Fatalf("status = %s, want extraction_failed", out.Status)
	}
}

func TestRunSeedCandidatesWin(t *testing.T) {
	// A text-layer probe seeds a grid candidate the vision read missed.
	fake := &scriptedExtractor{queue: []scriptedCall{
		{doc: goodDoc("罗卡", "99999", "2026-03-14")},
	}}
	o := newTestOrchestrator(fake)

	seeds := []internal.StyleCandidate{{Text: "T8821", Position: "表格内"}}
	out := o.Run(context.Background(), "a.pdf", refdata.NewSet([]string{"T8821"}), refdata.NewSet([]string{"罗卡"}), seeds)

	if out.Status != internal.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", out.Status, out.Reason)
	}
	if out.Style != "T8821" {
		t.Errorf("style = %q, want seeded T8821", out.Style)
	}
}
