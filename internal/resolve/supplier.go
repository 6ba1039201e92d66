package resolve

import (
	"log/slog"
	"strings"

	"wei/internal/refdata"
	"wei/internal/util"
)

// corporateSuffixes are generic tokens stripped before the cleaned
// containment check.
var corporateSuffixes = []string{"商行", "有限公司", "布行"}

// supplierConfusions covers a small set of visually or phonetically
// confusable characters seen in handwritten supplier names. Each swap
// is re-checked against the containment tiers.
var supplierConfusions = []struct{ wrong, right string }{
	{"家", "嘉"},
	{"嘉", "家"},
	{"州", "洲"},
	{"洲", "州"},
	{"记", "纪"},
	{"纪", "记"},
	{"明", "铭"},
	{"铭", "明"},
}

type SupplierResolver struct {
	log *slog.Logger
}

func NewSupplierResolver(log *slog.Logger) *SupplierResolver {
	if log == nil {
		log = slog.Default()
	}
	return &SupplierResolver{log: log}
}

// Resolve maps a free-text supplier name to a canonical name from the
// approved directory, or returns "" to signal the caller to escalate.
func (r *SupplierResolver) Resolve(raw string, suppliers *refdata.Set) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || suppliers.Len() == 0 {
		return ""
	}

	if suppliers.Contains(raw) {
		r.log.Debug("resolve.supplier.exact", "name", raw)
		return raw
	}

	if hit := containmentMatch(raw, suppliers); hit != "" {
		r.log.Debug("resolve.supplier.containment", "raw", raw, "resolved", hit)
		return hit
	}

	for _, sub := range supplierConfusions {
		if !strings.Contains(raw, sub.wrong) {
			continue
		}
		swapped := strings.Replace(raw, sub.wrong, sub.right, 1)
		if suppliers.Contains(swapped) {
			r.log.Debug("resolve.supplier.confusion_swap", "raw", raw, "resolved", swapped)
			return swapped
		}
		if hit := containmentMatch(swapped, suppliers); hit != "" {
			r.log.Debug("resolve.supplier.confusion_swap", "raw", raw, "resolved", hit)
			return hit
		}
	}

	best := ""
	minDist := -1
	for _, ref := range suppliers.Values() {
		dist := util.Levenshtein(raw, ref)
		if float64(dist) > distanceThreshold(raw, ref) {
			continue
		}
		if minDist < 0 || dist < minDist {
			minDist = dist
			best = ref
		}
	}
	if best != "" {
		r.log.Info("resolve.supplier.edit_distance", "raw", raw, "resolved", best, "distance", minDist)
	}
	return best
}

// distanceThreshold is length-proportional: short names tolerate one
// character, longer names 40% of the longer length.
func distanceThreshold(a, b string) float64 {
	length := util.RuneLen(a)
	if l := util.RuneLen(b); l > length {
		length = l
	}
	if length <= 3 {
		return 1
	}
	return float64(length) * 0.4
}

// containmentMatch runs the bidirectional substring tier. Reference
// names shorter than 2 runes never match through it.
func containmentMatch(raw string, suppliers *refdata.Set) string {
	clean := raw
	for _, suffix := range corporateSuffixes {
		clean = strings.ReplaceAll(clean, suffix, "")
	}
	clean = strings.TrimSpace(clean)

	for _, ref := range suppliers.Values() {
		if strings.Contains(ref, raw) {
			return ref
		}
		if util.RuneLen(ref) >= 2 && strings.Contains(raw, ref) {
			return ref
		}
		if util.RuneLen(ref) >= 2 && ref == clean {
			return ref
		}
	}
	return ""
}
