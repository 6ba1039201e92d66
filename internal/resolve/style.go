package resolve

import (
	"log/slog"
	"strings"

	"wei/internal"
	"wei/internal/refdata"
	"wei/internal/util"
)

// ocrConfusions maps glyphs the vision models commonly misread inside
// style codes. Order matters: substitutions are tried one at a time and
// re-checked against the reference set.
var ocrConfusions = []struct{ wrong, right string }{
	{"J", "1"},
	{"O", "0"},
	{"I", "1"},
	{"S", "5"},
	{"Z", "2"},
}

type StyleResolver struct {
	fallbackPrefixes []string
	log              *slog.Logger
}

func NewStyleResolver(fallbackPrefixes []string, log *slog.Logger) *StyleResolver {
	if log == nil {
		log = slog.Default()
	}
	return &StyleResolver{fallbackPrefixes: fallbackPrefixes, log: log}
}

// Resolve picks the canonical style code out of a candidate pool.
// Tier order: in-grid candidates present in the reference set win over
// red-font candidates present in the set, which win over the prefix
// fallback. Each tier scans candidates in their original order.
func (r *StyleResolver) Resolve(candidates []internal.StyleCandidate, styles *refdata.Set) string {
	if len(candidates) == 0 {
		return ""
	}

	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		if strings.Contains(c.Position, "表格") && styles.Contains(text) {
			resolved := r.Canonicalize(text, styles)
			r.log.Debug("resolve.style.grid_hit", "text", text, "resolved", resolved)
			return resolved
		}
	}

	for _, c := range candidates {
		if !c.IsRed {
			continue
		}
		text := strings.TrimSpace(c.Text)
		if styles.Contains(text) {
			resolved := r.Canonicalize(text, styles)
			r.log.Debug("resolve.style.red_hit", "text", text, "resolved", resolved)
			return resolved
		}
	}

	for _, c := range candidates {
		text := strings.ToUpper(strings.TrimSpace(c.Text))
		if hasAnyPrefix(text, r.fallbackPrefixes) {
			resolved := r.Canonicalize(text, styles)
			r.log.Debug("resolve.style.prefix_fallback", "text", text, "resolved", resolved)
			return resolved
		}
	}

	return ""
}

// Canonicalize cleans one candidate against the reference set. Callers
// must re-validate the last-resort variant with the valid-prefix rule
// before accepting it as final.
func (r *StyleResolver) Canonicalize(text string, styles *refdata.Set) string {
	if text == "" {
		return text
	}

	if styles.Contains(text) {
		return text
	}

	// OCR runs sometimes concatenate a duplicated or truncated code
	// around the real one. Short reference codes are skipped to avoid
	// accidental substring hits.
	for _, ref := range styles.Values() {
		if util.RuneLen(ref) > 3 && strings.Contains(text, ref) {
			return ref
		}
	}

	for _, sub := range ocrConfusions {
		if !strings.Contains(text, sub.wrong) {
			continue
		}
		corrected := strings.ReplaceAll(text, sub.wrong, sub.right)
		if styles.Contains(corrected) {
			r.log.Debug("resolve.style.ocr_corrected", "text", text, "corrected", corrected)
			return corrected
		}
	}

	for _, candidate := range cleaningVariants(text) {
		if candidate != "" && styles.Contains(candidate) {
			return candidate
		}
	}

	return strings.TrimSpace(strings.TrimRight(text, "款型式号"))
}

func cleaningVariants(text string) []string {
	upper := strings.ToUpper(text)
	return []string{
		strings.TrimRight(text, "#"),
		strings.TrimRight(text, "款"),
		strings.TrimRight(text, "款型式号"),
		strings.TrimSpace(head(text, '款')),
		strings.TrimSpace(head(text, '型')),
		strings.TrimSpace(head(text, '式')),
		util.StripSpaces(text),
		upper,
		strings.TrimRight(upper, "款型式号"),
		strings.TrimRight(upper, "#"),
		strings.TrimRight(upper, "款"),
	}
}

func head(s string, sep rune) string {
	if i := strings.IndexRune(s, sep); i >= 0 {
		return s[:i]
	}
	return s
}

func hasAnyPrefix(text string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}
