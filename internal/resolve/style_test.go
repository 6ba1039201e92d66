package resolve

import (
	"testing"

	"wei/internal"
	"wei/internal/refdata"
)

var fallbackPrefixes = []string{"T", "H", "X", "D", "L", "S", "F"}

func styleSet(values ...string) *refdata.Set {
	return refdata.NewSet(values)
}

func TestResolveTierOrder(t *testing.T) {
	r := NewStyleResolver(fallbackPrefixes, nil)
	styles := styleSet("T8821", "H2201", "X9001")

	cases := []struct {
		name       string
		candidates []internal.StyleCandidate
		want       string
	}{
		{
			name: "grid hit beats red hit regardless of list order",
			candidates: []internal.StyleCandidate{
				{Text: "H2201", IsRed: true, Position: "手写标注"},
				{Text: "T8821", IsRed: false, Position: "表格内"},
			},
			want: "T8821",
		},
		{
			name: "red hit beats prefix fallback",
			candidates: []internal.StyleCandidate{
				{Text: "T999999", IsRed: false, Position: "页眉"},
				{Text: "H2201", IsRed: true, Position: "右上角"},
			},
			want: "H2201",
		},
		{
			name: "prefix fallback accepts out-of-set candidates",
			candidates: []internal.StyleCandidate{
				{Text: "无关文字", IsRed: false, Position: "页眉"},
				{Text: "T7777", IsRed: false, Position: "手写标注"},
			},
			want: "T7777",
		},
		{
			name: "grid candidate not in set falls through",
			candidates: []internal.StyleCandidate{
				{Text: "Z0000", IsRed: false, Position: "表格内"},
				{Text: "H2201", IsRed: true, Position: "手写标注"},
			},
			want: "H2201",
		},
		{
			name:       "empty pool",
			candidates: nil,
			want:       "",
		},
		{
			name: "all tiers miss",
			candidates: []internal.StyleCandidate{
				{Text: "普通备注", IsRed: false, Position: "页脚"},
			},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Resolve(tc.candidates, styles); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestResolveEndToEndScenarios(t *testing.T) {
	r := NewStyleResolver(fallbackPrefixes, nil)

	got := r.Resolve([]internal.StyleCandidate{{Text: "T8821", IsRed: false, Position: "表格内"}}, styleSet("T8821"))
	if got != "T8821" {
		t.Fatalf("got %q", got)
	}

	// Lowercase resolves through the uppercase variant, not OCR
	// confusion (h is not a mapped confusable).
	got = r.Resolve([]internal.StyleCandidate{{Text: "h1643c", IsRed: false, Position: "手写"}}, styleSet("H1643C"))
	if got != "H1643C" {
		t.Fatalf("got %q", got)
	}

	// J→1 correction.
	got = r.Resolve([]internal.StyleCandidate{{Text: "HJ643C", IsRed: false, Position: "手写"}}, styleSet("H1643C"))
	if got != "H1643C" {
		t.Fatalf("got %q", got)
	}
}

func TestCanonicalize(t *testing.T) {
	r := NewStyleResolver(fallbackPrefixes, nil)

	cases := []struct {
		name   string
		text   string
		styles *refdata.Set
		want   string
	}{
		{name: "exact", text: "T8821", styles: styleSet("T8821"), want: "T8821"},
		{name: "duplicated code run", text: "H1591A-AH1591A-B", styles: styleSet("H1591A-A"), want: "H1591A-A"},
		{name: "short codes skip containment", text: "XT88", styles: styleSet("T88"), want: "XT88"},
		{name: "ocr O to zero", text: "HO123A", styles: styleSet("H0123A"), want: "H0123A"},
		{name: "trailing hash", text: "T8821#", styles: styleSet("T8821"), want: "T8821"},
		{name: "trailing kuan", text: "T8821款", styles: styleSet("T8821"), want: "T8821"},
		{name: "head before kuan", text: "T8821款式", styles: styleSet("T8821"), want: "T8821"},
		{name: "inner spaces", text: "T 8821", styles: styleSet("T8821"), want: "T8821"},
		{name: "uppercase variant", text: "t8821", styles: styleSet("T8821"), want: "T8821"},
		{name: "no match returns trimmed", text: "T9999款型", styles: styleSet("T8821"), want: "T9999"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Canonicalize(tc.text, tc.styles); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	r := NewStyleResolver(fallbackPrefixes, nil)
	styles := styleSet("T8821", "H1643C", "H1591A-A")

	inputs := []string{"T8821", "T8821#", "HJ643C", "H1591A-AH1591A-B", "T9999款型", "t8821", "随便什么"}
	for _, in := range inputs {
		once := r.Canonicalize(in, styles)
		twice := r.Canonicalize(once, styles)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
