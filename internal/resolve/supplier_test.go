package resolve

import (
	"testing"

	"wei/internal/refdata"
)

func supplierSet(values ...string) *refdata.Set {
	return refdata.NewSet(values)
}

func TestResolveSupplier(t *testing.T) {
	r := NewSupplierResolver(nil)

	cases := []struct {
		name      string
		raw       string
		suppliers *refdata.Set
		want      string
	}{
		{name: "exact", raw: "罗卡", suppliers: supplierSet("罗卡", "素本服饰"), want: "罗卡"},
		{name: "raw inside reference", raw: "罗卡", suppliers: supplierSet("杭州罗卡"), want: "杭州罗卡"},
		{name: "reference inside raw", raw: "罗卡家", suppliers: supplierSet("罗卡"), want: "罗卡"},
		{name: "corporate suffix stripped", raw: "罗卡商行", suppliers: supplierSet("罗卡"), want: "罗卡"},
		{name: "suffix and company", raw: "素本服饰有限公司", suppliers: supplierSet("素本服饰"), want: "素本服饰"},
		{name: "single char reference never matches by containment", raw: "罗记布业", suppliers: supplierSet("罗"), want: ""},
		{name: "confusion swap", raw: "杭州嘉艺", suppliers: supplierSet("杭州家艺"), want: "杭州家艺"},
		{name: "edit distance short name", raw: "罗咔", suppliers: supplierSet("罗卡"), want: "罗卡"},
		{name: "edit distance long name within 40 percent", raw: "杭州楼国中辅料", suppliers: supplierSet("杭州楼国忠辅料"), want: "杭州楼国忠辅料"},
		{name: "beyond threshold", raw: "完全不同", suppliers: supplierSet("罗卡"), want: ""},
		{name: "empty raw", raw: "  ", suppliers: supplierSet("罗卡"), want: ""},
		{name: "empty directory", raw: "罗卡", suppliers: supplierSet(), want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Resolve(tc.raw, tc.suppliers); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestDistanceThresholdMonotonicInLength(t *testing.T) {
	// A pair within threshold at some length stays within threshold at
	// any greater length with the same absolute distance.
	short := distanceThreshold("罗咔", "罗卡")
	if short != 1 {
		t.Fatalf("short threshold=%v", short)
	}
	prev := short
	for _, pair := range [][2]string{
		{"杭州罗咔", "杭州罗卡"},
		{"杭州罗咔家纺", "杭州罗卡家纺"},
		{"杭州罗咔家纺有限公司", "杭州罗卡家纺有限公司"},
	} {
		th := distanceThreshold(pair[0], pair[1])
		if th < prev {
			t.Fatalf("threshold shrank: %v -> %v", prev, th)
		}
		prev = th
	}
}

func TestEditDistancePicksMinimum(t *testing.T) {
	r := NewSupplierResolver(nil)
	// 罗咔纺织 vs 罗卡纺织 (distance 1) and 罗咔 (distance 2): the
	// minimum-distance reference wins.
	got := r.Resolve("罗咔纺织", supplierSet("华丰布业", "罗卡纺织"))
	if got != "罗卡纺织" {
		t.Fatalf("got %q", got)
	}
}
