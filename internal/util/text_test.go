package util

import "testing"

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "equal", a: "罗卡", b: "罗卡", want: 0},
		{name: "single swap", a: "罗咔", b: "罗卡", want: 1},
		{name: "empty left", a: "", b: "abc", want: 3},
		{name: "empty right", a: "abc", b: "", want: 3},
		{name: "insert", a: "罗卡", b: "杭州罗卡", want: 2},
		{name: "ascii", a: "kitten", b: "sitting", want: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Levenshtein(tc.a, tc.b); got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestStripSpaces(t *testing.T) {
	if got := StripSpaces("H16 43 C"); got != "H1643C" {
		t.Fatalf("got %q", got)
	}
}
