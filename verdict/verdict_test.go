package verdict

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code        Code
		want        Outcome
		interesting bool
	}{
		{0, SignedValid, true},
		{20, SignedWithWarnings, true},
		{35, SignedWithWarnings, true},
		{66, SignedWithWarnings, true},
		{10, NotSigned, false},
		{15, Problem, false},
		{19, Problem, false},
		{67, Problem, false},
		{70, Problem, false},
		{101, Problem, false},
		{-1, Problem, false},
		{255, Problem, false},
	}
	for _, tc := range cases {
		got := Classify(tc.code)
		if got != tc.want {
			t.Errorf("Classify(%d) = %v, want %v", tc.code, got, tc.want)
		}
		if got.Interesting() != tc.interesting {
			t.Errorf("Classify(%d).Interesting() = %v, want %v", tc.code, got.Interesting(), tc.interesting)
		}
	}
}

func TestClassifyStableAcrossRange(t *testing.T) {
	for code := Code(-50); code <= 300; code++ {
		first := Classify(code)
		if second := Classify(code); first != second {
			t.Fatalf("unstable classification for %d", code)
		}
	}
}

func TestLabel(t *testing.T) {
	if Label(0) != "SIG_STAT_CODE_INFO_SIGNATURE_VALID" {
		t.Fatalf("unexpected label: %s", Label(0))
	}
	if Label(63) != "SIG_STAT_CODE_WARNING_CERTIFICATE_REVOKED" {
		t.Fatalf("unexpected label: %s", Label(63))
	}
	if Label(35) != UnknownLabel || Known(35) {
		t.Fatalf("35 is not in the verifier table")
	}
	if !Known(120) {
		t.Fatal("120 should be known")
	}
}

func TestDescribe(t *testing.T) {
	msg := Describe(10, "a.pdf")
	if !strings.Contains(msg, "NOT signed") || !strings.Contains(msg, "'a.pdf'") {
		t.Fatalf("unexpected description: %s", msg)
	}
}
