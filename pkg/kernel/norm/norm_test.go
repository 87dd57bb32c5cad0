package norm

import (
	"testing"

	"github.com/oisee/dpusim/pkg/fixed"
)

func TestApproxTanhSaturatesPastThree(t *testing.T) {
	if got := ApproxTanh(5.0); got != 1.0 {
		t.Errorf("ApproxTanh(5.0) = %v, want 1.0", got)
	}
	if got := ApproxTanh(-5.0); got != -1.0 {
		t.Errorf("ApproxTanh(-5.0) = %v, want -1.0", got)
	}
}

func TestApproxTanhIdentityNearZero(t *testing.T) {
	if got := ApproxTanh(0.25); got != 0.25 {
		t.Errorf("ApproxTanh(0.25) = %v, want 0.25 (identity segment)", got)
	}
}

func TestApproxTanhSegmentAtOne(t *testing.T) {
	got := ApproxTanh(1.0)
	want := float32(0.77734375)
	if got != want {
		t.Errorf("ApproxTanh(1.0) = %v, want %v", got, want)
	}
}

func TestL2NormFixUnitVectorFromSingleNonzero(t *testing.T) {
	out, err := L2NormFix([]int32{4, 0, 0, 0}, 0, 0, fixed.RoundDPU, -128, 127)
	if err != nil {
		t.Fatal(err)
	}
	want := []int32{1, 0, 0, 0}
	for i, v := range out {
		if v != want[i] {
			t.Errorf("out[%d] = %d, want %d", i, v, want[i])
		}
	}
}

func TestL2NormFixAllZeroDoesNotDivideByZero(t *testing.T) {
	out, err := L2NormFix([]int32{0, 0}, 0, 0, fixed.RoundDPU, -128, 127)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("out[%d] = %d, want 0", i, v)
		}
	}
}

func TestL2NormFixRejectsEmptyInput(t *testing.T) {
	if _, err := L2NormFix(nil, 0, 0, fixed.RoundDPU, -128, 127); err == nil {
		t.Fatal("expected error: L2NormFix needs at least one value")
	}
}

func TestQGroupNormTwoElementGroup(t *testing.T) {
	group := [][]int32{{0, 2}}
	out, err := QGroupNorm(group, []int32{1}, []int32{0}, 0, 0, 0, 0, 1, 1, 1, 1, 0, fixed.RoundDPU, -128, 127, NonLinearNone)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int32{{-1, 1}}
	for c := range out {
		for i := range out[c] {
			if out[c][i] != want[c][i] {
				t.Errorf("out[%d][%d] = %d, want %d", c, i, out[c][i], want[c][i])
			}
		}
	}
}

func TestQGroupNormSingletonGroupNormalizesToZero(t *testing.T) {
	group := [][]int32{{5}}
	out, err := QGroupNorm(group, []int32{1}, []int32{0}, 0, 0, 0, 0, 1, 1, 1, 1, 0, fixed.RoundDPU, -128, 127, NonLinearNone)
	if err != nil {
		t.Fatal(err)
	}
	if out[0][0] != 0 {
		t.Errorf("out[0][0] = %d, want 0 (zero variance falls back to denom=1)", out[0][0])
	}
}

func TestQGroupNormRejectsMismatchedWeightLength(t *testing.T) {
	group := [][]int32{{0, 2}}
	if _, err := QGroupNorm(group, []int32{1, 2}, []int32{0}, 0, 0, 0, 0, 1, 1, 1, 1, 0, fixed.RoundDPU, -128, 127, NonLinearNone); err == nil {
		t.Fatal("expected error: weight length does not match channel count")
	}
}

func TestQLinearSwish8BitMatchesLogistic(t *testing.T) {
	got, err := QLinearSwish(2, 0, 0, 1, 1, 1, 8, -128, 127)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("QLinearSwish(8-bit, x=2) = %d, want 2", got)
	}
}

func TestQLinearSwish16BitUsesApproxTanh(t *testing.T) {
	got, err := QLinearSwish(4, 0, 0, 1, 1, 1, 16, -128, 127)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4 {
		t.Errorf("QLinearSwish(16-bit, x=4) = %d, want 4", got)
	}
}

func TestQLinearSwishRejectsUnsupportedBitWidth(t *testing.T) {
	if _, err := QLinearSwish(1, 0, 0, 1, 1, 1, 32, -128, 127); err == nil {
		t.Fatal("expected error: bit_width=32 not in {8,16}")
	}
}
