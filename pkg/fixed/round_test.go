package fixed

import "testing"

func TestDPURound(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{-1.5, -1},
		{0.5, 1},
		{1.5, 2},
		{2.4, 2},
		{-2.4, -2},
	}
	for _, c := range cases {
		if got := DPURound(c.in); got != c.want {
			t.Errorf("DPURound(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestPY3Round(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.5, 0},
		{1.5, 2},
		{2.5, 2},
		{-0.5, 0},
		{-1.5, -2},
	}
	for _, c := range cases {
		if got := PY3Round(c.in); got != c.want {
			t.Errorf("PY3Round(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestStdRound(t *testing.T) {
	if StdRound(0.5) != 1 {
		t.Fatalf("StdRound(0.5) should round away from zero")
	}
	if StdRound(-0.5) != -1 {
		t.Fatalf("StdRound(-0.5) should round away from zero")
	}
}

func TestSaturate(t *testing.T) {
	if got := Saturate[int8](200, -128, 127); got != 127 {
		t.Errorf("Saturate high clamp = %v, want 127", got)
	}
	if got := Saturate[int8](-200, -128, 127); got != -128 {
		t.Errorf("Saturate low clamp = %v, want -128", got)
	}
	if got := Saturate[int8](1.5, -128, 127); got != 2 {
		t.Errorf("Saturate(1.5) = %v, want 2", got)
	}
}

func TestRoundToEven(t *testing.T) {
	cases := []struct {
		in   float64
		want int32
	}{
		{0.5, 0},     // tie, floor 0 is even
		{1.5, 2},     // tie, floor 1 is odd, rounds up to 2
		{2.5, 2},     // tie, floor 2 is even
		{2.4, 2},     // not a tie
		{200, 127},   // clamps high
		{-200, -128}, // clamps low
	}
	for _, c := range cases {
		if got := RoundToEven[int32](c.in, -128, 127); got != c.want {
			t.Errorf("RoundToEven(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFToBF16RoundTrip(t *testing.T) {
	// Exactly representable values should survive truncation unchanged.
	vals := []float32{0, 1, -1, 2, 0.5, -0.5, 128}
	for _, v := range vals {
		b := FToBF16(v)
		got := BF16ToF32(b)
		if got != v {
			t.Errorf("FToBF16/BF16ToF32 round trip for %v: got %v", v, got)
		}
	}
}

func TestArithShiftRightMatchesFloorDiv(t *testing.T) {
	cases := []struct {
		x    int64
		k    uint
		want int64
	}{
		{-5, 1, -3},
		{-8, 3, -1},
		{7, 1, 3},
		{-1, 4, -1},
	}
	for _, c := range cases {
		if got := ArithShiftRight(c.x, c.k); got != c.want {
			t.Errorf("ArithShiftRight(%d,%d) = %d, want %d", c.x, c.k, got, c.want)
		}
	}
}
