package target

import "testing"

func TestParseRangeString(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"1-16,32", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 32}},
		{"4", []int{4}},
		{"", nil},
	}
	for _, c := range cases {
		rs, err := ParseRangeString(c.in)
		if err != nil {
			t.Fatalf("ParseRangeString(%q) error: %v", c.in, err)
		}
		for _, v := range c.want {
			if !rs.Contains(v) {
				t.Errorf("ParseRangeString(%q) missing %d", c.in, v)
			}
		}
		if len(rs) != len(c.want) {
			t.Errorf("ParseRangeString(%q) = %d entries, want %d", c.in, len(rs), len(c.want))
		}
	}
}

func TestParseRangeStringInvalid(t *testing.T) {
	if _, err := ParseRangeString("1-"); err == nil {
		t.Fatal("expected error for malformed range")
	}
	if _, err := ParseRangeString("abc"); err == nil {
		t.Fatal("expected error for non-numeric token")
	}
}

func TestBankAccessWhitelist(t *testing.T) {
	p := Builtin[DPUV2]
	wl := p.BankAccessWhitelist("conv-in")
	if !wl[0] || !wl[15] {
		t.Errorf("expected IFM0/IFM1 banks 0 and 15 in conv-in whitelist, got %v", wl)
	}
	if wl[16] {
		t.Errorf("WGT bank 16 should not be in conv-in whitelist")
	}
}

func TestInstrLimitWhitelist(t *testing.T) {
	p := Builtin[DPUV2]
	rs := p.InstrLimitWhitelist("conv-kernel")
	if !rs.Contains(1) || !rs.Contains(16) || rs.Contains(17) {
		t.Errorf("unexpected conv-kernel whitelist: %v", rs)
	}
}

func TestByName(t *testing.T) {
	p, err := ByName("DPUV2")
	if err != nil {
		t.Fatal(err)
	}
	if p.Generation != DPUV2 {
		t.Errorf("ByName(DPUV2) returned generation %v", p.Generation)
	}
	if _, err := ByName("NOPE"); err == nil {
		t.Fatal("expected error for unknown generation")
	}
}
