package main

import (
	"testing"

	"github.com/oisee/dpusim/pkg/ddr"
)

func TestDumpFormatMapsKnownNames(t *testing.T) {
	cases := map[string]ddr.DumpFormat{
		"hex_continuous_small_end":         ddr.HexContSmallEnd,
		"hex_continuous_small_end_ddraddr": ddr.HexContSmallEndDDRAddr,
		"hex_continuous_big_end_ddraddr":   ddr.HexContBigEndDDRAddr,
		"dec":                              ddr.Dec,
		"bin":                              ddr.Bin,
		"unknown-garbage":                  ddr.HexContBigEnd,
	}
	for name, want := range cases {
		if got := dumpFormat(name); got != want {
			t.Errorf("dumpFormat(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseDumpSlicesParsesRegOffsetSize(t *testing.T) {
	got, err := parseDumpSlices([]string{"0:16:32", "2:0:4096"})
	if err != nil {
		t.Fatal(err)
	}
	want := []ddr.Slice{{RegID: 0, Offset: 16, Size: 32}, {RegID: 2, Offset: 0, Size: 4096}}
	if len(got) != len(want) {
		t.Fatalf("got %d slices, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseDumpSlicesRejectsMalformed(t *testing.T) {
	if _, err := parseDumpSlices([]string{"not-enough-parts"}); err == nil {
		t.Fatal("expected error for malformed --dump-slice value")
	}
}

func TestFormatFieldsSortsByName(t *testing.T) {
	got := formatFields(map[string]uint32{"kernel_w": 3, "kernel_h": 1})
	want := "kernel_h=1 kernel_w=3"
	if got != want {
		t.Errorf("formatFields = %q, want %q", got, want)
	}
}
