package pool

import (
	"testing"

	"github.com/oisee/dpusim/internal/simcfg"
	"github.com/oisee/dpusim/pkg/bank"
	"github.com/oisee/dpusim/pkg/ddr"
	"github.com/oisee/dpusim/pkg/engine"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/target"
)

func testContext(t *testing.T) *engine.Context {
	t.Helper()
	p := target.Builtin[target.DPUV2]
	return engine.NewContext(p, ddr.NewStore(p.HPWidth), bank.NewStore(p, false), isa.Builtin, simcfg.Default())
}

func program(t *testing.T, lines []string) []isa.Instruction {
	t.Helper()
	instrs, err := isa.ParseAssembly(lines, target.DPUV2, isa.Builtin)
	if err != nil {
		t.Fatal(err)
	}
	return instrs
}

// writeChannelConst fills every channel of the line at addr with the
// given value, across channels ICP(=16) bytes wide.
func writeChannelConst(t *testing.T, ctx *engine.Context, bankID, addr int, value byte) {
	t.Helper()
	buf := make([]byte, ctx.Target.ICP)
	for i := range buf {
		buf[i] = value
	}
	if err := ctx.Banks.Write(bankID, addr, 0, len(buf), buf); err != nil {
		t.Fatal(err)
	}
}

func TestMaxPoolPicksLargestValue(t *testing.T) {
	ctx := testContext(t)
	// 2x2 input laid out raster-order at bank 0, values 1,2,3,4; max=4.
	writeChannelConst(t, ctx, 0, 0, 1)
	writeChannelConst(t, ctx, 0, 1, 2)
	writeChannelConst(t, ctx, 0, 2, 3)
	writeChannelConst(t, ctx, 0, 3, 4)

	instrs := program(t, []string{
		"POOLINIT pool_type=0 kernel_h=2 kernel_w=2 stride_h=2 stride_w=2 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 bank_id_in=0 bank_id_out=8 channel_group=1",
		"POOL valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.POOL: Pool}); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, ctx.Target.ICP)
	if err := ctx.Banks.Read(8, 0, 0, len(got), got); err != nil {
		t.Fatal(err)
	}
	for _, v := range got {
		if v != 4 {
			t.Errorf("max-pool output channel = %d, want 4", v)
		}
	}
}

func TestSumPoolAddsWindow(t *testing.T) {
	ctx := testContext(t)
	writeChannelConst(t, ctx, 0, 0, 1)
	writeChannelConst(t, ctx, 0, 1, 2)
	writeChannelConst(t, ctx, 0, 2, 3)
	writeChannelConst(t, ctx, 0, 3, 4)

	instrs := program(t, []string{
		"POOLINIT pool_type=1 kernel_h=2 kernel_w=2 stride_h=2 stride_w=2 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 bank_id_in=0 bank_id_out=8 channel_group=1",
		"POOL valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.POOL: Pool}); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, ctx.Target.ICP)
	if err := ctx.Banks.Read(8, 0, 0, len(got), got); err != nil {
		t.Fatal(err)
	}
	for _, v := range got {
		if v != 10 {
			t.Errorf("sum-pool output channel = %d, want 10", v)
		}
	}
}

func TestAvgPoolUsesTabulatedReciprocal(t *testing.T) {
	e := reciprocalFor(3, 3)
	if e.Factor != 7 || e.Shift != 6 {
		t.Errorf("reciprocalFor(3,3) = %+v, want {7 6}", e)
	}
}

func TestBestReciprocalApproximatesInverse(t *testing.T) {
	e := bestReciprocal(9)
	approx := float64(e.Factor) / float64(uint64(1)<<uint(e.Shift))
	if diff := approx - 1.0/9.0; diff > 0.01 || diff < -0.01 {
		t.Errorf("bestReciprocal(9) approximates 1/9 as %v, off by %v", approx, diff)
	}
}

func TestPoolParallelMatchesSequentialOutput(t *testing.T) {
	run := func(workers string) []byte {
		ctx := testContext(t)
		ctx.Cfg.Set("pool_parallel", workers)
		for i := 0; i < 16; i++ {
			writeChannelConst(t, ctx, 0, i, byte(i))
		}
		instrs := program(t, []string{
			"POOLINIT pool_type=0 kernel_h=1 kernel_w=1 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 bank_id_in=0 bank_id_out=8 channel_group=1",
			"POOL valid_pixel_parallel=4 length=4",
			"END",
		})
		if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.POOL: Pool}); err != nil {
			t.Fatal(err)
		}
		out := make([]byte, 16*ctx.Target.ICP)
		for i := 0; i < 16; i++ {
			if err := ctx.Banks.Read(8, i, 0, ctx.Target.ICP, out[i*ctx.Target.ICP:]); err != nil {
				t.Fatal(err)
			}
		}
		return out
	}
	seq := run("0")
	par := run("4")
	for i := range seq {
		if seq[i] != par[i] {
			t.Fatalf("parallel pool diverges from sequential at byte %d: %d != %d", i, seq[i], par[i])
		}
	}
}
