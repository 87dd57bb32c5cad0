package alu

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

func writeChannelConst(t *testing.T, ctx *engine.Context, bankID int, v byte) {
	t.Helper()
	buf := make([]byte, ctx.Target.ICP)
	for i := range buf {
		buf[i] = v
	}
	if err := ctx.Banks.Write(bankID, 0, 0, len(buf), buf); err != nil {
		t.Fatal(err)
	}
}

func readChannelRow(t *testing.T, ctx *engine.Context, bankID int) []byte {
	t.Helper()
	buf := make([]byte, ctx.Target.ICP)
	if err := ctx.Banks.Read(bankID, 0, 0, len(buf), buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestALUMaxPoolPicksLargestValue(t *testing.T) {
	ctx := testContext(t)
	if err := ctx.Banks.Write(0, 0, 0, ctx.Target.ICP, bytesOf(ctx, 3)); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Banks.Write(0, 1, 0, ctx.Target.ICP, bytesOf(ctx, 9)); err != nil {
		t.Fatal(err)
	}

	instrs := program(t, []string{
		"ALUINIT alu_mode=3 kernel_h=1 kernel_w=2 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 " +
			"bank_id_in=0 bank_id_out=8 act_type=0 shift_cut=0 shift_bias=0 channel_group=1",
		"ALU valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.ALU: ALU}); err != nil {
		t.Fatal(err)
	}
	got := readChannelRow(t, ctx, 8)
	for _, v := range got {
		if v != 9 {
			t.Errorf("alu maxpool output = %d, want 9", v)
		}
	}
}

func bytesOf(ctx *engine.Context, v byte) []byte {
	buf := make([]byte, ctx.Target.ICP)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func TestALUPReluModeActivatesLikeConv(t *testing.T) {
	ctx := testContext(t)
	writeChannelConst(t, ctx, 0, 0xFC) // -4 as int8

	instrs := program(t, []string{
		"ALUINIT alu_mode=1 kernel_h=1 kernel_w=1 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 " +
			"bank_id_in=0 bank_id_out=8 act_type=1 shift_cut=0 shift_bias=0 channel_group=1",
		"ALU valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.ALU: ALU}); err != nil {
		t.Fatal(err)
	}
	got := readChannelRow(t, ctx, 8)
	for _, v := range got {
		if v != 0 {
			t.Errorf("alu relu(-4) output = %d, want 0", int8(v))
		}
	}
}

func TestALUElewAddUsesAluAddrSecondOperand(t *testing.T) {
	ctx := testContext(t)
	writeChannelConst(t, ctx, 0, 3)
	writeChannelConst(t, ctx, 8, 4)

	instrs := program(t, []string{
		"ALUINIT alu_mode=9 kernel_h=1 kernel_w=1 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 " +
			"bank_id_in=0 bank_id_out=9 act_type=0 shift_cut=0 shift_bias=0 channel_group=1",
		"ALUADDR addr_type=0 jump=0 bank_addr=8",
		"ALU valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.ALU: ALU}); err != nil {
		t.Fatal(err)
	}
	got := readChannelRow(t, ctx, 9)
	for _, v := range got {
		if v != 7 {
			t.Errorf("alu elew_add output = %d, want 7", v)
		}
	}
}

func TestALUElewAddWithoutAddrPlanFails(t *testing.T) {
	ctx := testContext(t)
	writeChannelConst(t, ctx, 0, 3)

	instrs := program(t, []string{
		"ALUINIT alu_mode=9 kernel_h=1 kernel_w=1 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 " +
			"bank_id_in=0 bank_id_out=9 act_type=0 shift_cut=0 shift_bias=0 channel_group=1",
		"ALU valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.ALU: ALU}); err == nil {
		t.Fatal("expected error: ELEW_ADD sub-mode needs an ALUADDR second-operand entry")
	}
}

func TestALUMaxReduceCollapsesChannels(t *testing.T) {
	ctx := testContext(t)
	channels := ctx.Target.ICP
	buf := make([]byte, channels)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := ctx.Banks.Write(0, 0, 0, channels, buf); err != nil {
		t.Fatal(err)
	}

	instrs := program(t, []string{
		"ALUINIT alu_mode=5 kernel_h=1 kernel_w=1 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 " +
			"bank_id_in=0 bank_id_out=8 act_type=0 shift_cut=0 shift_bias=0 channel_group=1",
		"ALU valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.ALU: ALU}); err != nil {
		t.Fatal(err)
	}
	got := readChannelRow(t, ctx, 8)
	want := byte(channels - 1)
	for _, v := range got {
		if v != want {
			t.Errorf("alu maxreduce output = %d, want %d", v, want)
		}
	}
}

func TestALUDWCVModeIsRejected(t *testing.T) {
	ctx := testContext(t)
	instrs := program(t, []string{
		"ALUINIT alu_mode=0 kernel_h=1 kernel_w=1 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 " +
			"bank_id_in=0 bank_id_out=8 act_type=0 shift_cut=0 shift_bias=0 channel_group=1",
		"ALU valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.ALU: ALU}); err == nil {
		t.Fatal("expected error: DWCV sub-mode is out of scope for ALUINIT's field set")
	}
}

func TestALUBankWhitelistViolation(t *testing.T) {
	ctx := testContext(t)
	instrs := program(t, []string{
		"ALUINIT alu_mode=1 kernel_h=1 kernel_w=1 stride_h=1 stride_w=1 pad_top=0 pad_bottom=0 pad_left=0 pad_right=0 " +
			"bank_id_in=16 bank_id_out=8 act_type=0 shift_cut=0 shift_bias=0 channel_group=1",
		"ALU valid_pixel_parallel=1 length=1",
		"END",
	})
	if err := engine.Run(ctx, instrs, engine.HandlerTable{isa.ALU: ALU}); err == nil {
		t.Fatal("expected error: input bank 16 (WGT) not in alu-in whitelist")
	}
}
