package move

import (
	"bytes"
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
	d := ddr.NewStore(p.HPWidth)
	if err := d.Initial(map[int]uint64{0: 4096}, nil); err != nil {
		t.Fatal(err)
	}
	return engine.NewContext(p, d, bank.NewStore(p, false), isa.Builtin, simcfg.Default())
}

func loadInstr(t *testing.T, fields string) isa.Instruction {
	t.Helper()
	instrs, err := isa.ParseAssembly([]string{"LOAD " + fields}, target.DPUV2, isa.Builtin)
	if err != nil {
		t.Fatal(err)
	}
	return instrs[0]
}

func saveInstr(t *testing.T, fields string) isa.Instruction {
	t.Helper()
	instrs, err := isa.ParseAssembly([]string{"SAVE " + fields}, target.DPUV2, isa.Builtin)
	if err != nil {
		t.Fatal(err)
	}
	return instrs[0]
}

func TestLoadPlainCopiesDDRIntoBank(t *testing.T) {
	ctx := testContext(t)
	payload := []byte{1, 2, 3, 4}
	if err := ctx.DDR.Write(0, 0, payload); err != nil {
		t.Fatal(err)
	}
	instr := loadInstr(t, "mode=0 channel=4 block_num=1 ddr_addr=0 bank_id=0 bank_addr=0 length=1 "+
		"jump_read=4 jump_write=1 jump_write_endl=0 pad_start=0 pad_end=0 pad_idx=0 const_value=0 avg_mode=0 reg_id=0")
	if err := Load(ctx, instr); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 4)
	if err := ctx.Banks.Read(0, 0, 0, 4, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("bank contents = %v, want %v", got, payload)
	}
}

func TestLoadPaddingFillsWithPadIdx(t *testing.T) {
	ctx := testContext(t)
	if err := ctx.DDR.Write(0, 0, []byte{9, 9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	instr := loadInstr(t, "mode=0 channel=4 block_num=1 ddr_addr=0 bank_id=0 bank_addr=0 length=1 "+
		"jump_read=4 jump_write=1 jump_write_endl=0 pad_start=1 pad_end=0 pad_idx=7 const_value=0 avg_mode=0 reg_id=0")
	if err := Load(ctx, instr); err != nil {
		t.Fatal(err)
	}
	padRow := make([]byte, 4)
	if err := ctx.Banks.Read(0, 0, 0, 4, padRow); err != nil {
		t.Fatal(err)
	}
	for _, b := range padRow {
		if b != 7 {
			t.Errorf("pad row = %v, want all 7s", padRow)
			break
		}
	}
	dataRow := make([]byte, 4)
	if err := ctx.Banks.Read(0, 1, 0, 4, dataRow); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dataRow, []byte{9, 9, 9, 9}) {
		t.Errorf("data row = %v, want {9,9,9,9}", dataRow)
	}
}

func TestLoadConstFillsWithoutTouchingDDR(t *testing.T) {
	ctx := testContext(t)
	instr := loadInstr(t, "mode=1 channel=2 block_num=1 ddr_addr=0 bank_id=0 bank_addr=0 length=3 "+
		"jump_read=0 jump_write=1 jump_write_endl=0 pad_start=0 pad_end=0 pad_idx=0 const_value=5 avg_mode=0 reg_id=0")
	if err := Load(ctx, instr); err != nil {
		t.Fatal(err)
	}
	for addr := 0; addr < 3; addr++ {
		row := make([]byte, 2)
		if err := ctx.Banks.Read(0, addr, 0, 2, row); err != nil {
			t.Fatal(err)
		}
		if row[0] != 5 || row[1] != 5 {
			t.Errorf("row %d = %v, want {5,5}", addr, row)
		}
	}
}

func TestLoadAvgModeRescalesByBlockNum(t *testing.T) {
	ctx := testContext(t)
	neg10 := int8(-10)
	if err := ctx.DDR.Write(0, 0, []byte{10, byte(neg10)}); err != nil {
		t.Fatal(err)
	}
	// block_num=2 picks the reciprocal of 2 (factor=1, shift=1), halving
	// each loaded value as it lands in the bank.
	instr := loadInstr(t, "mode=0 channel=1 block_num=2 ddr_addr=0 bank_id=0 bank_addr=0 length=1 "+
		"jump_read=1 jump_write=1 jump_write_endl=0 pad_start=0 pad_end=0 pad_idx=0 const_value=0 avg_mode=1 reg_id=0")
	if err := Load(ctx, instr); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 1)
	if err := ctx.Banks.Read(0, 0, 0, 1, got); err != nil {
		t.Fatal(err)
	}
	if int8(got[0]) != 5 {
		t.Errorf("row 0 = %d, want 5", int8(got[0]))
	}
	if err := ctx.Banks.Read(0, 1, 0, 1, got); err != nil {
		t.Fatal(err)
	}
	if int8(got[0]) != -5 {
		t.Errorf("row 1 = %d, want -5", int8(got[0]))
	}
}

func TestSaveRoundTripsLoad(t *testing.T) {
	ctx := testContext(t)
	payload := []byte{11, 22, 33, 44}
	if err := ctx.DDR.Write(0, 0, payload); err != nil {
		t.Fatal(err)
	}
	if err := Load(ctx, loadInstr(t, "mode=0 channel=4 block_num=1 ddr_addr=0 bank_id=0 bank_addr=0 length=1 "+
		"jump_read=4 jump_write=1 jump_write_endl=0 pad_start=0 pad_end=0 pad_idx=0 const_value=0 avg_mode=0 reg_id=0")); err != nil {
		t.Fatal(err)
	}
	if err := Save(ctx, saveInstr(t, "mode=0 channel=4 block_num=1 ddr_addr=100 bank_id=0 bank_addr=0 length=1 "+
		"jump_read=4 jump_write=1 jump_write_endl=0 argmax=0 const_en=0 const_value=0 reg_id=0")); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 4)
	if err := ctx.DDR.Read(0, 100, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("save round trip = %v, want %v", got, payload)
	}
}

func TestSaveWhitelistViolation(t *testing.T) {
	ctx := testContext(t)
	// Bank 16 (WGT) is legal for load-out but not for save-in.
	instr := saveInstr(t, "mode=0 channel=4 block_num=1 ddr_addr=0 bank_id=16 bank_addr=0 length=1 "+
		"jump_read=4 jump_write=1 jump_write_endl=0 argmax=0 const_en=0 const_value=0 reg_id=0")
	if err := Save(ctx, instr); err == nil {
		t.Fatal("expected whitelist violation saving from a WGT bank via save-in")
	}
}
