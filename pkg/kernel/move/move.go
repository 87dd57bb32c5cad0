// Package move implements the data-movement kernels (C7): LOAD reads a
// tile from DDR into a bank, SAVE is its inverse. Both honor the
// whitelist of legal bank ids for their direction and constant-value
// fill. LOAD additionally pads each block with pad_start/pad_end rows of
// pad_idx and applies the average-mode rescale; it has no per-side
// (left/right/top/bottom) padding and no ping-pong buffering. SAVE does
// no padding and no rescale.
//
// Grounded on spec.md §4.6; the whole-line read/write shape mirrors
// pkg/bank.Store.Read/Write, and the handler signature matches
// pkg/engine.Handler so these two functions register directly into a
// pkg/sim HandlerTable.
package move

import (
	"fmt"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/internal/trace"
	"github.com/oisee/dpusim/pkg/bank"
	"github.com/oisee/dpusim/pkg/engine"
	"github.com/oisee/dpusim/pkg/fixed"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/kernel/pool"
)

const (
	modeNormal = iota
	modeConst
)

// checkWhitelist enforces spec.md §4.1's bank-access whitelist: every
// memory-accessing instruction must hit only the bank ids legal for its
// direction.
func checkWhitelist(ctx *engine.Context, accessType string, bankID int) error {
	wl := ctx.Target.BankAccessWhitelist(accessType)
	if !wl[bankID] {
		return simerr.New(simerr.WhitelistViolate, "move: bank %d not in %q whitelist", bankID, accessType)
	}
	return nil
}

// Load implements LOAD: DDR -> bank, spec.md §4.6.
func Load(ctx *engine.Context, instr isa.Instruction) error {
	bankID := int(instr.Field("bank_id"))
	if err := checkWhitelist(ctx, "load-out", bankID); err != nil {
		return err
	}
	b, err := ctx.Banks.Bank(bankID)
	if err != nil {
		return err
	}

	channel := int(instr.Field("channel"))
	blockNum := int(instr.Field("block_num"))
	length := int(instr.Field("length"))
	bankAddr := int(instr.Field("bank_addr"))
	jumpWrite := int(instr.Field("jump_write"))
	jumpWriteEndl := int(instr.Field("jump_write_endl"))
	padStart := int(instr.Field("pad_start"))
	padEnd := int(instr.Field("pad_end"))
	padIdx := byte(instr.Field("pad_idx"))
	avgMode := instr.Field("avg_mode") != 0

	if channel > b.Width {
		return simerr.New(simerr.ParameterFailed, "move: LOAD channel count %d exceeds bank width %d", channel, b.Width)
	}

	if instr.Field("mode") == modeConst {
		value := byte(instr.Field("const_value"))
		return fillConst(ctx, b, bankAddr, blockNum, length, jumpWrite, jumpWriteEndl, channel, value)
	}

	regID := int(instr.Field("reg_id"))
	jumpRead := int(instr.Field("jump_read"))
	ddrAddr := uint64(instr.Field("ddr_addr"))

	if ctx.Cfg.CoSimOn() {
		ctx.Trace.Add(trace.Event{
			InstrIndex: ctx.InstrIndex,
			Kind:       "img_read_tick",
			Detail:     fmt.Sprintf("reg=%d ddr_addr=%d bank=%d", regID, ddrAddr, bankID),
		})
	}

	avgFactor, avgShift := pool.ReciprocalFor(maxInt(1, blockNum), 1)

	row := make([]byte, channel)
	addr := bankAddr
	ddrOff := ddrAddr
	for blk := 0; blk < blockNum; blk++ {
		rowStart := -padStart
		rowEnd := length + padEnd
		for r := rowStart; r < rowEnd; r++ {
			switch {
			case r < 0 || r >= length:
				for i := range row {
					row[i] = padIdx
				}
			default:
				if err := ctx.DDR.Read(regID, ddrOff, row); err != nil {
					return err
				}
				if avgMode {
					rescaleAverage(row, avgFactor, avgShift)
				}
				ddrOff += uint64(jumpRead)
			}
			if err := ctx.Banks.Write(b.ID, addr, 0, channel, row); err != nil {
				return err
			}
			addr += jumpWrite
		}
		addr += jumpWriteEndl
	}
	return nil
}

func fillConst(ctx *engine.Context, b *bank.Bank, bankAddr, blockNum, length, jumpWrite, jumpWriteEndl, channel int, value byte) error {
	row := make([]byte, channel)
	for i := range row {
		row[i] = value
	}
	addr := bankAddr
	for blk := 0; blk < blockNum; blk++ {
		for r := 0; r < length; r++ {
			if err := ctx.Banks.Write(b.ID, addr, 0, channel, row); err != nil {
				return err
			}
			addr += jumpWrite
		}
		addr += jumpWriteEndl
	}
	return nil
}

// rescaleAverage compensates for LOAD's implicit avg-pool divisor
// (spec.md §4.6 "average-mode rescaling that compensates for an implicit
// avg-pool divisor"): block_num blocks are being accumulated by the
// program's own sequence of LOADs into the same destination row, so each
// incoming value is scaled by the approximate reciprocal of block_num
// before it lands in the bank. Reuses pkg/kernel/pool's DPU
// approximate-reciprocal table (factor/shift multiply-then-shift, rather
// than an exact division) instead of pool.go's own kernel-window
// reciprocal, since LOAD has no kernel_h/kernel_w of its own to divide by.
func rescaleAverage(row []byte, factor, shift int) {
	for i, b := range row {
		scaled := int64(int8(b)) * int64(factor) >> uint(shift)
		row[i] = byte(fixed.Saturate[int8](float64(scaled), -128, 127))
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Save implements SAVE: bank -> DDR, spec.md §4.6.
func Save(ctx *engine.Context, instr isa.Instruction) error {
	bankID := int(instr.Field("bank_id"))
	if err := checkWhitelist(ctx, "save-in", bankID); err != nil {
		return err
	}
	b, err := ctx.Banks.Bank(bankID)
	if err != nil {
		return err
	}

	channel := int(instr.Field("channel"))
	blockNum := int(instr.Field("block_num"))
	length := int(instr.Field("length"))
	bankAddr := int(instr.Field("bank_addr"))
	jumpRead := int(instr.Field("jump_write")) // bank-side stride, named jump_write for symmetry with LOAD's encoding
	jumpReadEndl := int(instr.Field("jump_write_endl"))
	regID := int(instr.Field("reg_id"))
	jumpWrite := int(instr.Field("jump_read")) // DDR-side stride
	ddrAddr := uint64(instr.Field("ddr_addr"))
	argmax := instr.Field("argmax") != 0
	constEn := instr.Field("const_en") != 0

	if constEn {
		value := byte(instr.Field("const_value"))
		row := make([]byte, channel)
		for i := range row {
			row[i] = value
		}
		ddrOff := ddrAddr
		for i := 0; i < blockNum*length; i++ {
			if err := ctx.DDR.Write(regID, ddrOff, row); err != nil {
				return err
			}
			ddrOff += uint64(jumpWrite)
		}
		return nil
	}

	addr := bankAddr
	ddrOff := ddrAddr
	row := make([]byte, channel)
	for blk := 0; blk < blockNum; blk++ {
		for r := 0; r < length; r++ {
			if err := ctx.Banks.Read(b.ID, addr, 0, channel, row); err != nil {
				return err
			}
			out := row
			if argmax {
				// TODO(argmax): the exact reduction (greatest, first-greatest,
				// tie-break rule) is declared in the ISA but not exercised by
				// any retrieved reference kernel; first-greatest is used here
				// as the most common hardware convention until it is pinned
				// down against a real program.
				out = []byte{argmaxIndex(row)}
			}
			if err := ctx.DDR.Write(regID, ddrOff, out); err != nil {
				return err
			}
			ddrOff += uint64(jumpWrite)
			addr += jumpRead
		}
		addr += jumpReadEndl
	}
	return nil
}

func argmaxIndex(row []byte) byte {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return byte(best)
}
