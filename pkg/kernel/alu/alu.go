// Package alu implements ALU (C9): the umbrella op whose exec_mode
// selects one of a family of tight fixed-point references (spec.md
// §4.8 "ALU. Umbrella op with sub-mode exec_mode ∈ {...}. Each sub-mode
// is a tight fixed-point reference."). ALUINIT carries a single input
// bank and a single output bank (no weight/bias pair, unlike CONVINIT),
// so modes that need a second input tile read it from the bank id
// accumulated in the pending ALUADDR plan (ctx.AluAddrPlan) instead.
package alu

import (
	"math"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/engine"
	"github.com/oisee/dpusim/pkg/fixed"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/kernel/conv"
	"github.com/oisee/dpusim/pkg/kernel/pool"
)

// exec_mode encoding. Not specified by any retrieved ISA table; ordering
// is this simulator's own convention, recorded as an Open Question
// decision in DESIGN.md.
const (
	ModeDWCV = iota
	ModePRELU
	ModeAVEPOOL
	ModeMAXPOOL
	ModeLEAKYRELU
	ModeMAXREDUCE
	ModeHSIGMOID
	ModeMACC
	ModeCOMP
	ModeELEWAdd
	ModeELEWMul
	ModeInstanceNormFirst
	ModeInstanceNormSecond
	ModeLayerNorm
	ModeReduction
	ModeELEWDiv
	ModeL2Norm
)

// ALU is the ALU action-op handler.
func ALU(ctx *engine.Context, instr isa.Instruction) error {
	ai := ctx.AluInit
	if ai == nil {
		return simerr.New(simerr.ParameterFailed, "alu: ALU with no preceding ALUINIT")
	}
	if !ctx.Target.BankAccessWhitelist("alu-in")[int(ai.BankIDIn)] {
		return simerr.New(simerr.WhitelistViolate, "alu: input bank %d not in alu-in whitelist", ai.BankIDIn)
	}
	if !ctx.Target.BankAccessWhitelist("alu-out")[int(ai.BankIDOut)] {
		return simerr.New(simerr.WhitelistViolate, "alu: output bank %d not in alu-out whitelist", ai.BankIDOut)
	}

	dstW := int(instr.Field("valid_pixel_parallel"))
	dstH := int(instr.Field("length"))
	channels := ctx.Target.ICP

	switch ai.AluMode {
	case ModeDWCV:
		return simerr.New(simerr.ParameterFailed, "alu: DWCV sub-mode needs a weight bank that ALUINIT has no field for; use pkg/kernel/dwconv's DPTWISE instead")
	case ModeMAXPOOL, ModeAVEPOOL:
		return aluPool(ctx, ai, dstH, dstW, channels)
	case ModePRELU, ModeLEAKYRELU, ModeHSIGMOID:
		return aluActivationOnly(ctx, ai, dstH, dstW, channels)
	case ModeMAXREDUCE, ModeReduction:
		return aluReduceChannels(ctx, ai, dstH, dstW, channels)
	case ModeCOMP:
		return aluCompare(ctx, ai, dstH, dstW, channels)
	case ModeMACC, ModeELEWAdd, ModeELEWMul, ModeELEWDiv:
		return aluTwoOperand(ctx, ai, dstH, dstW, channels)
	case ModeInstanceNormFirst, ModeInstanceNormSecond, ModeLayerNorm, ModeL2Norm:
		return aluNormalize(ctx, ai, dstH, dstW, channels)
	default:
		return simerr.New(simerr.ParameterFailed, "alu: unknown exec_mode %d", ai.AluMode)
	}
}

func readRow(ctx *engine.Context, bankID, addr, channels int) ([]int8, error) {
	buf := make([]byte, channels)
	if err := ctx.Banks.Read(bankID, addr, 0, channels, buf); err != nil {
		return nil, err
	}
	row := make([]int8, channels)
	for i, b := range buf {
		row[i] = int8(b)
	}
	return row, nil
}

func writeRow(ctx *engine.Context, bankID, addr int, row []int8) error {
	buf := make([]byte, len(row))
	for i, v := range row {
		buf[i] = byte(v)
	}
	return ctx.Banks.Write(bankID, addr, 0, len(buf), buf)
}

// aluActivationOnly applies PRELU/LEAKYRELU/HSIGMOID pixel-by-pixel,
// reusing the exact non-linearity formulas from pkg/kernel/conv.
func aluActivationOnly(ctx *engine.Context, ai *engine.AluInitState, dstH, dstW, channels int) error {
	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			addr := i*dstW + j
			in, err := readRow(ctx, int(ai.BankIDIn), addr, channels)
			if err != nil {
				return err
			}
			out := make([]int8, channels)
			for c, v := range in {
				out[c] = conv.Activate(int64(v)*2, ai.ShiftCut, ai.ActType,
					ai.HsigmoidIn, ai.ShiftHsigmoid, ai.ShiftHswish, ai.PreluIn, ai.PreluShift)
			}
			if err := writeRow(ctx, int(ai.BankIDOut), addr, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// aluPool implements MAXPOOL/AVEPOOL, the same windowed reduction as
// pkg/kernel/pool.Pool, reused here because ALU's exec_mode selects it
// over the same kernel/stride/pad fields ALUINIT shares with POOLINIT.
func aluPool(ctx *engine.Context, ai *engine.AluInitState, dstH, dstW, channels int) error {
	kh, kw := int(ai.KernelH), int(ai.KernelW)
	strideH, strideW := int(ai.StrideH), int(ai.StrideW)
	if strideH <= 0 || strideW <= 0 {
		return simerr.New(simerr.ParameterFailed, "alu: stride must be positive, got (%d,%d)", strideH, strideW)
	}
	srcH := (dstH-1)*strideH + kh
	srcW := (dstW-1)*strideW + kw
	factor, shift := pool.ReciprocalFor(kh, kw)

	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			out := make([]int8, channels)
			for c := 0; c < channels; c++ {
				if ai.AluMode == ModeMAXPOOL {
					max := int64(-128)
					for dh := 0; dh < kh; dh++ {
						for dw := 0; dw < kw; dw++ {
							r, col := i*strideH+dh, j*strideW+dw
							if r >= srcH || col >= srcW {
								continue
							}
							v, err := readRow(ctx, int(ai.BankIDIn), r*srcW+col, channels)
							if err != nil {
								return err
							}
							if int64(v[c]) > max {
								max = int64(v[c])
							}
						}
					}
					out[c] = fixed.Saturate[int8](float64(max), -128, 127)
				} else {
					var sum int64
					for dh := 0; dh < kh; dh++ {
						for dw := 0; dw < kw; dw++ {
							r, col := i*strideH+dh, j*strideW+dw
							if r >= srcH || col >= srcW {
								continue
							}
							v, err := readRow(ctx, int(ai.BankIDIn), r*srcW+col, channels)
							if err != nil {
								return err
							}
							sum += int64(v[c])
						}
					}
					approx := float64(sum*int64(factor)) / float64(int64(1)<<uint(shift))
					out[c] = fixed.Saturate[int8](approx, -128, 127)
				}
			}
			if err := writeRow(ctx, int(ai.BankIDOut), i*dstW+j, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// aluReduceChannels implements MAXREDUCE/REDUCTION: collapse the channel
// axis of each spatial position to a single value, broadcast back across
// the channel width of the output tile (the natural shape for a
// reduction result stored in the same bank layout as its input).
func aluReduceChannels(ctx *engine.Context, ai *engine.AluInitState, dstH, dstW, channels int) error {
	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			addr := i*dstW + j
			in, err := readRow(ctx, int(ai.BankIDIn), addr, channels)
			if err != nil {
				return err
			}
			var result int64
			if ai.AluMode == ModeMAXREDUCE {
				result = int64(-128)
				for _, v := range in {
					if int64(v) > result {
						result = int64(v)
					}
				}
			} else {
				for _, v := range in {
					result += int64(v)
				}
			}
			out := make([]int8, channels)
			v := fixed.Saturate[int8](float64(result), -128, 127)
			for c := range out {
				out[c] = v
			}
			if err := writeRow(ctx, int(ai.BankIDOut), addr, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// aluCompare implements COMP as a sign test against zero: each output
// value is 1 where the input is >= 0 and 0 where it is negative.
func aluCompare(ctx *engine.Context, ai *engine.AluInitState, dstH, dstW, channels int) error {
	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			addr := i*dstW + j
			in, err := readRow(ctx, int(ai.BankIDIn), addr, channels)
			if err != nil {
				return err
			}
			out := make([]int8, channels)
			for c, v := range in {
				if v >= 0 {
					out[c] = 1
				} else {
					out[c] = 0
				}
			}
			if err := writeRow(ctx, int(ai.BankIDOut), addr, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// aluTwoOperand implements MACC/ELEW_ADD/ELEW_MUL/ELEW_DIV. The second
// operand's bank id comes from the first ALUADDR plan entry (there
// being no second bank_id field on ALUINIT/ALU), consumed the same way
// pkg/kernel/conv consumes its CONVADDR plan.
func aluTwoOperand(ctx *engine.Context, ai *engine.AluInitState, dstH, dstW, channels int) error {
	if len(ctx.AluAddrPlan) == 0 {
		return simerr.New(simerr.ParameterFailed, "alu: exec_mode %d needs a second operand bank from an ALUADDR entry", ai.AluMode)
	}
	bankB := int(ctx.AluAddrPlan[0].BankAddr)
	if !ctx.Target.BankAccessWhitelist("alu-in")[bankB] {
		return simerr.New(simerr.WhitelistViolate, "alu: second-operand bank %d not in alu-in whitelist", bankB)
	}
	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			addr := i*dstW + j
			a, err := readRow(ctx, int(ai.BankIDIn), addr, channels)
			if err != nil {
				return err
			}
			b, err := readRow(ctx, bankB, addr, channels)
			if err != nil {
				return err
			}
			out := make([]int8, channels)
			for c := range out {
				var v float64
				switch ai.AluMode {
				case ModeMACC, ModeELEWAdd:
					v = float64(a[c]) + float64(b[c])
				case ModeELEWMul:
					v = float64(a[c]) * float64(b[c])
				case ModeELEWDiv:
					if b[c] == 0 {
						v = 0
					} else {
						v = float64(a[c]) / float64(b[c])
					}
				}
				out[c] = fixed.Saturate[int8](v, -128, 127)
			}
			if err := writeRow(ctx, int(ai.BankIDOut), addr, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// aluNormalize implements INSTANCENORM_{FIRST,SECOND}/LAYERNORM/L2NORM:
// per-pixel channel-axis normalization, with every intermediate value
// bfloat16-truncated the way the retrieved norm references do (spec.md
// §4.8 "Bfloat-16-truncated reference implementations").
func aluNormalize(ctx *engine.Context, ai *engine.AluInitState, dstH, dstW, channels int) error {
	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			addr := i*dstW + j
			in, err := readRow(ctx, int(ai.BankIDIn), addr, channels)
			if err != nil {
				return err
			}
			var mean float32
			for _, v := range in {
				mean += float32(v)
			}
			mean = bf(mean / float32(channels))

			var variance float32
			if ai.AluMode != ModeL2Norm {
				for _, v := range in {
					d := bf(float32(v) - mean)
					variance += bf(d * d)
				}
				variance = bf(variance / float32(channels))
			} else {
				for _, v := range in {
					variance += bf(float32(v) * float32(v))
				}
			}
			denom := bf(float32(math.Sqrt(float64(variance) + 1e-6)))
			if denom == 0 {
				denom = 1
			}

			out := make([]int8, channels)
			for c, v := range in {
				var normalized float32
				if ai.AluMode == ModeL2Norm {
					normalized = bf(float32(v) / denom)
				} else {
					normalized = bf(bf(float32(v)-mean) / denom)
				}
				out[c] = fixed.Saturate[int8](float64(normalized), -128, 127)
			}
			if err := writeRow(ctx, int(ai.BankIDOut), addr, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func bf(f float32) float32 {
	return fixed.BF16ToF32(fixed.FToBF16(f))
}
