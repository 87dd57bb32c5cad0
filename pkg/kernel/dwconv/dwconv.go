// Package dwconv implements DPTWISE (C9): depthwise convolution, which is
// a plain convolution with exactly one weight filter per channel instead
// of a full output-channel x input-channel weight tensor. The bias,
// activation, and shift_cut math are identical to full convolution, so
// this package calls straight into pkg/kernel/conv for those primitives
// rather than re-deriving them (spec.md §4.8 "DPTWISE / DW-CONV. As conv
// with per-channel weights; same activation menu.").
package dwconv

import (
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/engine"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/kernel/conv"
)

// DPTwise is the DPTWISE action-op handler.
func DPTwise(ctx *engine.Context, instr isa.Instruction) error {
	di := ctx.DWInit
	if di == nil {
		return simerr.New(simerr.ParameterFailed, "dwconv: DPTWISE with no preceding DWINIT")
	}
	if !ctx.Target.InstrLimitWhitelist("conv-kernel").Contains(int(di.KernelH)) ||
		!ctx.Target.InstrLimitWhitelist("conv-kernel").Contains(int(di.KernelW)) {
		return simerr.New(simerr.WhitelistViolate, "dwconv: kernel size (%d,%d) outside instruction-limit whitelist", di.KernelH, di.KernelW)
	}
	if !ctx.Target.InstrLimitWhitelist("conv-stride").Contains(int(di.StrideH)) ||
		!ctx.Target.InstrLimitWhitelist("conv-stride").Contains(int(di.StrideW)) {
		return simerr.New(simerr.WhitelistViolate, "dwconv: stride (%d,%d) outside instruction-limit whitelist", di.StrideH, di.StrideW)
	}
	for _, check := range []struct {
		access string
		bankID int
	}{
		{"dwconv-in", int(di.BankIDIn)},
		{"dwconv-out", int(di.BankIDOut)},
	} {
		if !ctx.Target.BankAccessWhitelist(check.access)[check.bankID] {
			return simerr.New(simerr.WhitelistViolate, "dwconv: bank %d not in %q whitelist", check.bankID, check.access)
		}
	}

	dstW := int(instr.Field("valid_pixel_parallel"))
	dstH := int(instr.Field("length"))
	strideH, strideW := int(di.StrideH), int(di.StrideW)
	if strideH <= 0 || strideW <= 0 {
		return simerr.New(simerr.ParameterFailed, "dwconv: stride must be positive, got (%d,%d)", strideH, strideW)
	}
	kh, kw := int(di.KernelH), int(di.KernelW)
	channels := int(di.ChannelGroup) * ctx.Target.ICP
	srcH := (dstH-1)*strideH + kh
	srcW := (dstW-1)*strideW + kw

	img, err := fetchInput(ctx, int(di.BankIDIn), srcH, srcW, channels, int(di.PadTop), int(di.PadLeft))
	if err != nil {
		return err
	}
	weights, err := fetchWeights(ctx, int(di.BankIDWgt), kh, kw, channels)
	if err != nil {
		return err
	}
	bias, err := fetchBias(ctx, int(di.BankIDBias), channels)
	if err != nil {
		return err
	}

	out := make([][][]int8, dstH)
	for i := range out {
		out[i] = make([][]int8, dstW)
		for j := range out[i] {
			out[i][j] = make([]int8, channels)
			for c := 0; c < channels; c++ {
				var acc int64
				for dh := 0; dh < kh; dh++ {
					for dw := 0; dw < kw; dw++ {
						acc += int64(img[i*strideH+dh][j*strideW+dw][c]) * int64(weights[c][dh][dw])
					}
				}
				biased, err := conv.ApplyBias(acc, bias[c], di.ShiftBias)
				if err != nil {
					return err
				}
				out[i][j][c] = conv.Activate(biased, di.ShiftCut, di.ActType, 0, 0, 0, 0, 0)
			}
		}
	}

	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			buf := make([]byte, channels)
			for c, v := range out[i][j] {
				buf[c] = byte(v)
			}
			if err := ctx.Banks.Write(int(di.BankIDOut), i*dstW+j, 0, channels, buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func fetchInput(ctx *engine.Context, bankID, srcH, srcW, channels, padTop, padLeft int) ([][][]int8, error) {
	img := make([][][]int8, srcH)
	for r := 0; r < srcH; r++ {
		img[r] = make([][]int8, srcW)
		row := r - padTop
		for c := 0; c < srcW; c++ {
			col := c - padLeft
			pixel := make([]int8, channels)
			if row >= 0 && col >= 0 {
				buf := make([]byte, channels)
				if err := ctx.Banks.Read(bankID, row*srcW+col, 0, channels, buf); err != nil {
					return nil, err
				}
				for i, b := range buf {
					pixel[i] = int8(b)
				}
			}
			img[r][c] = pixel
		}
	}
	return img, nil
}

// fetchWeights reads weights[channel][kh][kw], one byte per (channel,
// kh, kw) tuple, addressed sequentially in the natural-layout view
// (same convention as pkg/kernel/conv.FetchWeights).
func fetchWeights(ctx *engine.Context, bankID, kh, kw, channels int) ([][][]int8, error) {
	w := make([][][]int8, channels)
	for c := 0; c < channels; c++ {
		w[c] = make([][]int8, kh)
		for h := 0; h < kh; h++ {
			w[c][h] = make([]int8, kw)
			buf := make([]byte, kw)
			addr := c*kh + h
			if err := ctx.Banks.Read(bankID, addr, 0, kw, buf); err != nil {
				return nil, err
			}
			for i, b := range buf {
				w[c][h][i] = int8(b)
			}
		}
	}
	return w, nil
}

func fetchBias(ctx *engine.Context, bankID, channels int) ([]int32, error) {
	bias := make([]int32, channels)
	for c := 0; c < channels; c++ {
		buf := make([]byte, 4)
		if err := ctx.Banks.Read(bankID, c, 0, 4, buf); err != nil {
			return nil, err
		}
		bias[c] = int32(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
	}
	return bias, nil
}
