// Package pool implements POOL/POOL1D (C9): input-padded max, sum, and
// approximate-reciprocal average pooling, optionally distributed across a
// worker pool by output row (spec.md §4.8, §5).
//
// Grounded on pkg/kernel/conv's fetch/whitelist shape for the padded-read
// pattern, reworked for pool's simpler raster addressing (no CONVADDR
// plan exists for POOL in the ISA table).
package pool

import (
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/engine"
	"github.com/oisee/dpusim/pkg/fixed"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/workerpool"
)

// Pool-type encoding for POOLINIT.pool_type. Not specified by any
// retrieved ISA table, so the ordering here is this simulator's own
// convention (documented as an Open Question decision in DESIGN.md).
const (
	TypeMax = 0
	TypeSum = 1
	TypeAvg = 2
)

// reciprocalEntry is one DPU approximate-reciprocal table row: divide by
// multiplying by Factor and right-shifting by Shift, instead of an exact
// division (spec.md §4.8 "DPU approximate reciprocal").
type reciprocalEntry struct{ Factor, Shift int }

var reciprocalTable = map[[2]int]reciprocalEntry{
	{3, 3}:   {7, 6},
	{5, 5}:   {10, 8},
	{6, 6}:   {7, 8},
	{7, 7}:   {21, 10},
	{14, 14}: {21, 12},
}

// bestReciprocal finds a (factor, shift) pair approximating 1/n for
// kernels outside the tabulated set, searching shifts up to 16 bits for
// the closest factor/2^shift to 1/n (spec.md "a best-search for others").
func bestReciprocal(n int) reciprocalEntry {
	best := reciprocalEntry{Factor: 1, Shift: 0}
	bestErr := 1.0
	for shift := 1; shift <= 16; shift++ {
		factor := int(float64(uint64(1)<<shift)/float64(n) + 0.5)
		if factor <= 0 {
			continue
		}
		approx := float64(factor) / float64(uint64(1)<<shift)
		err := approx - 1.0/float64(n)
		if err < 0 {
			err = -err
		}
		if err < bestErr {
			bestErr = err
			best = reciprocalEntry{Factor: factor, Shift: shift}
		}
	}
	return best
}

func reciprocalFor(kh, kw int) reciprocalEntry {
	if e, ok := reciprocalTable[[2]int{kh, kw}]; ok {
		return e
	}
	return bestReciprocal(kh * kw)
}

// ReciprocalFor exposes the DPU approximate-reciprocal lookup (tabulated
// for small kernels, best-search otherwise) for other average-reducing
// kernels, e.g. pkg/kernel/alu's AVEPOOL sub-mode.
func ReciprocalFor(kh, kw int) (factor, shift int) {
	e := reciprocalFor(kh, kw)
	return e.Factor, e.Shift
}

// Pool is the POOL/POOL1D action-op handler.
func Pool(ctx *engine.Context, instr isa.Instruction) error {
	pi := ctx.PoolInit
	if pi == nil {
		return simerr.New(simerr.ParameterFailed, "pool: POOL with no preceding POOLINIT")
	}
	if !ctx.Target.InstrLimitWhitelist("pool-kernel").Contains(int(pi.KernelH)) ||
		!ctx.Target.InstrLimitWhitelist("pool-kernel").Contains(int(pi.KernelW)) {
		return simerr.New(simerr.WhitelistViolate, "pool: kernel size (%d,%d) outside instruction-limit whitelist", pi.KernelH, pi.KernelW)
	}
	if !ctx.Target.InstrLimitWhitelist("pool-stride").Contains(int(pi.StrideH)) ||
		!ctx.Target.InstrLimitWhitelist("pool-stride").Contains(int(pi.StrideW)) {
		return simerr.New(simerr.WhitelistViolate, "pool: stride (%d,%d) outside instruction-limit whitelist", pi.StrideH, pi.StrideW)
	}
	if !ctx.Target.BankAccessWhitelist("pool-in")[int(pi.BankIDIn)] {
		return simerr.New(simerr.WhitelistViolate, "pool: input bank %d not in pool-in whitelist", pi.BankIDIn)
	}
	if !ctx.Target.BankAccessWhitelist("pool-out")[int(pi.BankIDOut)] {
		return simerr.New(simerr.WhitelistViolate, "pool: output bank %d not in pool-out whitelist", pi.BankIDOut)
	}

	dstW := int(instr.Field("valid_pixel_parallel"))
	dstH := int(instr.Field("length"))
	kh, kw := int(pi.KernelH), int(pi.KernelW)
	strideH, strideW := int(pi.StrideH), int(pi.StrideW)
	if strideH <= 0 || strideW <= 0 {
		return simerr.New(simerr.ParameterFailed, "pool: stride must be positive, got (%d,%d)", strideH, strideW)
	}
	channels := ctx.Target.ICP

	srcH := (dstH-1)*strideH + kh
	srcW := (dstW-1)*strideW + kw
	img, err := fetchPadded(ctx, int(pi.BankIDIn), srcH, srcW, channels, int(pi.PadTop), int(pi.PadLeft))
	if err != nil {
		return err
	}

	out := make([][][]int8, dstH)
	for i := range out {
		out[i] = make([][]int8, dstW)
	}

	recip := reciprocalFor(kh, kw)
	compute := func(i int) error {
		for j := 0; j < dstW; j++ {
			row := make([]int8, channels)
			for c := 0; c < channels; c++ {
				row[c] = reduceWindow(img, i*strideH, j*strideW, kh, kw, c, pi.PoolType, recip)
			}
			out[i][j] = row
		}
		return nil
	}

	wp := workerpool.New(ctx.Cfg.PoolWorkers())
	if err := wp.Run(dstH, compute); err != nil {
		return err
	}

	for i := 0; i < dstH; i++ {
		for j := 0; j < dstW; j++ {
			buf := make([]byte, channels)
			for c, v := range out[i][j] {
				buf[c] = byte(v)
			}
			if err := ctx.Banks.Write(int(pi.BankIDOut), i*dstW+j, 0, channels, buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func fetchPadded(ctx *engine.Context, bankID, srcH, srcW, channels, padTop, padLeft int) ([][][]int8, error) {
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

// reduceWindow folds the kh x kw window at (baseRow, baseCol) for one
// channel into a single output value per pool_type: max, sum, or the
// DPU approximate-reciprocal average (spec.md §4.8 "POOL / POOL1D").
func reduceWindow(img [][][]int8, baseRow, baseCol, kh, kw, channel int, poolType uint32, recip reciprocalEntry) int8 {
	switch poolType {
	case TypeMax:
		max := int64(-128)
		for dh := 0; dh < kh; dh++ {
			for dw := 0; dw < kw; dw++ {
				v := int64(img[baseRow+dh][baseCol+dw][channel])
				if v > max {
					max = v
				}
			}
		}
		return fixed.Saturate[int8](float64(max), -128, 127)
	case TypeAvg:
		var sum int64
		for dh := 0; dh < kh; dh++ {
			for dw := 0; dw < kw; dw++ {
				sum += int64(img[baseRow+dh][baseCol+dw][channel])
			}
		}
		approx := float64(sum*int64(recip.Factor)) / float64(int64(1)<<uint(recip.Shift))
		return fixed.Saturate[int8](approx, -128, 127)
	default: // TypeSum
		var sum int64
		for dh := 0; dh < kh; dh++ {
			for dw := 0; dw < kw; dw++ {
				sum += int64(img[baseRow+dh][baseCol+dw][channel])
			}
		}
		return fixed.Saturate[int8](float64(sum), -128, 127)
	}
}
