package conv

import (
	"fmt"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/internal/trace"
	"github.com/oisee/dpusim/pkg/engine"
	"github.com/oisee/dpusim/pkg/isa"
	"github.com/oisee/dpusim/pkg/target"
)

// Conv is the CONV action-op handler: it assembles geometry, fetches the
// input/weight/bias tiles, runs MAC, bias, activation and shift_cut, an
// optional tile reorder, and writes the result back to the OFM bank.
// Generation-specific sub-flows are selected up front by a switch on
// ctx.Target.Generation (spec.md §4.7 "Special sub-flows").
func Conv(ctx *engine.Context, instr isa.Instruction) error {
	ci := ctx.ConvInit

	if ctx.Target.Generation == target.DPUV3ME && ci.DestMode == 0 {
		return simerr.New(simerr.ParameterFailed, "conv: DPUV3ME dest_mode=0 is undocumented and rejected")
	}
	if !ctx.Target.InstrLimitWhitelist("conv-kernel").Contains(int(ci.KernelH)) ||
		!ctx.Target.InstrLimitWhitelist("conv-kernel").Contains(int(ci.KernelW)) {
		return simerr.New(simerr.WhitelistViolate, "conv: kernel size (%d,%d) outside instruction-limit whitelist", ci.KernelH, ci.KernelW)
	}
	if !ctx.Target.InstrLimitWhitelist("conv-stride").Contains(int(ci.StrideH)) ||
		!ctx.Target.InstrLimitWhitelist("conv-stride").Contains(int(ci.StrideW)) {
		return simerr.New(simerr.WhitelistViolate, "conv: stride (%d,%d) outside instruction-limit whitelist", ci.StrideH, ci.StrideW)
	}
	for _, check := range []struct {
		access string
		bankID int
	}{
		{"conv-in", int(ci.BankIDIn)},
		{"conv-wgt", int(ci.BankIDWgt)},
		{"conv-bias", int(ci.BankIDBias)},
	} {
		if !ctx.Target.BankAccessWhitelist(check.access)[check.bankID] {
			return simerr.New(simerr.WhitelistViolate, "conv: bank %d not in %q whitelist", check.bankID, check.access)
		}
	}

	dstW := int(instr.Field("valid_pixel_parallel"))
	dstH := int(instr.Field("length"))
	g, err := ComputeGeometry(ctx, dstH, dstW)
	if err != nil {
		return err
	}

	if ctx.Cfg.CoSimOn() {
		ctx.Trace.Add(trace.Event{
			InstrIndex: ctx.InstrIndex,
			Kind:       "conv_result_tick",
			Detail:     fmt.Sprintf("dst=%dx%dx%d bank_out=%d", g.DstH, g.DstW, g.OC, ci.BankIDOut),
		})
	}

	switch ctx.Target.Generation {
	case target.DPUV4E:
		return convDPUV4E(ctx, g)
	case target.XVDPU:
		return convXVDPU(ctx, g)
	case target.DPU4F:
		return convDPU4F(ctx, g)
	default:
		return convDefault(ctx, g)
	}
}

// convDefault is the shared reference path used by DPUV2/DPUV3E/DPUV3ME/
// XV2DPU/XV3DPU — the latter two already get kernel reversal folded into
// ComputeGeometry via kh_iter/kw_iter.
func convDefault(ctx *engine.Context, g Geometry) error {
	weights, err := FetchWeights(ctx, g)
	if err != nil {
		return err
	}
	return runPipeline(ctx, g, weights)
}

// runPipeline fetches the input tile and bias, runs MAC, bias, activation
// and shift_cut, an optional tile reorder, and writes the result back.
// Shared by every generation so DPU4F can substitute parity-corrected
// weights without duplicating the rest of the phase sequence.
func runPipeline(ctx *engine.Context, g Geometry, weights [][][][]int8) error {
	img, err := FetchInput(ctx, g)
	if err != nil {
		return err
	}
	return runPipelineWithImage(ctx, g, weights, img)
}

// runPipelineWithImage is runPipeline given an already-fetched image tile,
// letting a generation substitute its own fetch (gen_xvdpu.go's staggered
// bank read) while sharing the bias/activation/reorder/write-back phases.
func runPipelineWithImage(ctx *engine.Context, g Geometry, weights [][][][]int8, img [][][]int8) error {
	bias, err := FetchBias(ctx, g)
	if err != nil {
		return err
	}
	out, err := computeTile(ctx, g, weights, img, bias)
	if err != nil {
		return err
	}
	return finishTile(ctx, out, g.DstH, g.DstW, g.OC)
}

// computeTile runs MAC, bias and activation over one already-fetched image
// tile, producing the (dst_h, dst_w, oc) output before any tile reorder or
// write-back. Factored out of runPipeline so DPUV4E's multi-batch packing
// (gen_dpuv4e.go) can run it once per batch and assemble the batches into
// one wider tile before the shared reorder/write-back epilogue.
func computeTile(ctx *engine.Context, g Geometry, weights [][][][]int8, img [][][]int8, bias []int32) ([][][]int8, error) {
	acc := MAC(g, img, weights)
	ci := ctx.ConvInit
	out := make([][][]int8, g.DstH)
	for i := range out {
		out[i] = make([][]int8, g.DstW)
		for j := range out[i] {
			out[i][j] = make([]int8, g.OC)
			for k := 0; k < g.OC; k++ {
				biased, err := ApplyBias(acc[i][j][k], bias[k], ci.ShiftBias)
				if err != nil {
					return nil, err
				}
				out[i][j][k] = Activate(biased, ci.ShiftCut, ci.ActType,
					ci.HsigmoidIn, ci.ShiftHsigmoid, ci.ShiftHswish, ci.PreluIn, ci.PreluShift)
			}
		}
	}
	return out, nil
}

// finishTile applies the optional tile reorder and writes the result back
// to the OFM bank, the epilogue shared by every generation's conv path.
func finishTile(ctx *engine.Context, out [][][]int8, h, w, oc int) error {
	if ctx.Target.TileEnabled {
		reordered, newH, newW, newOC, err := Reorder(out, h, w, oc)
		if err != nil {
			return err
		}
		out, h, w, oc = reordered, newH, newW, newOC
	}
	return WriteBack(ctx, out, h, w, oc)
}
