// Package conv implements the convolution kernel (C8), the central
// subsystem: geometry derivation, address planning, fetch, MAC, bias +
// activation + shift_cut, tile reorder, and write-back, split one
// concern per file the way Conv.cpp's phases are named in
// original_source/sim-runner/src/dpu_kernel/Conv.cpp.
package conv

import (
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/engine"
)

// Geometry is the derived shape of one CONV call (spec.md §4.7
// "Geometry"). icp/ocp come from the target descriptor; ohp/owp come
// from the CONV instruction's length/valid_pixel_parallel pair (the
// pixel parallelism of one issue); CONVINIT's oh_iter/ow_iter/ic_iter/
// oc_iter and tile_ohg/tile_owg/tile_icg/tile_ocg scale that single-issue
// shape up to the full tile the CONVINIT/CONV pair addresses.
type Geometry struct {
	KernelH, KernelW int
	StrideH, StrideW int
	PadTop, PadBottom, PadLeft, PadRight int
	DstH, DstW       int
	SrcH, SrcW       int
	IC, OC           int
}

// ComputeGeometry derives a Geometry from the stashed CONVINIT state and
// the CONV instruction's own ohp/owp (single-issue pixel parallelism).
// Reverse-kernel-iterate (XV2/XV3DPU) is folded in here: a kh_iter/kw_iter
// > 1 means the decoded kernel_h/kernel_w is the per-iteration size, and
// the logical kernel actually swept is kernel*iter (spec.md §4.7 "Special
// sub-flows").
//
// dst_h/dst_w/ic/oc follow spec.md §4.7's tiling formulas exactly:
//
//	dst_h = oh_iter*tile_ohg*ohp
//	dst_w = ow_iter*tile_owg*owp - ow_offset
//	ic    = ic_iter*tile_icg*icp - icg_offset
//	oc    = oc_iter*tile_ocg*ocp
//
// An omitted (decoded-0) iteration or tile count means "one", matching
// the existing kh_iter/kw_iter convention below, so a CONVINIT that
// never sets these fields reproduces a single, untiled issue.
func ComputeGeometry(ctx *engine.Context, ohp, owp int) (Geometry, error) {
	ci := ctx.ConvInit
	if ci == nil {
		return Geometry{}, simerr.New(simerr.ParameterFailed, "conv: CONV with no preceding CONVINIT")
	}
	kh := int(ci.KernelH) * maxInt(1, int(ci.KhIter))
	kw := int(ci.KernelW) * maxInt(1, int(ci.KwIter))
	strideH, strideW := int(ci.StrideH), int(ci.StrideW)
	if strideH <= 0 || strideW <= 0 {
		return Geometry{}, simerr.New(simerr.ParameterFailed, "conv: stride must be positive, got (%d,%d)", strideH, strideW)
	}

	icp := ctx.Target.ICP
	ocp := ctx.Target.OCP

	ohIter := maxInt(1, int(ci.OhIter))
	owIter := maxInt(1, int(ci.OwIter))
	icIter := maxInt(1, int(ci.IcIter))
	ocIter := maxInt(1, int(ci.OcIter))
	tileOhg := maxInt(1, int(ci.TileOhg))
	tileOwg := maxInt(1, int(ci.TileOwg))
	tileIcg := maxInt(1, int(ci.TileIcg))
	tileOcg := maxInt(1, int(ci.TileOcg))

	dstH := ohIter * tileOhg * ohp
	dstW := owIter*tileOwg*owp - int(ci.OwOffset)
	ic := icIter*tileIcg*icp - int(ci.IcgOffset)
	oc := ocIter * tileOcg * ocp

	g := Geometry{
		KernelH: kh, KernelW: kw,
		StrideH: strideH, StrideW: strideW,
		PadTop: int(ci.PadTop), PadBottom: int(ci.PadBottom),
		PadLeft: int(ci.PadLeft), PadRight: int(ci.PadRight),
		DstH: dstH, DstW: dstW,
		IC: ic,
		OC: oc,
	}
	g.SrcH = (dstH-1)*strideH + kh
	g.SrcW = (dstW-1)*strideW + kw
	return g, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
