package conv

import "github.com/oisee/dpusim/pkg/engine"

// FetchInput reads the padded src_h x src_w x ic tile into a flat buffer,
// zero-filling the padded border (spec.md §4.7 "Padding": "filled with
// zero ... for quantized conv"). Row addresses come from the CONVADDR IFM
// plan when present (spec.md "Fetch phase").
func FetchInput(ctx *engine.Context, g Geometry) ([][][]int8, error) {
	return fetchInputAtColumn(ctx, g, 0)
}

// fetchInputAtColumn is FetchInput with the source column origin shifted
// by colOffset, used by DPUV4E's multi-batch packing (gen_dpuv4e.go) to
// read each batch's sub-tile from its own stride_batch-separated source
// window (spec.md §4.7 "DPUV4E supports multi-batch packing ... via
// batch_num and stride_batch").
func fetchInputAtColumn(ctx *engine.Context, g Geometry, colOffset int) ([][][]int8, error) {
	img := make([][][]int8, g.SrcH)
	for r := 0; r < g.SrcH; r++ {
		img[r] = make([][]int8, g.SrcW)
		row := r - g.PadTop
		for c := 0; c < g.SrcW; c++ {
			col := c - g.PadLeft + colOffset
			pixel := make([]int8, g.IC)
			if row >= 0 && col >= 0 && r < g.SrcH-g.PadBottom && c < g.SrcW-g.PadRight {
				addr := rowAddr(ctx.ConvAddrPlan, AddrIFM, row, g.SrcW-g.PadLeft-g.PadRight) + col
				buf := make([]byte, g.IC)
				if err := ctx.Banks.Read(int(ctx.ConvInit.BankIDIn), addr, 0, g.IC, buf); err != nil {
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

// FetchWeights reads weights[oc][kh][kw][ic] from the WGT bank group. One
// bank line holds the ic-vector for a single (oc, kh, kw) tuple, addressed
// sequentially — the simulator's un-shuffled, natural-layout view that
// the real hardware's 16-bank interleave is un-shuffled back into before
// the MAC phase runs (spec.md §4.7 "Fetch phase").
func FetchWeights(ctx *engine.Context, g Geometry) ([][][][]int8, error) {
	w := make([][][][]int8, g.OC)
	for oc := 0; oc < g.OC; oc++ {
		w[oc] = make([][][]int8, g.KernelH)
		for kh := 0; kh < g.KernelH; kh++ {
			w[oc][kh] = make([][]int8, g.KernelW)
			for kw := 0; kw < g.KernelW; kw++ {
				addr := rowAddr(ctx.ConvAddrPlan, AddrWGT, 0, 0) + (oc*g.KernelH+kh)*g.KernelW + kw
				buf := make([]byte, g.IC)
				if err := ctx.Banks.Read(int(ctx.ConvInit.BankIDWgt), addr, 0, g.IC, buf); err != nil {
					return nil, err
				}
				vec := make([]int8, g.IC)
				for i, b := range buf {
					vec[i] = int8(b)
				}
				w[oc][kh][kw] = vec
			}
		}
	}
	return w, nil
}

// FetchBias reads one int32 bias value per output channel, little-endian
// in the first four bytes of its bank line.
func FetchBias(ctx *engine.Context, g Geometry) ([]int32, error) {
	bias := make([]int32, g.OC)
	for oc := 0; oc < g.OC; oc++ {
		addr := rowAddr(ctx.ConvAddrPlan, AddrBias, 0, 0) + oc
		buf := make([]byte, 4)
		if err := ctx.Banks.Read(int(ctx.ConvInit.BankIDBias), addr, 0, 4, buf); err != nil {
			return nil, err
		}
		bias[oc] = int32(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
	}
	return bias, nil
}
