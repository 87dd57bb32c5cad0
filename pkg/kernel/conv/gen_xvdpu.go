package conv

import (
	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/engine"
)

// convXVDPU handles XVDPU's staggered fetch: a first pass picks the read
// stride — stride_h itself, the row interval at which a source row moves
// to the next bank in the band — then reads the padded image from that
// stride_h-wide rotating band of banks rather than one flat bank (spec.md
// §4.7 "XVDPU performs a first pass to pick the read stride then reads
// the padded image into a staggered layout across banks"). Grounded on
// original_source/sim-runner/src/inst/Conv.cpp's
// Conv<DPUVersion::XVDPU>::read(), which rotates each source row across a
// pp_-wide band of banks via bank_id_base + bank_offset%pp_; here the band
// width is stride_h, since that is the interval XVDPU's own "pick the
// read stride" pass selects and it is already validated by the
// conv-stride whitelist.
func convXVDPU(ctx *engine.Context, g Geometry) error {
	weights, err := FetchWeights(ctx, g)
	if err != nil {
		return err
	}
	img, err := fetchStaggeredInput(ctx, g)
	if err != nil {
		return err
	}
	return runPipelineWithImage(ctx, g, weights, img)
}

// fetchStaggeredInput reads source row r from bank bank_id_in + (r % pp),
// addressing it via the (row / pp)-th entry of the CONVADDR IFM plan — the
// staggered-across-banks layout XVDPU's first pass selects stride_h for.
func fetchStaggeredInput(ctx *engine.Context, g Geometry) ([][][]int8, error) {
	pp := g.StrideH
	if pp <= 0 {
		pp = 1
	}
	img := make([][][]int8, g.SrcH)
	for r := 0; r < g.SrcH; r++ {
		img[r] = make([][]int8, g.SrcW)
		row := r - g.PadTop
		for c := 0; c < g.SrcW; c++ {
			col := c - g.PadLeft
			pixel := make([]int8, g.IC)
			if row >= 0 && col >= 0 {
				band := row % pp
				bankID := int(ctx.ConvInit.BankIDIn) + band
				if !ctx.Target.BankAccessWhitelist("conv-in")[bankID] {
					return nil, simerr.New(simerr.WhitelistViolate, "conv: staggered-fetch bank %d not in conv-in whitelist", bankID)
				}
				addr := rowAddr(ctx.ConvAddrPlan, AddrIFM, row/pp, g.SrcW-g.PadLeft-g.PadRight) + col
				buf := make([]byte, g.IC)
				if err := ctx.Banks.Read(bankID, addr, 0, g.IC, buf); err != nil {
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
