package conv

import "github.com/oisee/dpusim/pkg/engine"

// AIE_W: the AIE array's native output-width tile, every DPUV4E conv's
// packed width aligns up to this (spec.md §4.7).
const aieW = 14

// convDPUV4E handles DPUV4E's multi-batch packing: batch_num independently
// addressed sub-tiles, each stride_batch source columns apart, are fetched
// and convolved against the same weights, then concatenated side by side
// into one output tile whose combined width is aligned up to AIE_W=14
// before write-back (spec.md §4.7 "DPUV4E supports multi-batch packing
// inside one conv via batch_num and stride_batch; the fetch aggregates
// batch_num sub-tiles side-by-side into align_src_w, and the output width
// is aligned to 14"). Grounded on
// original_source/sim-runner/src/inst/Conv.cpp's
// Conv<DPUVersion::DPUV4E>::read()/conv(), whose idx_batch loop offsets
// each sub-tile's source columns by idx_batch*stride_batch_ and whose
// dst_w_ = batch_num_*length_ is aligned up to AIE_W_ the same way.
func convDPUV4E(ctx *engine.Context, g Geometry) error {
	ci := ctx.ConvInit
	batchNum := maxInt(1, int(ci.BatchNum))
	strideBatch := int(ci.StrideBatch)

	weights, err := FetchWeights(ctx, g)
	if err != nil {
		return err
	}
	bias, err := FetchBias(ctx, g)
	if err != nil {
		return err
	}

	perBatchW := g.DstW
	totalW := batchNum * perBatchW
	alignedW := ((totalW + aieW - 1) / aieW) * aieW

	out := make([][][]int8, g.DstH)
	for i := range out {
		out[i] = make([][]int8, alignedW)
		for j := range out[i] {
			out[i][j] = make([]int8, g.OC)
		}
	}

	for b := 0; b < batchNum; b++ {
		img, err := fetchInputAtColumn(ctx, g, b*strideBatch)
		if err != nil {
			return err
		}
		tile, err := computeTile(ctx, g, weights, img, bias)
		if err != nil {
			return err
		}
		for i := 0; i < g.DstH; i++ {
			copy(out[i][b*perBatchW:(b+1)*perBatchW], tile[i])
		}
	}

	return finishTile(ctx, out, g.DstH, alignedW, g.OC)
}
