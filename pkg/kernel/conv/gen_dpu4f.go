package conv

import "github.com/oisee/dpusim/pkg/engine"

// convDPU4F handles the 4-bit variant: weights are forced to signed
// 4-bit range and a parity-coupled correction is applied when an even-oc
// weight is negative (spec.md §4.7 "DPU4F (4-bit) ... applies a
// parity-coupled 'if even-oc's weight is negative, add 1 to the odd-oc's
// weight' correction when reading"). Images keep the shared fetch path;
// the bank store's nibble shim (pkg/bank.Store.readNibbles/writeNibbles,
// enabled by the nibble flag passed to bank.NewStore) packs/unpacks and
// sign-extends the 4-bit values underneath it.
func convDPU4F(ctx *engine.Context, g Geometry) error {
	weights, err := FetchWeights(ctx, g)
	if err != nil {
		return err
	}
	clampAndCorrectParity(weights)
	return runPipeline(ctx, g, weights)
}

func clampAndCorrectParity(weights [][][][]int8) {
	for oc := 0; oc+1 < len(weights); oc += 2 {
		even, odd := weights[oc], weights[oc+1]
		for kh := range even {
			for kw := range even[kh] {
				for ic := range even[kh][kw] {
					even[kh][kw][ic] = clampInt8(even[kh][kw][ic], -8, 7)
					odd[kh][kw][ic] = clampInt8(odd[kh][kw][ic], -8, 7)
					if even[kh][kw][ic] < 0 {
						odd[kh][kw][ic] = clampInt8(odd[kh][kw][ic]+1, -8, 7)
					}
				}
			}
		}
	}
}

func clampInt8(v int8, lo, hi int8) int8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
