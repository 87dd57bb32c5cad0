package conv

import "github.com/oisee/dpusim/internal/simerr"

// Reorder implements the tile-reorder post-pass (C10): HWC output of
// shape (dstH, dstW, oc) is reshaped to (dstH*2, dstW*2, oc/4) by placing
// the four 2x2 sub-groups of channels into their new (h*2+sh, w*2+sw)
// positions (spec.md §4.7 "Tile reorder").
func Reorder(data [][][]int8, dstH, dstW, oc int) ([][][]int8, int, int, int, error) {
	if oc%4 != 0 {
		return nil, 0, 0, 0, simerr.New(simerr.ParameterFailed, "conv: tile reorder requires oc divisible by 4, got %d", oc)
	}
	newOC := oc / 4
	newH, newW := dstH*2, dstW*2
	out := make([][][]int8, newH)
	for h := range out {
		out[h] = make([][]int8, newW)
		for w := range out[h] {
			out[h][w] = make([]int8, newOC)
		}
	}
	for h := 0; h < dstH; h++ {
		for w := 0; w < dstW; w++ {
			for sh := 0; sh < 2; sh++ {
				for sw := 0; sw < 2; sw++ {
					group := sh*2 + sw
					src := data[h][w][group*newOC : group*newOC+newOC]
					copy(out[h*2+sh][w*2+sw], src)
				}
			}
		}
	}
	return out, newH, newW, newOC, nil
}
