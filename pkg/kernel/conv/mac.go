package conv

// MAC performs the affine convolution's multiply-accumulate phase in
// int64, exactly the nested loop of spec.md §4.7 "MAC phase".
func MAC(g Geometry, img [][][]int8, weights [][][][]int8) [][][]int64 {
	result := make([][][]int64, g.DstH)
	for i := 0; i < g.DstH; i++ {
		result[i] = make([][]int64, g.DstW)
		for j := 0; j < g.DstW; j++ {
			result[i][j] = make([]int64, g.OC)
			for k := 0; k < g.OC; k++ {
				var acc int64
				for kh := 0; kh < g.KernelH; kh++ {
					for kw := 0; kw < g.KernelW; kw++ {
						pixel := img[i*g.StrideH+kh][j*g.StrideW+kw]
						wvec := weights[k][kh][kw]
						for ic := 0; ic < g.IC; ic++ {
							acc += int64(pixel[ic]) * int64(wvec[ic])
						}
					}
				}
				result[i][j][k] = acc
			}
		}
	}
	return result
}
