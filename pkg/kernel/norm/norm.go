// Package norm implements the CPU-side (AC-code) quantized normalization
// and activation ops that ride alongside the DPU's fixed ALU rather than
// through its bit-level ISA: L2Norm-fix, quantized group/instance norm,
// and quantized swish. Every intermediate is bfloat16-truncated, matching
// the reference ops these are grounded on.
//
// Grounded on original_source/cpu-runner/src/op/l2norm_fix.cpp,
// qlinear_groupnorm.cpp, and qlinear_swish.cpp (approx_tanh's 19-segment
// table in particular is ported verbatim).
package norm

import (
	"math"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/fixed"
)

func bf(f float32) float32 {
	return fixed.BF16ToF32(fixed.FToBF16(f))
}

// ApproxTanh is qlinear_swish.cpp's 19-segment piecewise-linear tanh
// approximation, truncating its input and output to bfloat16.
func ApproxTanh(in float32) float32 {
	x := bf(in)
	var out float32
	switch {
	case x >= 3.0:
		out = 1.0
	case x >= 2.0:
		out = 0.03125*x + 0.90625
	case x >= 1.75:
		out = 0.125*x + 0.71875
	case x >= 1.5:
		out = 0.125*x + 0.72265625
	case x >= 1.25:
		out = 0.25*x + 0.53515625
	case x >= 1.0:
		out = 0.25*x + 0.52734375
	case x >= 0.75:
		out = 0.5*x + 0.265625
	case x >= 0.625:
		out = 0.5*x + 0.25390625
	case x >= 0.5:
		out = 0.5*x + 0.25
	case x > -0.5:
		out = x
	case x > -0.625:
		out = 0.5*x - 0.25
	case x > -0.75:
		out = 0.5*x - 0.25390625
	case x > -1.0:
		out = 0.5*x - 0.265625
	case x > -1.25:
		out = 0.25*x - 0.52734375
	case x > -1.5:
		out = 0.25*x - 0.53515625
	case x > -1.75:
		out = 0.125*x - 0.72265625
	case x > -2.0:
		out = 0.125*x - 0.71875
	case x > -3.0:
		out = 0.03125*x - 0.90625
	default:
		out = -1.0
	}
	return bf(out)
}

// L2NormFix implements l2_normalize-fix over one normalization chunk:
// descale each element by 2^-shiftRead, bf16-truncate, accumulate the
// bf16-truncated sum of squares, then rescale each element by the
// reciprocal square root (substituting a fixed small constant when the
// sum of squares underflows to near zero) and by 2^shiftWrite.
func L2NormFix(values []int32, shiftRead, shiftWrite int, mode fixed.RoundMode, lo, hi int32) ([]int32, error) {
	if len(values) == 0 {
		return nil, simerr.New(simerr.ParameterFailed, "norm: L2NormFix needs at least one value")
	}
	const substituteForZero = 1e-12

	descaled := make([]float32, len(values))
	var sumSq float32
	for i, v := range values {
		descaled[i] = bf(float32(v) * float32(math.Pow(2, float64(-shiftRead))))
		sumSq += bf(descaled[i] * descaled[i])
	}
	sumSq = bf(sumSq)

	var invNorm float32
	if sumSq < substituteForZero {
		invNorm = bf(1.0 / float32(math.Sqrt(substituteForZero)))
	} else {
		invNorm = bf(1.0 / float32(math.Sqrt(float64(sumSq))))
	}

	out := make([]int32, len(values))
	for i, d := range descaled {
		tmp := bf(bf(d) * invNorm)
		tmp = bf(tmp * float32(math.Pow(2, float64(shiftWrite))))
		if mode == fixed.RoundPY3 {
			out[i] = fixed.Saturate[int32](fixed.PY3Round(float64(tmp)), lo, hi)
		} else {
			// l2norm_fix.cpp's final cast is DPURoundEven(tmp, data_min, data_max):
			// clamp and round-half-to-even-from-floor in a single step.
			out[i] = fixed.RoundToEven[int32](float64(tmp), lo, hi)
		}
	}
	return out, nil
}

// NonLinear selects the optional activation applied after QGroupNorm's
// normalize-and-requantize step.
type NonLinear int

const (
	NonLinearNone NonLinear = iota
	NonLinearRelu
	NonLinearRelu6
)

// QGroupNorm implements qlinear-groupnorm for a single group: channels
// in `group` share one mean/variance computed over every (h, w, c) triple
// in the group, each gets an independent affine weight/bias, and the
// result is requantized to the output scale with an optional RELU/RELU6
// clamp.
func QGroupNorm(group [][]int32, weight, bias []int32, xZP, wZP, bZP, yZP int32, xScale, wScale, bScale, yScale, eps float32, mode fixed.RoundMode, lo, hi int32, act NonLinear) ([][]int32, error) {
	channels := len(group)
	if channels == 0 || len(weight) != channels || len(bias) != channels {
		return nil, simerr.New(simerr.ParameterFailed, "norm: QGroupNorm channel/weight/bias length mismatch")
	}
	n := len(group[0])
	for _, ch := range group {
		if len(ch) != n {
			return nil, simerr.New(simerr.ParameterFailed, "norm: QGroupNorm ragged spatial extent across channels")
		}
	}

	var sum, sumSq float64
	total := channels * n
	for _, ch := range group {
		for _, v := range ch {
			x := float64(v) - float64(xZP)
			sum += x
			sumSq += x * x
		}
	}
	mean := bf(float32(sum / float64(total)))
	meanSq := bf(float32(sumSq / float64(total)))
	variance := bf(meanSq - bf(mean*mean))
	if variance < 0 {
		variance = 0
	}
	denom := bf(float32(math.Sqrt(float64(variance) + float64(bf(eps)))))
	if denom == 0 {
		denom = 1
	}

	out := make([][]int32, channels)
	for c, ch := range group {
		w := bf((float32(weight[c]) - float32(wZP)) * wScale)
		b := bf((float32(bias[c]) - float32(bZP)) * bScale)
		row := make([]int32, n)
		for i, v := range ch {
			x := bf(float32(v) - float32(xZP))
			normalized := bf(bf(x-mean) / denom)
			scaled := bf(bf(normalized*xScale) * w)
			affine := bf(scaled + b)
			requant := bf(affine / yScale)
			var val float64
			if mode == fixed.RoundPY3 {
				val = fixed.PY3Round(float64(requant)) + float64(yZP)
			} else {
				// qlinear_groupnorm.cpp clamps and rounds Y_scaled to
				// [data_min-zp, data_max-zp] with round_to_even before
				// adding the zero point back in.
				y := fixed.RoundToEven[int32](float64(requant), lo-yZP, hi-yZP)
				val = float64(y) + float64(yZP)
			}
			switch act {
			case NonLinearRelu:
				if val < float64(yZP) {
					val = float64(yZP)
				}
			case NonLinearRelu6:
				six := 6.0/float64(yScale) + float64(yZP)
				if val < float64(yZP) {
					val = float64(yZP)
				} else if val > six {
					val = six
				}
			}
			row[i] = fixed.Saturate[int32](val, lo, hi)
		}
		out[c] = row
	}
	return out, nil
}

// QLinearSwish implements qlinear-swish's "sigmoid_mul"/"mul" pattern for
// one element: the 16-bit path derives sigmoid from ApproxTanh (the DPU
// never computes a real exponential), the 8-bit path uses the exact
// logistic function, matching qlinear_swish.cpp's two branches.
func QLinearSwish(x int32, xZP, yZP int32, xScale, yScale, beta float32, bitWidth int, lo, hi int32) (int32, error) {
	dIn := (float32(x) - float32(xZP)) / xScale
	dInA16 := (float32(x) - float32(xZP)) * bf(1/xScale)

	var sigmoid float32
	switch bitWidth {
	case 16:
		sigmoid = (ApproxTanh(dInA16*beta*0.5) + 1) * 0.5
	case 8:
		sigmoid = float32(1.0 / (math.Exp(float64(-dIn*beta)) + 1.0))
	default:
		return 0, simerr.New(simerr.ParameterFailed, "norm: QLinearSwish bit_width %d not in {8,16}", bitWidth)
	}

	var res float32
	if bitWidth == 8 {
		res = sigmoid * dIn * yScale
	} else {
		res = sigmoid * dInA16 * bf(yScale)
	}

	yLower := float32(lo) - float32(yZP)
	yUpper := float32(hi) - float32(yZP)
	if res < yLower {
		res = yLower
	}
	if res > yUpper {
		res = yUpper
	}
	rounded := fixed.RoundToEvenFromZero(float64(res)) + float64(yZP)
	return fixed.Saturate[int32](rounded, lo, hi), nil
}
