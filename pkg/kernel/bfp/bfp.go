// Package bfp implements Block Floating Point quantization (spec.md §4.8,
// §8 property 7): a block of float32 values sharing one exponent, encoded
// as a common scale plus per-element integer mantissas.
//
// Grounded directly on original_source/cpu-runner/src/bfp_kernel.cpp:
// GetExponentCPU/GetMaxExponentCPU for the shared-exponent search,
// dpu_round/py3_round (now pkg/fixed.DPURound/PY3Round) for the rounding
// conventions, and round_bits (pkg/fixed.RoundBits) for BFP-Prime's
// per-sub-block mantissa truncation.
package bfp

import (
	"math"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/fixed"
)

// exponentOf returns the biased IEEE-754 exponent of f, the same bit
// extraction as GetExponentCPU.
func exponentOf(f float32) uint32 {
	return (math.Float32bits(f) & 0x7f800000) >> 23
}

// maxExponentSkippingSpecial is BFPCPUKernel's inline shared-exponent scan:
// NaN/Inf exponents are treated as 0 before taking the running max, so a
// single out-of-range element never forces the whole block's scale up.
func maxExponentSkippingSpecial(block []float32) uint32 {
	var max uint32
	for _, v := range block {
		e := exponentOf(v)
		if e == 0xff {
			e = 0
		}
		if e > max {
			max = e
		}
	}
	return max
}

// maxExponent is GetMaxExponentCPU: the plain running max with no special
// case, used by BFP-Prime where a NaN/Inf element's 0xff exponent is meant
// to dominate the shared exponent and force the whole block to NaN.
func maxExponent(block []float32) uint32 {
	var max uint32
	for _, v := range block {
		if e := exponentOf(v); e > max {
			max = e
		}
	}
	return max
}

// Quantize implements BFPCPUKernel: one shared exponent for the whole
// block, a re-scan-and-upshift pass if any rounded element falls outside
// the fixed [-128, 128) range (independent of bitWidth), NaN/Inf passed
// through unchanged.
func Quantize(block []float32, bitWidth int, mode fixed.RoundMode) ([]float32, error) {
	if bitWidth <= 7 {
		return nil, simerr.New(simerr.ParameterFailed, "bfp: bit_width %d leaves no room for the sign and exponent bits (need >= 8)", bitWidth)
	}
	mBits := bitWidth - 9
	sharedExp := maxExponentSkippingSpecial(block)
	sharedExpValue := int(sharedExp) - 127
	scale := math.Pow(2, float64(sharedExpValue-(mBits-1)))

	// Re-scan: if any in-block element at the shared exponent rounds to a
	// magnitude that overflows the mantissa's signed range, the whole
	// block's scale doubles once.
	for _, v := range block {
		if exponentOf(v) != sharedExp {
			continue
		}
		x := fixed.Round(float64(v)/scale, mode)
		if x >= 128 || x < -128 {
			sharedExpValue++
			scale *= 2
			break
		}
	}

	// bit_width=8/9 leave zero or negative mantissa bits (m_bits<=0), where
	// the two's-complement-style maxV=2^mBits-1/minV=2^mBits split below
	// goes negative on the max side; at that point there's no positive
	// step left to represent, so both bounds collapse to the same
	// symmetric +-2^(shared_exp_value+m_bits).
	var maxV, minV float64
	if mBits <= 0 {
		bound := math.Pow(2, float64(sharedExpValue+mBits))
		maxV, minV = bound, -bound
	} else {
		maxV = math.Pow(2, float64(sharedExpValue)) * (math.Pow(2, float64(mBits)) - 1)
		minV = -math.Pow(2, float64(sharedExpValue)) * math.Pow(2, float64(mBits))
	}

	out := make([]float32, len(block))
	for i, v := range block {
		if exponentOf(v) == 0xff {
			out[i] = v
			continue
		}
		x := fixed.Round(float64(v)/scale, mode) * scale
		if x > maxV {
			x = maxV
		}
		if x < minV {
			x = minV
		}
		out[i] = float32(x)
	}
	return out, nil
}

// QuantizePrime implements BFPPrimeCPUKernel: a single block-wide shared
// exponent plus a per-sub-block shift (capped at 2^subBlockShiftBits-1)
// that lets sub-blocks with smaller magnitudes keep more mantissa
// precision relative to the block maximum.
//
// Subnormals flush to zero; a shared exponent of 0xff (the whole block
// saturated to Inf/NaN) forces every output to a quiet NaN.
func QuantizePrime(block []float32, bitWidth, subBlockSize, subBlockShiftBits int, mode fixed.RoundMode) ([]float32, error) {
	if subBlockSize <= 0 || len(block)%subBlockSize != 0 {
		return nil, simerr.New(simerr.ParameterFailed, "bfp: sub_block_size %d does not divide block length %d", subBlockSize, len(block))
	}
	const mFloat = 23
	mBfp := uint32(bitWidth - 9)
	const expBias = 127

	sharedExp := maxExponent(block)
	out := make([]float32, len(block))
	shiftUpperBound := uint32(1)<<uint(subBlockShiftBits) - 1

	for sb := 0; sb < len(block)/subBlockSize; sb++ {
		start := sb * subBlockSize
		sub := block[start : start+subBlockSize]
		maxSubExp := maxExponent(sub)

		var shift uint32
		if sharedExp-maxSubExp > shiftUpperBound {
			shift = shiftUpperBound
		} else {
			shift = sharedExp - maxSubExp
		}

		for j, v := range sub {
			idx := start + j
			bits := math.Float32bits(v)
			exp := (bits & 0x7f800000) >> mFloat
			var mantissa uint64
			if exp != 0 {
				mantissa = uint64(bits&0x7fffff) | (uint64(1) << mFloat)
			}
			sign := 1
			if bits&0x80000000 != 0 {
				sign = -1
			}
			numBitsShifting := int(sharedExp) - int(shift) - int(exp) + mFloat - int(mBfp) + 1
			if numBitsShifting < 0 {
				numBitsShifting = 0
			}
			rounded := fixed.RoundBits(sign, mantissa, uint(numBitsShifting), (uint64(1)<<(mBfp+1))-1, mode)

			if sharedExp == 0xff {
				out[idx] = math.Float32frombits(0x7fffffff)
				continue
			}
			exponent := int(sharedExp) - expBias - int(shift) + 1 - int(mBfp)
			out[idx] = float32(sign) * float32(math.Pow(2, float64(exponent))) * float32(rounded)
		}
	}
	return out, nil
}
