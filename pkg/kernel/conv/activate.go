package conv

import (
	"math"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/fixed"
	"github.com/oisee/dpusim/pkg/target"
)

// ApplyBias implements spec.md §4.7 "Bias phase": result *= 2; result +=
// floor(bias * 2^shift_bias), with shift_bias >= 32 encoding a negative
// shift (32 - shift_bias), and shift_bias in (20, 32) rejected.
func ApplyBias(acc int64, bias int32, shiftBias uint32) (int64, error) {
	acc *= 2
	var scaled float64
	switch {
	case shiftBias >= 32:
		neg := int(32) - int(shiftBias)
		scaled = float64(bias) * math.Pow(2, float64(neg))
	case shiftBias > 20:
		return 0, simerr.New(simerr.ParameterFailed, "conv: shift_bias %d exceeds the enforced limit of 20", shiftBias)
	default:
		scaled = float64(bias) * math.Pow(2, float64(shiftBias))
	}
	acc += int64(math.Floor(scaled))
	return acc, nil
}

// Activate implements spec.md §4.7 "Activation + shift_cut phase": scale
// by shift_cut, apply the selected non-linearity with the exact formulas
// from the activation table, DPU-round, and saturate to int8.
func Activate(acc int64, shiftCut, actType uint32, hsigmoidIn, shiftHsigmoid, shiftHswish, preluIn, preluShift uint32) int8 {
	x := float64(acc) / math.Pow(2, float64(shiftCut)+1)
	var y float64
	switch target.ActivationKind(actType) {
	case target.ActNone:
		y = x
	case target.ActRelu:
		y = math.Max(x, 0)
	case target.ActLeaky:
		if x < 0 {
			y = x * 26 / 256
		} else {
			y = x
		}
	case target.ActRelu6:
		y = clamp(x, 0, 6*16)
	case target.ActPRelu:
		if x < 0 {
			y = x * float64(preluIn) / math.Pow(2, float64(preluShift))
		} else {
			y = x
		}
	case target.ActHSigmoid:
		hs := fixed.DownwardRound(x)*2731 + 3*2731*math.Pow(2, float64(hsigmoidIn))
		y = clamp(hs, 0, math.Pow(2, 32)) * math.Pow(2, -float64(shiftHsigmoid))
	case target.ActHSwish:
		hsigmoid := clamp(fixed.DownwardRound(x)*2731+3*2731*math.Pow(2, float64(hsigmoidIn)), 0, math.Pow(2, 32)) * math.Pow(2, -float64(shiftHsigmoid))
		y = fixed.DownwardRound(x) * hsigmoid * math.Pow(2, -float64(shiftHswish))
	default:
		y = x
	}
	return fixed.Saturate[int8](y, -128, 127)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
