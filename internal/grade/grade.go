// Package grade estimates slope statistics from a sampled height profile.
package grade

import (
	"github.com/wegman-software/graphelev-go/internal/elevation"
)

// Grades steeper than this are weighted more heavily per percent of incline,
// so a profile with one hard climb reads steeper than its plain average.
const uphillBias = 0.35

// Result carries the outputs of one pass over a height profile.
type Result struct {
	Weighted float64 // weighted grade in percent, biased toward uphill
	MaxUp    float64 // steepest upward slope in percent (>= 0)
	MaxDown  float64 // steepest downward slope in percent (<= 0)
	Mean     float64 // mean elevation over valid postings
}

// Estimate computes slope statistics for heights sampled at a fixed interval
// (meters). Postings at elevation.NoDataValue contribute to neither the mean
// nor any slope; intervals touching one are skipped. When no posting is
// valid the mean itself is elevation.NoDataValue.
func Estimate(heights []float64, interval float64) Result {
	var r Result

	var sum float64
	var valid int
	for _, h := range heights {
		if h != elevation.NoDataValue {
			sum += h
			valid++
		}
	}
	if valid == 0 {
		r.Mean = elevation.NoDataValue
	} else {
		r.Mean = sum / float64(valid)
	}

	if len(heights) < 2 || interval <= 0 {
		return r
	}

	var weightedSum, weightTotal float64
	for i := 1; i < len(heights); i++ {
		a, b := heights[i-1], heights[i]
		if a == elevation.NoDataValue || b == elevation.NoDataValue {
			continue
		}
		g := (b - a) / interval * 100
		if g > r.MaxUp {
			r.MaxUp = g
		}
		if g < r.MaxDown {
			r.MaxDown = g
		}
		w := 1.0
		if g > 0 {
			w += g * uphillBias
		}
		weightedSum += g * w
		weightTotal += w
	}
	if weightTotal > 0 {
		r.Weighted = weightedSum / weightTotal
	}
	return r
}

// Quantize maps a weighted grade onto the 4-bit on-disk encoding. The usable
// input range is about -10% to +15%; anything outside clamps to the ends of
// the encoding rather than wrapping.
func Quantize(weighted float64) uint8 {
	q := int(weighted*0.6 + 6.5)
	if q < 0 {
		q = 0
	}
	if q > 15 {
		q = 15
	}
	return uint8(q)
}
