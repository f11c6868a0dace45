package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// PolylineLength returns the spherical length of shape in meters.
func PolylineLength(shape []orb.Point) float64 {
	var total float64
	for i := 1; i < len(shape); i++ {
		total += geo.DistanceHaversine(shape[i-1], shape[i])
	}
	return total
}

// Resample returns shape resampled to approximately even spacing along the
// polyline. The first and last points of the input are always preserved.
// Points between original vertices are linearly interpolated, which is
// accurate enough at the spacings used for elevation postings.
func Resample(shape []orb.Point, interval float64) []orb.Point {
	if len(shape) < 2 || interval <= 0 {
		out := make([]orb.Point, len(shape))
		copy(out, shape)
		return out
	}

	out := make([]orb.Point, 0, int(PolylineLength(shape)/interval)+2)
	out = append(out, shape[0])

	// Distance still needed before the next posting is emitted.
	need := interval
	for i := 1; i < len(shape); i++ {
		a, b := shape[i-1], shape[i]
		seg := geo.DistanceHaversine(a, b)
		pos := 0.0
		for seg > 0 && seg-pos >= need {
			pos += need
			t := pos / seg
			out = append(out, orb.Point{
				a[0] + (b[0]-a[0])*t,
				a[1] + (b[1]-a[1])*t,
			})
			need = interval
		}
		need -= seg - pos
	}

	// Terminate at the original end point so both endpoints are sampled.
	out = append(out, shape[len(shape)-1])
	return out
}
