package builder

import (
	"slices"

	"github.com/paulmach/orb"

	"github.com/wegman-software/graphelev-go/internal/elevation"
	"github.com/wegman-software/graphelev-go/internal/geo"
	"github.com/wegman-software/graphelev-go/internal/grade"
	"github.com/wegman-software/graphelev-go/internal/tile"
)

const (
	// postingInterval is the spacing in meters a shape is resampled to
	// before its elevations are looked up.
	postingInterval = 60.0

	// minimumInterval is the edge length below which grades are not
	// meaningful and are forced to zero.
	minimumInterval = 10.0
)

// cachedGrades holds both directions of one shape's elevation attributes.
// An edge picks its half by its Forward flag.
type cachedGrades struct {
	forwardGrade uint8
	reverseGrade uint8
	forwardUp    float32
	forwardDown  float32
	reverseUp    float32
	reverseDown  float32
}

// gradeCache maps an EdgeInfo offset to its grade results. The two directed
// edges over one shape hit the same entry, so the sampling and estimation
// run once per shape rather than once per edge. Entries never outlive the
// tile they were computed for.
type gradeCache map[uint32]cachedGrades

// processTile computes and stores elevation attributes for every directed
// edge of one tile, then writes the tile back.
func processTile(store *tile.Store, cache gradeCache, sampler *elevation.Sampler, id tile.ID) error {
	t, err := store.Load(id)
	if err != nil {
		return err
	}

	t.HasElevation = true
	clear(cache)

	for i := range t.Edges {
		edge := &t.Edges[i]
		offset := edge.EdgeInfoOffset

		cg, ok := cache[offset]
		if !ok {
			info, err := t.EdgeInfo(offset)
			if err != nil {
				return err
			}
			var mean float64
			cg, mean = computeGrades(sampler, edge, info.Shape)
			cache[offset] = cg

			// Mean elevation is direction independent, set once per shape.
			if mean == elevation.NoDataValue {
				info.MeanElevation = tile.NoElevationData
			} else {
				info.MeanElevation = float32(mean)
			}
		}

		if edge.Forward {
			edge.WeightedGrade = cg.forwardGrade
			edge.MaxUpSlope = cg.forwardUp
			edge.MaxDownSlope = cg.forwardDown
		} else {
			edge.WeightedGrade = cg.reverseGrade
			edge.MaxUpSlope = cg.reverseUp
			edge.MaxDownSlope = cg.reverseDown
		}
	}

	if err := store.Save(t); err != nil {
		return err
	}

	// The store's cache is shared by all workers; trim it when it has
	// outgrown its budget.
	if store.OverCommitted() {
		store.Trim()
	}
	return nil
}

// computeGrades samples the shape and estimates grades in both directions.
// The returned mean elevation comes from the forward pass.
func computeGrades(sampler *elevation.Sampler, edge *tile.DirectedEdge, shape []orb.Point) (cachedGrades, float64) {
	var fwd, rev grade.Result

	// Tunnels and ferries carry no meaningful elevation signal; their
	// grades stay zero and the mean stays at the zero default.
	if !edge.Tunnel && !edge.Ferry && len(shape) >= 2 {
		length := float64(edge.Length)

		// Really short edges and bridges are sampled at their endpoints
		// only, with the full length as the interval.
		interval := postingInterval
		var resampled []orb.Point
		if length < postingInterval*3 || edge.Bridge {
			resampled = []orb.Point{shape[0], shape[len(shape)-1]}
			interval = length
		} else {
			resampled = geo.Resample(shape, interval)
		}

		heights := sampler.SampleAll(resampled)
		fwd = grade.Estimate(heights, interval)

		if length < minimumInterval {
			// Too short for a useful grade: keep only the mean.
			fwd = grade.Result{Mean: fwd.Mean}
			rev = grade.Result{Mean: fwd.Mean}
		} else {
			slices.Reverse(heights)
			rev = grade.Estimate(heights, interval)
		}
	}

	return cachedGrades{
		forwardGrade: grade.Quantize(fwd.Weighted),
		reverseGrade: grade.Quantize(rev.Weighted),
		forwardUp:    float32(fwd.MaxUp),
		forwardDown:  float32(fwd.MaxDown),
		reverseUp:    float32(rev.MaxUp),
		reverseDown:  float32(rev.MaxDown),
	}, fwd.Mean
}
