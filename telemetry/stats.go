// Package telemetry summarizes trail textures read back from the GPU and
// writes the summaries as CSV.
package telemetry

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TrailStats summarizes one trail readback.
type TrailStats struct {
	Mean     float64
	StdDev   float64
	Max      float64
	Median   float64
	Coverage float64 // fraction of texels above the threshold
}

// ComputeTrailStats returns zero stats for an empty trail.
func ComputeTrailStats(texels []float32, threshold float32) TrailStats {
	if len(texels) == 0 {
		return TrailStats{}
	}
	values := make([]float64, len(texels))
	covered := 0
	for i, v := range texels {
		values[i] = float64(v)
		if v > threshold {
			covered++
		}
	}

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	maxV := floats.Max(values)

	sorted := append([]float64(nil), values...)
	floats.Argsort(sorted, make([]int, len(sorted)))
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	return TrailStats{
		Mean:     mean,
		StdDev:   std,
		Max:      maxV,
		Median:   median,
		Coverage: float64(covered) / float64(len(values)),
	}
}
