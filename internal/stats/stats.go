// Package stats provides the statistical primitives shared by the
// rollout decision logic and drift detection.
package stats

import "math"

// NormalCDF is the standard normal cumulative distribution function,
// computed from the error function.
func NormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// ZTestResult is the outcome of a two-proportion z-test.
type ZTestResult struct {
	Delta  float64 // pB - pA
	ZScore float64
	PValue float64 // two-sided
}

// TwoProportionZTest compares success proportions of two samples using
// the pooled standard error. Returns a zero result with PValue 1 when
// either sample is empty or the pooled variance degenerates.
func TwoProportionZTest(winsA, nA, winsB, nB int) ZTestResult {
	if nA <= 0 || nB <= 0 {
		return ZTestResult{PValue: 1}
	}

	pA := float64(winsA) / float64(nA)
	pB := float64(winsB) / float64(nB)
	delta := pB - pA

	pooled := float64(winsA+winsB) / float64(nA+nB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(nA) + 1/float64(nB)))
	if se == 0 {
		return ZTestResult{Delta: delta, PValue: 1}
	}

	z := math.Abs(delta) / se
	p := 2 * (1 - NormalCDF(z))
	return ZTestResult{Delta: delta, ZScore: z, PValue: p}
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// RelativeChange returns |current-baseline| / |baseline|, or 0 when the
// baseline is zero.
func RelativeChange(current, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return math.Abs(current-baseline) / math.Abs(baseline)
}
