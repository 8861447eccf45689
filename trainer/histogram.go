package trainer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// HistogramLoss scores how far a sample's empirical density is from a fixed
// reference dataset's, as the L2 distance between normalized bin frequencies.
// Monitoring only; the value never enters a gradient.
type HistogramLoss struct {
	dividers   []float64
	refDensity []float64
}

// DefaultBins is the reference bin-count rule: round(2 * n^(1/3)).
func DefaultBins(n int) int {
	b := int(math.Round(2 * math.Cbrt(float64(n))))
	if b < 2 {
		b = 2
	}
	return b
}

// NewHistogramLoss bins the reference data once; the dividers are reused for
// every later sample.
func NewHistogramLoss(reference []float64, bins int) *HistogramLoss {
	lo, hi := minMax(reference)
	if hi == lo {
		hi = lo + 1
	}
	dividers := make([]float64, bins+1)
	for i := range dividers {
		dividers[i] = lo + (hi-lo)*float64(i)/float64(bins)
	}
	return &HistogramLoss{
		dividers:   dividers,
		refDensity: density(reference, dividers),
	}
}

// Loss returns the L2 distance between the sample's bin densities and the
// reference's.
func (h *HistogramLoss) Loss(samples []float64) float64 {
	d := density(samples, h.dividers)
	sum := 0.0
	for i := range d {
		diff := d[i] - h.refDensity[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func density(values []float64, dividers []float64) []float64 {
	lo, hi := dividers[0], dividers[len(dividers)-1]
	clamped := make([]float64, len(values))
	for i, v := range values {
		// stat.Histogram requires every value inside the divider range.
		clamped[i] = math.Min(math.Max(v, lo), math.Nextafter(hi, lo))
	}
	sort.Float64s(clamped)

	counts := stat.Histogram(nil, dividers, clamped, nil)
	total := float64(len(values))
	for i := range counts {
		counts[i] /= total
	}
	return counts
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
