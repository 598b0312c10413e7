package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
)

// minFilterSample is the smallest quote set on which outlier rejection is
// attempted. Below this the median is too easy to drag.
const minFilterSample = 4

// tolerancePct is the allowed distance from the median, as a fraction.
var tolerancePct = decimal.NewFromFloat(0.10)

// Mean returns the arithmetic mean of prices, or zero for an empty slice.
func Mean(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	return decimal.Avg(prices[0], prices[1:]...)
}

// Median returns the middle value of prices (mean of the middle pair for
// even sizes). Input is not mutated.
func Median(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return decimal.Avg(sorted[mid-1], sorted[mid])
}

// FilteredMean reduces same-side quotes from one source to a single price.
// Fewer than four quotes: plain mean, the sample is too small to trust an
// outlier test. Otherwise quotes farther than 10% of the median from the
// median are discarded and the survivors averaged. A sponsored listing
// priced far off-market is the usual casualty. If filtering discards
// everything the unfiltered mean is returned.
func FilteredMean(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	if len(prices) < minFilterSample {
		return Mean(prices)
	}

	median := Median(prices)
	tolerance := median.Mul(tolerancePct)

	kept := make([]decimal.Decimal, 0, len(prices))
	for _, p := range prices {
		if p.Sub(median).Abs().LessThanOrEqual(tolerance) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return Mean(prices)
	}
	return Mean(kept)
}

// SourceQuotes carries one source's raw quotes split by side.
type SourceQuotes struct {
	Source string
	Buy    []decimal.Decimal
	Sell   []decimal.Decimal
}

// Reduce collapses each source's quotes into per-side filtered means.
// Sources with no valid quotes on either side are dropped entirely.
func Reduce(sources []SourceQuotes) []rates.SourceAverage {
	out := make([]rates.SourceAverage, 0, len(sources))
	for _, src := range sources {
		if len(src.Buy) == 0 && len(src.Sell) == 0 {
			continue
		}
		out = append(out, rates.SourceAverage{
			Source:      src.Source,
			Buy:         FilteredMean(src.Buy),
			Sell:        FilteredMean(src.Sell),
			BuySamples:  len(src.Buy),
			SellSamples: len(src.Sell),
		})
	}
	return out
}

// Blend averages the per-source buy means with equal weight. Sources that
// contributed no buy quotes are excluded, not counted as zero. Sell means
// stay in the breakdown but do not move the headline price.
func Blend(breakdown []rates.SourceAverage) decimal.Decimal {
	contributing := make([]decimal.Decimal, 0, len(breakdown))
	for _, src := range breakdown {
		if src.BuySamples == 0 {
			continue
		}
		contributing = append(contributing, src.Buy)
	}
	return Mean(contributing)
}
