// Package alert detects abnormally priced disclosures and reports scrape
// outcomes to a Telegram chat.
package alert

import (
	"fmt"
	"math"
	"sort"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

// Modified z-score parameters. The 0.6745 factor rescales the median absolute
// deviation to be comparable with a standard deviation.
const (
	zScoreThreshold = 3.5
	madScale        = 0.6745

	// minSampleSize is the smallest per-resort sample outliers are judged
	// against; below it the median is too noisy to trust.
	minSampleSize = 5

	// totalCostTolerance is how far a reported total may drift from
	// price times points before the entry is flagged as inconsistent.
	totalCostTolerance = 100
)

// Anomaly is one suspicious disclosure with the reason it was flagged.
type Anomaly struct {
	Entry  model.Entry
	Reason string
	Score  float64
}

// DetectAnomalies flags entries whose price is a modified z-score outlier
// within their resort, and entries whose reported total cost disagrees with
// price times points. The baseline sample includes every entry passed in, so
// callers should pass the full corpus and inspect only the new entries in
// the result.
func DetectAnomalies(entries []model.Entry) []Anomaly {
	var anomalies []Anomaly

	byResort := map[string][]float64{}
	for i := range entries {
		e := &entries[i]
		if e.PricePerPoint > 0 {
			byResort[e.Resort] = append(byResort[e.Resort], e.PricePerPoint)
		}
	}

	medians := map[string]float64{}
	mads := map[string]float64{}
	for resort, prices := range byResort {
		if len(prices) < minSampleSize {
			continue
		}
		med := median(prices)
		medians[resort] = med

		deviations := make([]float64, len(prices))
		for i, p := range prices {
			deviations[i] = math.Abs(p - med)
		}
		mad := median(deviations)
		if mad == 0 {
			mad = stddev(prices) * madScale
		}
		mads[resort] = mad
	}

	for i := range entries {
		e := &entries[i]

		if mad, ok := mads[e.Resort]; ok && mad > 0 && e.PricePerPoint > 0 {
			score := madScale * (e.PricePerPoint - medians[e.Resort]) / mad
			if math.Abs(score) > zScoreThreshold {
				anomalies = append(anomalies, Anomaly{
					Entry: *e,
					Reason: fmt.Sprintf("price $%.2f is far from the %s median $%.2f",
						e.PricePerPoint, e.Resort, medians[e.Resort]),
					Score: score,
				})
				continue
			}
		}

		if e.TotalCost > 0 && e.Points > 0 {
			expected := e.PricePerPoint * float64(e.Points)
			if math.Abs(e.TotalCost-expected) > totalCostTolerance {
				anomalies = append(anomalies, Anomaly{
					Entry: *e,
					Reason: fmt.Sprintf("total cost $%.0f disagrees with %d points at $%.2f",
						e.TotalCost, e.Points, e.PricePerPoint),
				})
			}
		}
	}
	return anomalies
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}
