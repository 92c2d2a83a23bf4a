// Package stats computes descriptive statistics and a coarse trend label
// over the in-memory history window.
package stats

import (
	"math"

	"chamber-monitor/internal/models"
	"chamber-monitor/internal/rules"
)

// Trend comparison: two adjacent trailing windows of max(floor(0.15*N), 6)
// samples each; mean difference below epsilon counts as stable.
const (
	trendWindowFrac = 0.15
	trendWindowMin  = 6
	trendEpsilon    = 0.25
)

// Compute recomputes the full Summary from an ascending sample sequence.
// Values outside [0,100] are treated as absent so sensor glitches do not
// corrupt the aggregates.
func Compute(samples []models.Sample) models.Summary {
	var sum models.Summary

	temps := make([]*float64, len(samples))
	hums := make([]*float64, len(samples))
	for i, s := range samples {
		temps[i] = validValue(s.Temperature)
		hums[i] = validValue(s.Humidity)
	}

	sum.Temperature = metricStats(temps)
	sum.Humidity = metricStats(hums)
	sum.IdealPct = idealPct(temps, hums)
	if n := len(samples); n > 0 {
		ts := samples[n-1].TS
		sum.LatestTS = &ts
	}
	return sum
}

func validValue(v *float64) *float64 {
	if v == nil || *v < 0 || *v > 100 {
		return nil
	}
	return v
}

func metricStats(values []*float64) models.MetricStats {
	var st models.MetricStats
	var sum float64
	var n int
	for _, v := range values {
		if v == nil {
			continue
		}
		if st.Min == nil || *v < *st.Min {
			st.Min = cloneFloat(*v)
		}
		if st.Max == nil || *v > *st.Max {
			st.Max = cloneFloat(*v)
		}
		sum += *v
		n++
	}
	if n > 0 {
		st.Mean = cloneFloat(sum / float64(n))
	}
	st.Trend = trend(values)
	return st
}

// idealPct is the share of samples inside the target envelope, counted only
// over samples carrying both metrics.
func idealPct(temps, hums []*float64) *float64 {
	var both, ideal int
	for i := range temps {
		t, h := temps[i], hums[i]
		if t == nil || h == nil {
			continue
		}
		both++
		if *t >= rules.TempLowWarn && *t <= rules.TempHighWarn &&
			*h >= rules.HumLowWarn && *h <= rules.HumHighWarn {
			ideal++
		}
	}
	if both == 0 {
		return nil
	}
	return cloneFloat(float64(ideal) / float64(both) * 100)
}

func trend(values []*float64) *models.Trend {
	n := len(values)
	w := int(math.Floor(trendWindowFrac * float64(n)))
	if w < trendWindowMin {
		w = trendWindowMin
	}
	if n < 2 {
		return nil
	}

	recentStart := n - w
	if recentStart < 0 {
		recentStart = 0
	}
	priorStart := recentStart - w
	if priorStart < 0 {
		priorStart = 0
	}
	recent, okR := windowMean(values[recentStart:])
	prior, okP := windowMean(values[priorStart:recentStart])
	if !okR || !okP {
		return nil
	}

	var label models.Trend
	switch {
	case math.Abs(recent-prior) < trendEpsilon:
		label = models.TrendStable
	case recent > prior:
		label = models.TrendRising
	default:
		label = models.TrendFalling
	}
	return &label
}

func windowMean(values []*float64) (float64, bool) {
	var sum float64
	var n int
	for _, v := range values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func cloneFloat(v float64) *float64 {
	return &v
}
