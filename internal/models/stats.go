package models

// Trend is the coarse direction label for one metric over the history window.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// MetricStats are descriptive statistics for one metric. Fields are nil when
// the window contains no valid values for that metric.
type MetricStats struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
	Trend *Trend   `json:"trend"`
}

// Summary is the full statistics snapshot recomputed on every history fetch.
// IdealPct is the percentage of samples (both metrics present) inside the
// target envelope; nil when no sample carries both metrics.
type Summary struct {
	Temperature MetricStats `json:"temperature"`
	Humidity    MetricStats `json:"humidity"`
	IdealPct    *float64    `json:"ideal_pct"`
	LatestTS    *int64      `json:"latest_ts"`
}
