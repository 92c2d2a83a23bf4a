package models

// Sample is one merged telemetry point keyed by epoch-ms timestamp. A metric
// missing at that timestamp stays nil instead of the sample being dropped.
type Sample struct {
	TS          int64    `json:"ts"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// Reading holds the most recent value per metric. TS is the newer of the two
// per-metric update timestamps, nil before the first successful fetch.
type Reading struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	TS          *int64   `json:"ts"`
}

// Status is the derived gateway connectivity state.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
	StatusUnknown Status = "UNKNOWN"
)
