// Package rules evaluates the fixed alert rule set against the latest
// reading. Evaluation is pure: the only ambient input is the caller-supplied
// wall clock used for staleness.
package rules

import (
	"fmt"
	"sort"
	"time"

	"chamber-monitor/internal/models"
)

// StaleAfter is the age past which the gateway is considered offline.
const StaleAfter = 2 * time.Minute

// Threshold constants for the chamber's target envelope.
const (
	TempHighWarn = 28.0
	TempHighCrit = 30.0
	TempLowWarn  = 22.0
	TempLowCrit  = 20.0
	HumHighWarn  = 90.0
	HumHighCrit  = 94.0
	HumLowWarn   = 70.0
	HumLowCrit   = 65.0
)

var suggestions = map[string]string{
	"gateway-offline": "Check the sensor gateway power and network uplink.",
	"temp-high":       "Increase cooling or ventilation to bring the temperature down.",
	"temp-low":        "Raise the heater setpoint to bring the temperature up.",
	"rh-high":         "Run the dehumidifier or increase air exchange.",
	"rh-low":          "Run the humidifier or reduce air exchange.",
}

// Evaluate maps the current reading and connectivity state to an ordered
// alert list. The connectivity rule is exclusive: when the gateway is
// unreachable or stale, it is the only alert returned.
func Evaluate(r models.Reading, status models.Status, now time.Time) []models.Alert {
	nowMs := now.UnixMilli()

	if r.TS == nil || status == models.StatusOffline || nowMs-*r.TS > StaleAfter.Milliseconds() {
		ts := nowMs
		age := "no data received yet"
		if r.TS != nil {
			ts = *r.TS
			age = fmt.Sprintf("last update %s ago", time.Duration(nowMs-*r.TS)*time.Millisecond)
		}
		return []models.Alert{{
			ID:         "gateway-offline",
			Title:      "Gateway offline or stale",
			Severity:   models.SeverityCrit,
			ValueText:  age,
			TS:         ts,
			Suggestion: suggestions["gateway-offline"],
		}}
	}

	var alerts []models.Alert
	add := func(id, title string, sev models.Severity, value float64, unit string) {
		alerts = append(alerts, models.Alert{
			ID:         id,
			Title:      title,
			Severity:   sev,
			ValueText:  fmt.Sprintf("%.1f%s", value, unit),
			TS:         *r.TS,
			Suggestion: suggestions[id],
		})
	}

	if t := r.Temperature; t != nil {
		if *t > TempHighWarn {
			sev := models.SeverityWarn
			if *t > TempHighCrit {
				sev = models.SeverityCrit
			}
			add("temp-high", "Temperature too high", sev, *t, "°C")
		}
		if *t < TempLowWarn {
			sev := models.SeverityWarn
			if *t < TempLowCrit {
				sev = models.SeverityCrit
			}
			add("temp-low", "Temperature too low", sev, *t, "°C")
		}
	}
	if h := r.Humidity; h != nil {
		if *h > HumHighWarn {
			sev := models.SeverityWarn
			if *h > HumHighCrit {
				sev = models.SeverityCrit
			}
			add("rh-high", "Humidity too high", sev, *h, "%")
		}
		if *h < HumLowWarn {
			sev := models.SeverityWarn
			if *h < HumLowCrit {
				sev = models.SeverityCrit
			}
			add("rh-low", "Humidity too low", sev, *h, "%")
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity > alerts[j].Severity
		}
		return alerts[i].TS > alerts[j].TS
	})
	return alerts
}
