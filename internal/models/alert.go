package models

import (
	"encoding/json"
	"fmt"
)

// Severity levels, ordered so that a plain > compare sorts CRIT first.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarn
	SeverityCrit
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarn:
		return "WARN"
	case SeverityCrit:
		return "CRIT"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Alert is one fired rule. Alerts are recomputed on every evaluation cycle
// and never persisted; ID is the rule identifier, not an instance identity.
type Alert struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Severity   Severity `json:"severity"`
	ValueText  string   `json:"value_text"`
	TS         int64    `json:"ts"`
	Suggestion string   `json:"suggestion"`
}
