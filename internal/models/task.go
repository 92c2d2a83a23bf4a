package models

// Task is one alert handed to the notification dispatcher when a rule
// transitions to firing.
type Task struct {
	RequestID  string
	RuleID     string
	Title      string
	Severity   Severity
	ValueText  string
	Suggestion string
	TS         int64
}
