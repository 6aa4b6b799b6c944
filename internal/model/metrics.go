package model

import "time"

// MethodStats aggregates attempts for one method.
type MethodStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// SuccessRate returns successes over attempts.
func (s MethodStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// ParsingMetrics is the per-owner, per-day rollup of parsing activity.
type ParsingMetrics struct {
	Day               time.Time              `json:"day"`
	UpdatedAt         time.Time              `json:"updated_at"`
	Methods           map[Method]MethodStats `json:"methods"`
	OwnerID           string                 `json:"owner_id"`
	TotalAttempts     int                    `json:"total_attempts"`
	TotalSuccesses    int                    `json:"total_successes"`
	PatternsLearned   int                    `json:"patterns_learned"`
	DatasetEntries    int                    `json:"dataset_entries"`
	AverageConfidence float64                `json:"average_confidence"`
	AverageDurationMS float64                `json:"average_duration_ms"`
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
