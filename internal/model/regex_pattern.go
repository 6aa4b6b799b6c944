package model

import (
	"sort"
	"time"
)

// Confidence bounds for learned patterns. The upper bound avoids over-trusting
// small samples; the lower bound keeps a pattern eligible for retries.
const (
	MinPatternConfidence     = 0.05
	MaxPatternConfidence     = 0.95
	InitialPatternConfidence = 0.5
)

// RegexPattern is a named, scoped line-extraction rule with a running
// confidence derived from its success and failure counts.
type RegexPattern struct {
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	LastUsed     *time.Time       `json:"last_used,omitempty"`
	Fields       map[string]Field `json:"fields,omitempty"` // Group name or 1-based index -> field
	Name         string           `json:"name"`
	Pattern      string           `json:"pattern"`
	FileType     FileType         `json:"file_type"`
	Institution  string           `json:"institution,omitempty"`
	OwnerID      string           `json:"owner_id,omitempty"` // Empty for global patterns
	Description  string           `json:"description,omitempty"`
	ID           int64            `json:"id"`
	SuccessCount int              `json:"success_count"`
	FailureCount int              `json:"failure_count"`
	Priority     int              `json:"priority"` // Lower is tried first
	Confidence   float64          `json:"confidence"`
	IsActive     bool             `json:"is_active"`
	IsBuiltin    bool             `json:"is_builtin"`
}

// PatternConfidence derives confidence from outcome counts: the success ratio
// clamped to [MinPatternConfidence, MaxPatternConfidence]. A pattern with no
// history starts at InitialPatternConfidence.
func PatternConfidence(success, failure int) float64 {
	total := success + failure
	if total <= 0 {
		return InitialPatternConfidence
	}
	c := float64(success) / float64(total)
	if c < MinPatternConfidence {
		return MinPatternConfidence
	}
	if c > MaxPatternConfidence {
		return MaxPatternConfidence
	}
	return c
}

// Recompute refreshes the cached confidence from the counters.
func (p *RegexPattern) Recompute() {
	p.Confidence = PatternConfidence(p.SuccessCount, p.FailureCount)
}

// RecordSuccess increments the success counter in memory.
func (p *RegexPattern) RecordSuccess(at time.Time) {
	p.SuccessCount++
	p.LastUsed = &at
	p.Recompute()
}

// RecordFailure increments the failure counter in memory.
func (p *RegexPattern) RecordFailure(at time.Time) {
	p.FailureCount++
	p.LastUsed = &at
	p.Recompute()
}

// FieldFor resolves the semantic field for a capture group, defaulting to the
// group name when it is itself a field name.
func (p RegexPattern) FieldFor(group string) (Field, bool) {
	if f, ok := p.Fields[group]; ok {
		return f, true
	}
	if f := Field(group); f.IsValid() {
		return f, true
	}
	return "", false
}

// SortPatterns orders patterns for trial: institution-specific first, then
// ascending priority, then descending confidence, then ID.
func SortPatterns(patterns []RegexPattern, institution string) {
	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		aInst := institution != "" && a.Institution == institution
		bInst := institution != "" && b.Institution == institution
		if aInst != bInst {
			return aInst
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.ID < b.ID
	})
}
