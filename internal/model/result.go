package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ParseResult is what a strategy, and ultimately the orchestrator, returns.
type ParseResult struct {
	Validation       *ValidationReport        `json:"validation,omitempty"`
	Summary          *UsageSummary            `json:"summary,omitempty"`
	ManualCorrection *ManualCorrectionPayload `json:"manual_correction,omitempty"`
	Method           Method                   `json:"method"`
	Error            string                   `json:"error,omitempty"`
	Institution      string                   `json:"institution,omitempty"`
	PatternName      string                   `json:"pattern_name,omitempty"`
	Transactions     []ParsedTransaction      `json:"transactions"`
	Warnings         []string                 `json:"warnings,omitempty"`
	ColumnMapping    []ColumnMapping          `json:"column_mapping,omitempty"`
	Confidence       float64                  `json:"confidence"`
	Success          bool                     `json:"success"`
	Terminal         bool                     `json:"terminal,omitempty"`
}

// FailedResult builds a failed result for a method.
func FailedResult(method Method, reason string) ParseResult {
	return ParseResult{
		Method:       method,
		Error:        reason,
		Transactions: []ParsedTransaction{},
	}
}

// RequiresManualCorrection reports whether the caller must route the document
// to a human reviewer.
func (r ParseResult) RequiresManualCorrection() bool {
	return r.ManualCorrection != nil
}

// Normalize enforces the degenerate output rules: a failed result carries no
// transactions, and a result without transactions is a failure with zero
// confidence. Confidence is clamped to [0, 1].
func (r *ParseResult) Normalize() {
	if !r.Success {
		r.Transactions = []ParsedTransaction{}
	}
	if len(r.Transactions) == 0 {
		r.Transactions = []ParsedTransaction{}
		r.Success = false
		r.Confidence = 0
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}

// RawOutput converts the result to a loose map for the persistence boundary.
func (r ParseResult) RawOutput() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}

// ValidationReport is the output of the heuristic pipeline's validation stage.
type ValidationReport struct {
	Duplicates         [][]int `json:"duplicates,omitempty"` // Groups of transaction indexes sharing a key
	DuplicateCount     int     `json:"duplicate_count"`
	DuplicatesDropped  int     `json:"duplicates_dropped"`
	DateErrors         int     `json:"date_errors"`
	AmountErrors       int     `json:"amount_errors"`
	LowConfidenceCount int     `json:"low_confidence_count"`
	AverageConfidence  float64 `json:"average_confidence"`
}

// UsageSummary is the output of the heuristic pipeline's usage stage.
type UsageSummary struct {
	EarliestDate       time.Time                           `json:"earliest_date"`
	LatestDate         time.Time                           `json:"latest_date"`
	TotalsByType       map[TransactionType]decimal.Decimal `json:"totals_by_type"`
	CountsByType       map[TransactionType]int             `json:"counts_by_type"`
	AverageTransaction decimal.Decimal                     `json:"average_transaction"`
	SpanDays           int                                 `json:"span_days"`
	Count              int                                 `json:"count"`
}

// ManualCorrectionPayload is what a human reviewer receives.
type ManualCorrectionPayload struct {
	Excerpt     string           `json:"excerpt"`
	Attempts    []AttemptSummary `json:"attempts"`
	Suggestions []string         `json:"suggestions"`
	Institution string           `json:"institution,omitempty"`
	TotalChars  int              `json:"total_chars"`
}
