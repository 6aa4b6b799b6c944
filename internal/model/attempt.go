package model

import (
	"errors"
	"time"
)

// Method names a parsing strategy.
type Method string

// Strategy methods in their default priority order.
const (
	MethodBankSpecific     Method = "bank_specific"
	MethodTabularColumns   Method = "tabular_columns"
	MethodRegexPatterns    Method = "regex_patterns"
	MethodHeuristic        Method = "heuristic_pipeline"
	MethodManualCorrection Method = "manual_correction"
)

// AllMethods lists every strategy method.
var AllMethods = []Method{
	MethodBankSpecific,
	MethodTabularColumns,
	MethodRegexPatterns,
	MethodHeuristic,
	MethodManualCorrection,
}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, bool) {
	for _, m := range AllMethods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// AttemptStatus is the lifecycle state of a parsing attempt.
type AttemptStatus string

// Attempt status constants.
const (
	AttemptPending        AttemptStatus = "pending"
	AttemptInProgress     AttemptStatus = "in_progress"
	AttemptSuccess        AttemptStatus = "success"
	AttemptFailed         AttemptStatus = "failed"
	AttemptPartialSuccess AttemptStatus = "partial_success"
)

// IsFinal reports whether the status is terminal.
func (s AttemptStatus) IsFinal() bool {
	return s == AttemptSuccess || s == AttemptFailed || s == AttemptPartialSuccess
}

// PartialSuccessThreshold is the confidence below which a successful attempt
// is recorded as partial.
const PartialSuccessThreshold = 0.5

// ErrAttemptFinalized is returned when mutating an attempt that already ended.
var ErrAttemptFinalized = errors.New("parsing attempt already finalized")

// ParsingAttempt is one strategy execution against one document.
type ParsingAttempt struct {
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
	RawOutput        map[string]any `json:"raw_output,omitempty"`
	DocumentID       string         `json:"document_id"`
	OwnerID          string         `json:"owner_id"`
	Method           Method         `json:"method"`
	Status           AttemptStatus  `json:"status"`
	Error            string         `json:"error,omitempty"`
	ID               int64          `json:"id"`
	Ordinal          int            `json:"ordinal"`
	TransactionCount int            `json:"transaction_count"`
	Confidence       float64        `json:"confidence"`
	DurationMS       int64          `json:"duration_ms"`
}

// NewAttempt starts an in-progress attempt.
func NewAttempt(doc Document, method Method, ordinal int, config map[string]any) ParsingAttempt {
	return ParsingAttempt{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Method:     method,
		Ordinal:    ordinal,
		Status:     AttemptInProgress,
		StartedAt:  time.Now(),
		Config:     config,
	}
}

// Finalize records the outcome of the attempt. An attempt may only be
// finalized once.
func (a *ParsingAttempt) Finalize(result ParseResult, completedAt time.Time) error {
	if a.Status.IsFinal() {
		return ErrAttemptFinalized
	}

	a.CompletedAt = &completedAt
	a.DurationMS = completedAt.Sub(a.StartedAt).Milliseconds()
	a.TransactionCount = len(result.Transactions)
	a.Confidence = result.Confidence
	a.RawOutput = result.RawOutput()

	switch {
	case !result.Success:
		a.Status = AttemptFailed
		a.Error = result.Error
	case result.Confidence < PartialSuccessThreshold:
		a.Status = AttemptPartialSuccess
	default:
		a.Status = AttemptSuccess
	}
	return nil
}

// Succeeded reports whether the attempt produced usable output.
func (a ParsingAttempt) Succeeded() bool {
	return a.Status == AttemptSuccess || a.Status == AttemptPartialSuccess
}

// Summary condenses the attempt for manual review payloads.
func (a ParsingAttempt) Summary() AttemptSummary {
	return AttemptSummary{
		Method:           a.Method,
		Ordinal:          a.Ordinal,
		Status:           a.Status,
		Confidence:       a.Confidence,
		TransactionCount: a.TransactionCount,
		Error:            a.Error,
	}
}

// AttemptSummary is a compact view of a prior attempt.
type AttemptSummary struct {
	Method           Method        `json:"method"`
	Status           AttemptStatus `json:"status"`
	Error            string        `json:"error,omitempty"`
	Ordinal          int           `json:"ordinal"`
	TransactionCount int           `json:"transaction_count"`
	Confidence       float64       `json:"confidence"`
}
