package model

import "time"

// LearningOutcome labels why a training example was recorded.
type LearningOutcome string

// Learning outcome constants.
const (
	OutcomeSuccessfulParsing LearningOutcome = "successful_parsing"
	OutcomeFailedParsing     LearningOutcome = "failed_parsing"
	OutcomeManualAnnotation  LearningOutcome = "manual_annotation"
)

// Training weights.
const (
	DefaultTrainingWeight    = 1.0
	AnnotationTrainingWeight = 2.0
)

// LearningEntry is one labeled training example. Entries are append-only.
type LearningEntry struct {
	CreatedAt      time.Time           `json:"created_at"`
	DocumentID     string              `json:"document_id"`
	OwnerID        string              `json:"owner_id"`
	Method         Method              `json:"method"`
	Outcome        LearningOutcome     `json:"outcome"`
	SourceText     string              `json:"source_text"`
	Expected       []ParsedTransaction `json:"expected,omitempty"`
	Actual         []ParsedTransaction `json:"actual,omitempty"`
	ID             int64               `json:"id"`
	AttemptID      int64               `json:"attempt_id,omitempty"`
	QualityScore   float64             `json:"quality_score"`
	TrainingWeight float64             `json:"training_weight"`
	Validated      bool                `json:"validated"`
}
