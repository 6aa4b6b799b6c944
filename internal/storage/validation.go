package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/statement-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrInvalidDateRange    = errors.New("start date must be before end date")
	ErrInvalidDocument     = errors.New("invalid document")
	ErrInvalidAttempt      = errors.New("invalid parsing attempt")
	ErrInvalidPattern      = errors.New("invalid regex pattern")
	ErrInvalidMapping      = errors.New("invalid column mapping")
	ErrInvalidLearning     = errors.New("invalid learning entry")
	ErrInvalidMetrics      = errors.New("invalid metrics")
	ErrInvalidDocumentStat = errors.New("invalid document status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateDocument(doc *model.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document", ErrNilParameter)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidDocument)
	}
	if doc.OwnerID == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidDocument)
	}
	if !doc.FileType.IsValid() {
		return fmt.Errorf("%w: unknown file type %q", ErrInvalidDocument, doc.FileType)
	}
	return nil
}

func validateDocumentStatus(status model.DocumentStatus) error {
	switch status {
	case model.DocumentUploaded, model.DocumentProcessing, model.DocumentParsed,
		model.DocumentNeedsReview, model.DocumentFailed:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocumentStat, status)
}

func validateAttempt(a *model.ParsingAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: attempt", ErrNilParameter)
	}
	if a.DocumentID == "" {
		return fmt.Errorf("%w: missing document ID", ErrInvalidAttempt)
	}
	if _, ok := model.ParseMethod(string(a.Method)); !ok {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidAttempt, a.Method)
	}
	if a.Ordinal < 1 {
		return fmt.Errorf("%w: ordinal must be positive", ErrInvalidAttempt)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidAttempt)
	}
	return nil
}

func validatePattern(p *model.RegexPattern) error {
	if p == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPattern)
	}
	if !p.FileType.IsValid() {
		return fmt.Errorf("%w: unknown file type %q", ErrInvalidPattern, p.FileType)
	}
	if _, err := regexp.Compile(p.Pattern); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	for group, f := range p.Fields {
		if !f.IsValid() {
			return fmt.Errorf("%w: group %q maps to unknown field %q", ErrInvalidPattern, group, f)
		}
	}
	return nil
}

func validateMapping(m *model.ColumnMapping) error {
	if m == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if !m.Field.IsValid() {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidMapping, m.Field)
	}
	if m.SourceIndex < 0 {
		return fmt.Errorf("%w: negative source index", ErrInvalidMapping)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidMapping)
	}
	return nil
}

func validateLearningEntry(e *model.LearningEntry) error {
	if e == nil {
		return fmt.Errorf("%w: learning entry", ErrNilParameter)
	}
	if e.DocumentID == "" {
		return fmt.Errorf("%w: missing document ID", ErrInvalidLearning)
	}
	switch e.Outcome {
	case model.OutcomeSuccessfulParsing, model.OutcomeFailedParsing, model.OutcomeManualAnnotation:
	default:
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidLearning, e.Outcome)
	}
	if e.QualityScore < 0 || e.QualityScore > 1 {
		return fmt.Errorf("%w: quality score must be between 0 and 1", ErrInvalidLearning)
	}
	if e.TrainingWeight <= 0 {
		return fmt.Errorf("%w: training weight must be positive", ErrInvalidLearning)
	}
	return nil
}

func validateMetrics(m *model.ParsingMetrics) error {
	if m == nil {
		return fmt.Errorf("%w: metrics", ErrNilParameter)
	}
	if m.OwnerID == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidMetrics)
	}
	if m.Day.IsZero() {
		return fmt.Errorf("%w: missing day", ErrInvalidMetrics)
	}
	if m.TotalSuccesses > m.TotalAttempts {
		return fmt.Errorf("%w: more successes than attempts", ErrInvalidMetrics)
	}
	return nil
}
