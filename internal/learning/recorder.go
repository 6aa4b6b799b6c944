// Package learning records the training signal the pipeline produces: one
// dataset entry per attempt, human annotations, confirmed column mappings and
// the rule store's pattern outcomes.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/service"
)

// DefaultTextCap bounds the source text stored with each entry.
const DefaultTextCap = 10000

// Store is the persistence the recorder needs.
type Store interface {
	service.LearningStore
	GetAttempt(ctx context.Context, id int64) (*model.ParsingAttempt, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	SaveColumnMappings(ctx context.Context, mappings []model.ColumnMapping) error
	ListColumnMappingsForAttempt(ctx context.Context, attemptID int64) ([]model.ColumnMapping, error)
	UpdateColumnMapping(ctx context.Context, mapping *model.ColumnMapping) error
	GetPattern(ctx context.Context, id int64) (*model.RegexPattern, error)
	CreatePattern(ctx context.Context, pattern *model.RegexPattern) error
	DeletePattern(ctx context.Context, id int64) error
	RecordPatternSuccess(ctx context.Context, id int64) error
	RecordPatternFailure(ctx context.Context, id int64) error
}

// Recorder writes learning signal to the store.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	regex   *common.RegexCache
	textCap int
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithTextCap overrides DefaultTextCap.
func WithTextCap(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.textCap = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates a recorder.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, textCap: DefaultTextCap, regex: common.NewRegexCache()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = common.LoggerOrDefault(r.logger)
	return r
}

// RecordAttempt stores the dataset entry for a finalized attempt. The
// quality score is the attempt's confidence, or 0 when it failed.
func (r *Recorder) RecordAttempt(ctx context.Context, attempt *model.ParsingAttempt, sourceText string, result model.ParseResult) error {
	if attempt == nil {
		return fmt.Errorf("learning entry requires an attempt")
	}

	entry := model.LearningEntry{
		AttemptID:      attempt.ID,
		DocumentID:     attempt.DocumentID,
		OwnerID:        attempt.OwnerID,
		Method:         attempt.Method,
		SourceText:     capText(sourceText, r.textCap),
		Actual:         result.Transactions,
		TrainingWeight: model.DefaultTrainingWeight,
	}
	if result.Success {
		entry.Outcome = model.OutcomeSuccessfulParsing
		entry.QualityScore = result.Confidence
	} else {
		entry.Outcome = model.OutcomeFailedParsing
	}

	if err := r.store.SaveLearningEntry(ctx, &entry); err != nil {
		return fmt.Errorf("failed to save learning entry: %w", err)
	}
	return nil
}

// RecordAnnotation stores a reviewer's expected transactions for an
// attempt. Annotations are always validated and weighted double.
func (r *Recorder) RecordAnnotation(ctx context.Context, attemptID int64, expected []model.ParsedTransaction) (*model.LearningEntry, error) {
	if len(expected) == 0 {
		return nil, fmt.Errorf("annotation for attempt %d has no transactions", attemptID)
	}

	attempt, err := r.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	entry := model.LearningEntry{
		AttemptID:      attempt.ID,
		DocumentID:     attempt.DocumentID,
		OwnerID:        attempt.OwnerID,
		Method:         attempt.Method,
		Outcome:        model.OutcomeManualAnnotation,
		Expected:       expected,
		QualityScore:   1,
		TrainingWeight: model.AnnotationTrainingWeight,
		Validated:      true,
	}

	// The annotation pairs with what the pipeline produced, when known.
	prior, err := r.store.GetLearningEntryByAttempt(ctx, attemptID)
	switch {
	case err == nil:
		entry.SourceText = prior.SourceText
		entry.Actual = prior.Actual
	case errors.Is(err, common.ErrNotFound):
		r.logger.Warn("Annotating attempt without a learning entry", "attempt_id", attemptID)
	default:
		return nil, err
	}

	if err := r.store.SaveLearningEntry(ctx, &entry); err != nil {
		return nil, fmt.Errorf("failed to save annotation: %w", err)
	}
	r.logger.Info("Recorded annotation",
		"attempt_id", attemptID,
		"document_id", attempt.DocumentID,
		"transactions", len(expected))
	return &entry, nil
}

// ConfirmColumnMappings marks an attempt's column mappings as confirmed by a
// user. Overrides replace the field of the mapping at the same source index
// or add a mapping for a column the attempt did not map. Confirmed mappings
// rank above detected ones for later documents.
func (r *Recorder) ConfirmColumnMappings(ctx context.Context, attemptID int64, overrides []model.ColumnMapping) ([]model.ColumnMapping, error) {
	attempt, err := r.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	existing, err := r.store.ListColumnMappingsForAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 && len(overrides) == 0 {
		return nil, fmt.Errorf("%w: no column mappings recorded for attempt %d", common.ErrNotFound, attemptID)
	}

	byIndex := make(map[int]int, len(existing))
	signature := ""
	for i, m := range existing {
		byIndex[m.SourceIndex] = i
		signature = m.HeaderSignature
	}

	var added []model.ColumnMapping
	for _, o := range overrides {
		if !o.Field.IsValid() {
			return nil, fmt.Errorf("unknown field %q for column %q", o.Field, o.SourceColumn)
		}
		if i, ok := byIndex[o.SourceIndex]; ok {
			existing[i].Field = o.Field
			continue
		}
		if o.HeaderSignature == "" {
			o.HeaderSignature = signature
		}
		added = append(added, o)
	}

	for i := range existing {
		existing[i].UserConfirmed = true
		existing[i].Confidence = 1
		if err := r.store.UpdateColumnMapping(ctx, &existing[i]); err != nil {
			return nil, fmt.Errorf("failed to confirm column %q: %w", existing[i].SourceColumn, err)
		}
	}

	if len(added) > 0 {
		doc, err := r.store.GetDocument(ctx, attempt.DocumentID)
		if err != nil {
			return nil, err
		}
		for i := range added {
			added[i].AttemptID = attemptID
			added[i].OwnerID = attempt.OwnerID
			added[i].FileType = doc.FileType
			added[i].UserConfirmed = true
			added[i].Confidence = 1
		}
		if err := r.store.SaveColumnMappings(ctx, added); err != nil {
			return nil, err
		}
	}

	confirmed := append(existing, added...)
	r.logger.Info("Confirmed column mappings", "attempt_id", attemptID, "columns", len(confirmed))
	return confirmed, nil
}

// CreatePattern stores a user pattern after checking that it compiles.
func (r *Recorder) CreatePattern(ctx context.Context, p *model.RegexPattern) error {
	if strings.TrimSpace(p.Pattern) == "" {
		return fmt.Errorf("pattern %q is empty", p.Name)
	}
	if _, err := r.regex.Compile(p.Pattern); err != nil {
		return fmt.Errorf("pattern %q does not compile: %w", p.Name, err)
	}

	p.IsBuiltin = false
	p.IsActive = true
	p.SuccessCount, p.FailureCount = 0, 0
	p.Recompute()

	if err := r.store.CreatePattern(ctx, p); err != nil {
		return err
	}
	r.logger.Info("Created pattern", "id", p.ID, "name", p.Name, "file_type", p.FileType, "owner_id", p.OwnerID)
	return nil
}

// DeletePattern removes a user pattern. Built-ins are immutable.
func (r *Recorder) DeletePattern(ctx context.Context, id int64) error {
	p, err := r.store.GetPattern(ctx, id)
	if err != nil {
		return err
	}
	if p.IsBuiltin {
		return fmt.Errorf("%w: %s", common.ErrBuiltinImmutable, p.Name)
	}
	return r.store.DeletePattern(ctx, id)
}

// RecordPatternOutcome updates a pattern's counters.
func (r *Recorder) RecordPatternOutcome(ctx context.Context, id int64, success bool) error {
	if success {
		return r.store.RecordPatternSuccess(ctx, id)
	}
	return r.store.RecordPatternFailure(ctx, id)
}

// capText truncates s to at most n bytes without splitting a rune.
func capText(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
