package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/service"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store, func() { _ = store.Close() }
}

func saveTestDocument(t *testing.T, s *SQLiteStorage, id string) model.Document {
	t.Helper()
	doc := model.Document{ID: id, OwnerID: "owner-1", Name: id + ".csv", FileType: model.FileTypeCSV, Content: []byte("Date,Amount\n")}
	require.NoError(t, s.SaveDocument(context.Background(), &doc))
	return doc
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	v, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, v)
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	require.ErrorIs(t, err, ErrEmptyString)
}

func TestDocuments(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	doc := saveTestDocument(t, store, "doc-1")

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.OwnerID, got.OwnerID)
	assert.Equal(t, model.FileTypeCSV, got.FileType)
	assert.Equal(t, doc.Content, got.Content)

	status, err := store.GetDocumentStatus(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentUploaded, status)

	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, model.DocumentNeedsReview))
	status, err = store.GetDocumentStatus(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentNeedsReview, status)

	err = store.SaveDocument(ctx, &doc)
	require.ErrorIs(t, err, common.ErrDuplicateEntry)

	_, err = store.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	err = store.UpdateDocumentStatus(ctx, "missing", model.DocumentParsed)
	require.ErrorIs(t, err, common.ErrNotFound)

	err = store.UpdateDocumentStatus(ctx, doc.ID, "bogus")
	require.ErrorIs(t, err, ErrInvalidDocumentStat)
}

func TestAttempts_OrdinalsAndCompletion(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	doc := saveTestDocument(t, store, "doc-1")

	next, err := store.NextOrdinal(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	a := model.NewAttempt(doc, model.MethodTabularColumns, next, map[string]any{"max_attempts": 4})
	require.NoError(t, store.CreateAttempt(ctx, &a))
	assert.NotZero(t, a.ID)

	next, err = store.NextOrdinal(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	dup := model.NewAttempt(doc, model.MethodHeuristic, 1, nil)
	require.ErrorIs(t, store.CreateAttempt(ctx, &dup), common.ErrDuplicateEntry)

	result := model.ParseResult{
		Method:       model.MethodTabularColumns,
		Success:      true,
		Confidence:   0.93,
		Transactions: []model.ParsedTransaction{{Description: "COFFEE", Amount: 4.5}},
	}
	require.NoError(t, a.Finalize(result, a.StartedAt.Add(120*time.Millisecond)))
	require.NoError(t, store.CompleteAttempt(ctx, &a))

	got, err := store.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptSuccess, got.Status)
	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
	assert.Equal(t, 1, got.TransactionCount)
	assert.Equal(t, int64(120), got.DurationMS)
	require.NotNil(t, got.CompletedAt)
	assert.InDelta(t, 4.0, got.Config["max_attempts"], 1e-9)
	assert.Equal(t, true, got.RawOutput["success"])

	err = store.CompleteAttempt(ctx, &a)
	require.ErrorIs(t, err, model.ErrAttemptFinalized)

	missing := a
	missing.ID = 9999
	require.ErrorIs(t, store.CompleteAttempt(ctx, &missing), common.ErrNotFound)
}

func TestAttempts_ListByDocumentAndDay(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	doc := saveTestDocument(t, store, "doc-1")

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	starts := []time.Time{day.Add(-time.Minute), day.Add(time.Hour), day.Add(23 * time.Hour)}
	for i, start := range starts {
		a := model.NewAttempt(doc, model.MethodHeuristic, i+1, nil)
		a.StartedAt = start
		require.NoError(t, store.CreateAttempt(ctx, &a))
	}
	other := model.Document{ID: "doc-2", OwnerID: "owner-2", FileType: model.FileTypeText}
	a := model.NewAttempt(other, model.MethodHeuristic, 1, nil)
	a.StartedAt = day.Add(2 * time.Hour)
	require.NoError(t, store.CreateAttempt(ctx, &a))

	all, err := store.ListAttempts(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, a := range all {
		assert.Equal(t, i+1, a.Ordinal)
	}

	forDay, err := store.ListAttemptsForDay(ctx, "owner-1", day)
	require.NoError(t, err)
	assert.Len(t, forDay, 2)

	owners, err := store.ListActiveOwners(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner-1", "owner-2"}, owners)
}

func TestAttempts_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		attempt model.ParsingAttempt
		name    string
	}{
		{name: "missing document", attempt: model.ParsingAttempt{Method: model.MethodHeuristic, Ordinal: 1}},
		{name: "unknown method", attempt: model.ParsingAttempt{DocumentID: "d", Method: "ocr", Ordinal: 1}},
		{name: "zero ordinal", attempt: model.ParsingAttempt{DocumentID: "d", Method: model.MethodHeuristic}},
		{name: "confidence out of range", attempt: model.ParsingAttempt{DocumentID: "d", Method: model.MethodHeuristic, Ordinal: 1, Confidence: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.attempt
			require.ErrorIs(t, store.CreateAttempt(ctx, &a), ErrInvalidAttempt)
		})
	}
}

func testPattern(name string) model.RegexPattern {
	return model.RegexPattern{
		Name:     name,
		Pattern:  `^(?P<date>\d{2}/\d{2})\s+(?P<description>.+?)\s+(?P<amount>-?[\d,]+\.\d{2})$`,
		FileType: model.FileTypeText,
		OwnerID:  "owner-1",
		Priority: 10,
		IsActive: true,
	}
}

func TestPatterns_CreateListDelete(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	p := testPattern("simple")
	require.NoError(t, store.CreatePattern(ctx, &p))
	assert.NotZero(t, p.ID)
	assert.InDelta(t, model.InitialPatternConfidence, p.Confidence, 1e-9)

	dup := testPattern("simple")
	require.ErrorIs(t, store.CreatePattern(ctx, &dup), common.ErrDuplicateEntry)

	bad := testPattern("broken")
	bad.Pattern = "(unclosed"
	require.ErrorIs(t, store.CreatePattern(ctx, &bad), ErrInvalidPattern)

	otherOwner := testPattern("simple")
	otherOwner.OwnerID = "owner-2"
	require.NoError(t, store.CreatePattern(ctx, &otherOwner))

	builtins := []model.RegexPattern{
		{Name: "chase_text", Pattern: `^(?P<date>\d{2}/\d{2}) (?P<description>.+) (?P<amount>[\d.]+)$`, FileType: model.FileTypeText, Institution: "Chase", Priority: 1},
	}
	added, err := store.SeedBuiltinPatterns(ctx, builtins)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	added, err = store.SeedBuiltinPatterns(ctx, builtins)
	require.NoError(t, err)
	assert.Zero(t, added)

	listed, err := store.ListPatterns(ctx, service.PatternFilter{FileType: model.FileTypeText, OwnerID: "owner-1", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "chase_text", listed[0].Name)
	assert.True(t, listed[0].IsBuiltin)
	assert.Equal(t, "simple", listed[1].Name)
	assert.Equal(t, "owner-1", listed[1].OwnerID)

	byInstitution, err := store.ListPatterns(ctx, service.PatternFilter{Institution: "Chase"})
	require.NoError(t, err)
	require.Len(t, byInstitution, 1)

	require.ErrorIs(t, store.DeletePattern(ctx, listed[0].ID), common.ErrBuiltinImmutable)
	require.NoError(t, store.DeletePattern(ctx, p.ID))
	require.ErrorIs(t, store.DeletePattern(ctx, p.ID), common.ErrNotFound)

	require.NoError(t, store.SetPatternActive(ctx, otherOwner.ID, false))
	inactive, err := store.ListPatterns(ctx, service.PatternFilter{OwnerID: "owner-2", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "chase_text", inactive[0].Name)

	created, err := store.CountPatternsCreated(ctx, "owner-2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestPatterns_OutcomeCounters(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	p := testPattern("counted")
	require.NoError(t, store.CreatePattern(ctx, &p))

	for i := 0; i < 18; i++ {
		require.NoError(t, store.RecordPatternSuccess(ctx, p.ID))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, store.RecordPatternFailure(ctx, p.ID))
	}

	got, err := store.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, got.SuccessCount)
	assert.Equal(t, 2, got.FailureCount)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.NotNil(t, got.LastUsed)

	require.ErrorIs(t, store.RecordPatternSuccess(ctx, 9999), common.ErrNotFound)
}

func TestPatterns_ConfidenceClamped(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	good := testPattern("always")
	require.NoError(t, store.CreatePattern(ctx, &good))
	bad := testPattern("never")
	require.NoError(t, store.CreatePattern(ctx, &bad))

	for i := 0; i < 30; i++ {
		require.NoError(t, store.RecordPatternSuccess(ctx, good.ID))
		require.NoError(t, store.RecordPatternFailure(ctx, bad.ID))
	}

	g, err := store.GetPattern(ctx, good.ID)
	require.NoError(t, err)
	assert.InDelta(t, model.MaxPatternConfidence, g.Confidence, 1e-9)

	b, err := store.GetPattern(ctx, bad.ID)
	require.NoError(t, err)
	assert.InDelta(t, model.MinPatternConfidence, b.Confidence, 1e-9)
}

func TestPatterns_ConcurrentOutcomes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	p := testPattern("busy")
	require.NoError(t, store.CreatePattern(ctx, &p))

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- store.RecordPatternSuccess(ctx, p.ID)
		}()
		go func() {
			defer wg.Done()
			errs <- store.RecordPatternFailure(ctx, p.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.SuccessCount)
	assert.Equal(t, 20, got.FailureCount)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}

func TestColumnMappings(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	doc := saveTestDocument(t, store, "doc-1")

	a := model.NewAttempt(doc, model.MethodTabularColumns, 1, nil)
	require.NoError(t, store.CreateAttempt(ctx, &a))

	sig := model.HeaderSignature([]string{"Posted", "Memo", "Value"})
	mappings := []model.ColumnMapping{
		{AttemptID: a.ID, OwnerID: "owner-1", FileType: model.FileTypeCSV, SourceColumn: "Posted", SourceIndex: 0, Field: model.FieldDate, HeaderSignature: sig, Confidence: 0.6},
		{AttemptID: a.ID, OwnerID: "owner-1", FileType: model.FileTypeCSV, SourceColumn: "Memo", SourceIndex: 1, Field: model.FieldDescription, HeaderSignature: sig, Confidence: 0.6},
		{AttemptID: a.ID, OwnerID: "owner-1", FileType: model.FileTypeCSV, SourceColumn: "Value", SourceIndex: 2, Field: model.FieldAmount, HeaderSignature: sig, Confidence: 0.6},
	}
	require.NoError(t, store.SaveColumnMappings(ctx, mappings))
	for _, m := range mappings {
		assert.NotZero(t, m.ID)
	}

	forAttempt, err := store.ListColumnMappingsForAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, forAttempt, 3)

	confirmed := forAttempt[2]
	confirmed.UserConfirmed = true
	confirmed.Confidence = 1
	require.NoError(t, store.UpdateColumnMapping(ctx, &confirmed))

	found, err := store.FindColumnMappings(ctx, "owner-1", model.FileTypeCSV, sig)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.True(t, found[0].UserConfirmed)
	assert.Equal(t, model.FieldAmount, found[0].Field)

	none, err := store.FindColumnMappings(ctx, "owner-2", model.FileTypeCSV, sig)
	require.NoError(t, err)
	assert.Empty(t, none)

	invalid := []model.ColumnMapping{{Field: "color", SourceColumn: "x"}}
	require.ErrorIs(t, store.SaveColumnMappings(ctx, invalid), ErrInvalidMapping)
}

func TestLearningEntries(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	auto := model.LearningEntry{
		AttemptID:      7,
		DocumentID:     "doc-1",
		OwnerID:        "owner-1",
		Method:         model.MethodHeuristic,
		Outcome:        model.OutcomeSuccessfulParsing,
		SourceText:     "01/15 STARBUCKS 4.50",
		Actual:         []model.ParsedTransaction{{Description: "STARBUCKS", Amount: 4.5}},
		QualityScore:   0.8,
		TrainingWeight: model.DefaultTrainingWeight,
	}
	require.NoError(t, store.SaveLearningEntry(ctx, &auto))

	annotation := model.LearningEntry{
		AttemptID:      7,
		DocumentID:     "doc-1",
		OwnerID:        "owner-1",
		Outcome:        model.OutcomeManualAnnotation,
		Expected:       []model.ParsedTransaction{{Description: "STARBUCKS", Amount: 4.5}},
		QualityScore:   1,
		TrainingWeight: model.AnnotationTrainingWeight,
		Validated:      true,
	}
	require.NoError(t, store.SaveLearningEntry(ctx, &annotation))

	got, err := store.GetLearningEntryByAttempt(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, auto.ID, got.ID)
	require.Len(t, got.Actual, 1)
	assert.Equal(t, "STARBUCKS", got.Actual[0].Description)

	validated, err := store.ListLearningEntries(ctx, service.LearningFilter{OwnerID: "owner-1", ValidatedOnly: true})
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.InDelta(t, 2.0, validated[0].TrainingWeight, 1e-9)

	limited, err := store.ListLearningEntries(ctx, service.LearningFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := store.CountLearningEntries(ctx, "owner-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.GetLearningEntryByAttempt(ctx, 99)
	require.ErrorIs(t, err, common.ErrNotFound)

	bad := auto
	bad.TrainingWeight = 0
	require.ErrorIs(t, store.SaveLearningEntry(ctx, &bad), ErrInvalidLearning)
}

func TestMetrics_Upsert(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	day := time.Date(2024, 3, 5, 15, 30, 0, 0, time.UTC)
	m := model.ParsingMetrics{
		OwnerID:        "owner-1",
		Day:            day,
		TotalAttempts:  3,
		TotalSuccesses: 1,
		Methods: map[model.Method]model.MethodStats{
			model.MethodTabularColumns: {Attempts: 1, Successes: 1},
		},
	}
	require.NoError(t, store.UpsertMetrics(ctx, &m))

	m.TotalAttempts = 4
	require.NoError(t, store.UpsertMetrics(ctx, &m))

	got, err := store.GetMetrics(ctx, "owner-1", day.AddDate(0, 0, -1), day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].TotalAttempts)
	assert.Equal(t, model.DayStart(day), got[0].Day)
	assert.Equal(t, 1, got[0].Methods[model.MethodTabularColumns].Successes)

	_, err = store.GetMetrics(ctx, "owner-1", day, day.AddDate(0, 0, -1))
	require.ErrorIs(t, err, ErrInvalidDateRange)

	bad := model.ParsingMetrics{OwnerID: "owner-1", Day: day, TotalAttempts: 1, TotalSuccesses: 2}
	require.True(t, errors.Is(store.UpsertMetrics(ctx, &bad), ErrInvalidMetrics))
}
