package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/testutil"
)

func attempt(method model.Method, status model.AttemptStatus, confidence float64, durationMS int64) model.ParsingAttempt {
	return model.ParsingAttempt{Method: method, Status: status, Confidence: confidence, DurationMS: durationMS}
}

func TestRollup(t *testing.T) {
	day := time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		attempts       []model.ParsingAttempt
		wantAttempts   int
		wantSuccesses  int
		wantConfidence float64
		wantDuration   float64
		wantMethods    map[model.Method]model.MethodStats
	}{
		{
			name:        "no attempts",
			wantMethods: map[model.Method]model.MethodStats{},
		},
		{
			name: "mixed outcomes",
			attempts: []model.ParsingAttempt{
				attempt(model.MethodBankSpecific, model.AttemptFailed, 0, 10),
				attempt(model.MethodTabularColumns, model.AttemptSuccess, 0.93, 30),
				attempt(model.MethodHeuristic, model.AttemptPartialSuccess, 0.4, 20),
				attempt(model.MethodHeuristic, model.AttemptInProgress, 0, 0),
			},
			wantAttempts:   3,
			wantSuccesses:  2,
			wantConfidence: (0.93 + 0.4) / 3,
			wantDuration:   20,
			wantMethods: map[model.Method]model.MethodStats{
				model.MethodBankSpecific:   {Attempts: 1},
				model.MethodTabularColumns: {Attempts: 1, Successes: 1},
				model.MethodHeuristic:      {Attempts: 1, Successes: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Rollup("owner-1", day, tt.attempts)
			assert.Equal(t, model.DayStart(day), m.Day)
			assert.Equal(t, tt.wantAttempts, m.TotalAttempts)
			assert.Equal(t, tt.wantSuccesses, m.TotalSuccesses)
			assert.InDelta(t, tt.wantConfidence, m.AverageConfidence, 1e-9)
			assert.InDelta(t, tt.wantDuration, m.AverageDurationMS, 1e-9)
			assert.Equal(t, tt.wantMethods, m.Methods)
		})
	}
}

func seedAttempts(t *testing.T, db *testutil.TestDB, owner string, day time.Time) {
	t.Helper()
	ctx := context.Background()
	doc := db.SaveDocument(owner, "jan.csv", "Date,Amount\n")

	results := []model.ParseResult{
		model.FailedResult(model.MethodRegexPatterns, "no pattern matched"),
		{Method: model.MethodTabularColumns, Success: true, Confidence: 0.9, Transactions: []model.ParsedTransaction{{Amount: 1}}},
	}
	for i, r := range results {
		a := model.NewAttempt(doc, r.Method, i+1, nil)
		a.StartedAt = day.Add(time.Duration(i+1) * time.Hour)
		require.NoError(t, db.Storage.CreateAttempt(ctx, &a))
		require.NoError(t, a.Finalize(r, a.StartedAt.Add(50*time.Millisecond)))
		require.NoError(t, db.Storage.CompleteAttempt(ctx, &a))
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	seedAttempts(t, db, "owner-1", day)

	agg := NewAggregator(db.Storage, nil)
	first, err := agg.Aggregate(ctx, "owner-1", day.Add(5*time.Hour))
	require.NoError(t, err)
	second, err := agg.Aggregate(ctx, "owner-1", day)
	require.NoError(t, err)

	assert.Equal(t, 2, first.TotalAttempts)
	assert.Equal(t, 1, first.TotalSuccesses)
	assert.InDelta(t, 0.45, first.AverageConfidence, 1e-9)
	assert.InDelta(t, 50, first.AverageDurationMS, 1e-9)
	assert.Equal(t, first.TotalAttempts, second.TotalAttempts)

	stored, err := db.Storage.GetMetrics(ctx, "owner-1", day, day)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].TotalAttempts)
	assert.Equal(t, 1, stored[0].Methods[model.MethodTabularColumns].Successes)
}

func TestAggregateDay(t *testing.T) {
	db := testutil.SetupTestDB(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	seedAttempts(t, db, "owner-1", day)
	seedAttempts(t, db, "owner-2", day)

	agg := NewAggregator(db.Storage, nil)
	n, err := agg.AggregateDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := db.Storage.GetMetrics(context.Background(), "owner-2", day, day)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestNotify_CoalescesAndFlushes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	seedAttempts(t, db, "owner-1", day)

	agg := NewAggregator(db.Storage, nil)
	agg.Notify("owner-1", day.Add(time.Hour))
	agg.Notify("owner-1", day.Add(2*time.Hour))
	agg.Notify("", day)
	assert.Equal(t, 1, agg.Pending())

	agg.Flush(context.Background())
	assert.Zero(t, agg.Pending())

	stored, err := db.Storage.GetMetrics(context.Background(), "owner-1", day, day)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestStart_ProcessesNotifications(t *testing.T) {
	db := testutil.SetupTestDB(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	seedAttempts(t, db, "owner-1", day)

	agg := NewAggregator(db.Storage, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Start(ctx)
		close(done)
	}()

	agg.Notify("owner-1", day)
	require.Eventually(t, func() bool {
		stored, err := db.Storage.GetMetrics(context.Background(), "owner-1", day, day)
		return err == nil && len(stored) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestScheduler(t *testing.T) {
	db := testutil.SetupTestDB(t)
	yesterday := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	seedAttempts(t, db, "owner-1", yesterday)

	agg := NewAggregator(db.Storage, nil)
	s, err := NewScheduler(agg, "15 0 * * *", "UTC", nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 6, 0, 15, 0, 0, time.UTC) }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := db.Storage.GetMetrics(context.Background(), "owner-1", yesterday, yesterday)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	s.Start()
	assert.False(t, s.Next().IsZero())
	s.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, err := NewScheduler(NewAggregator(db.Storage, nil), "not a schedule", "UTC", nil)
	require.Error(t, err)
}

func TestScheduler_BadTimezoneFallsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s, err := NewScheduler(NewAggregator(db.Storage, nil), "@daily", "Mars/Olympus", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, s.loc)
}
