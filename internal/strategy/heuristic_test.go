package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineConfidence(t *testing.T) {
	tests := []struct {
		name     string
		fullYear bool
		currency bool
		fields   int
		want     float64
	}{
		{name: "bare", want: 0.5},
		{name: "full year", fullYear: true, want: 0.7},
		{name: "currency", currency: true, want: 0.7},
		{name: "three fields", fields: 3, want: 0.6},
		{name: "two fields", fields: 2, want: 0.5},
		{name: "everything", fullYear: true, currency: true, fields: 5, want: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, LineConfidence(tt.fullYear, tt.currency, tt.fields), 1e-9)
		})
	}
}

func TestHeuristic_PlainLine(t *testing.T) {
	in := input(model.FileTypeText, "Monthly statement\n01/15/2024 STARBUCKS 4.50\n")

	result, err := NewHeuristic().Attempt(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.Len(t, result.Transactions, 1)

	tx := result.Transactions[0]
	assert.Equal(t, "STARBUCKS", tx.Description)
	assert.Equal(t, 4.50, tx.Amount)
	assert.Equal(t, model.TypeExpense, tx.Type)
	assert.Equal(t, model.DirectionDebit, tx.Direction)
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), tx.Date)
	assert.Equal(t, model.MethodHeuristic, tx.Provenance.Method)
	assert.Equal(t, "01/15/2024 STARBUCKS 4.50", tx.Provenance.Raw)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)

	require.NotNil(t, result.Validation)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 1, result.Summary.Count)
	assert.True(t, decimal.RequireFromString("4.50").Equal(result.Summary.TotalsByType[model.TypeExpense]))
}

func TestHeuristic_ConfidenceIsLineMean(t *testing.T) {
	// Bare integers are not amounts, so the middle lines are not candidates.
	text := "01/15/2024 STARBUCKS 4.50\n15/01/24 5\n01/16/24 LUNCH 12\n02/01/24 BOOKS 7.00\n"

	result, err := NewHeuristic().Attempt(context.Background(), input(model.FileTypeText, text))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Transactions, 2)

	// 1.0 for the first line, 0.5 + 0.2 (two decimals) + 0.1 (three fields) for BOOKS.
	assert.InDelta(t, (1.0+0.8)/2, result.Confidence, 1e-9)
	assert.InDelta(t, result.Confidence, result.Validation.AverageConfidence, 1e-9)
}

func TestHeuristic_Duplicates(t *testing.T) {
	text := "01/15/2024 STARBUCKS 4.50\n01/15/2024 STARBUCKS 4.50\n01/16/2024 CHIPOTLE 12.00\n"

	t.Run("reported not dropped", func(t *testing.T) {
		result, err := NewHeuristic().Attempt(context.Background(), input(model.FileTypeText, text))
		require.NoError(t, err)
		assert.Len(t, result.Transactions, 3)
		assert.Equal(t, 1, result.Validation.DuplicateCount)
		assert.Equal(t, [][]int{{0, 1}}, result.Validation.Duplicates)
		assert.Equal(t, 0, result.Validation.DuplicatesDropped)
		assert.NotEmpty(t, result.Warnings)
	})

	t.Run("dropped on request", func(t *testing.T) {
		in := input(model.FileTypeText, text)
		in.Options.DropDuplicates = true
		result, err := NewHeuristic().Attempt(context.Background(), in)
		require.NoError(t, err)
		assert.Len(t, result.Transactions, 2)
		assert.Equal(t, 1, result.Validation.DuplicatesDropped)
		assert.Equal(t, 2, result.Summary.Count)
	})
}

func TestHeuristic_DateErrors(t *testing.T) {
	h := NewHeuristic()
	h.now = func() time.Time { return time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC) }

	result, err := h.Attempt(context.Background(), input(model.FileTypeText, "01/15/2024 GYM 30.00\n03/15/2030 FUTURE 10.00\n"))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Validation.DateErrors)
}

func TestHeuristic_NoCandidates(t *testing.T) {
	result, err := NewHeuristic().Attempt(context.Background(), input(model.FileTypeText, "nothing useful here\nat all"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.Validation)
}

func TestHeuristic_Enhancer(t *testing.T) {
	text := "01/15/2024 STARBUCKS 4.50\n"

	t.Run("failure keeps heuristic result", func(t *testing.T) {
		enhancer := &fakeEnhancer{err: errors.New("rate limited")}
		result, err := NewHeuristic(WithEnhancer(enhancer)).Attempt(context.Background(), input(model.FileTypeText, text))
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Len(t, result.Transactions, 1)
		assert.Equal(t, 1, enhancer.calls)
		assert.Contains(t, result.Warnings[0], "AI enhancement unavailable")
	})

	t.Run("better result is adopted", func(t *testing.T) {
		enhancer := &fakeEnhancer{result: model.ParseResult{
			Success:    true,
			Confidence: 0.9,
			Transactions: []model.ParsedTransaction{
				{Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Amount: 4.5, Description: "Starbucks", Direction: model.DirectionDebit, Type: model.TypeExpense, Confidence: 0.9},
				{Date: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), Amount: 9, Description: "Bakery", Direction: model.DirectionDebit, Type: model.TypeExpense, Confidence: 0.9},
			},
		}}
		in := input(model.FileTypeText, "STARBUCKS on the 15th for 4.50, bakery next day 9\n")
		in.Ordinal = 3

		result, err := NewHeuristic(WithEnhancer(enhancer)).Attempt(context.Background(), in)
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Equal(t, model.MethodHeuristic, result.Method)
		assert.Len(t, result.Transactions, 2)
		assert.Equal(t, 3, result.Transactions[1].Provenance.Ordinal)
		assert.NotNil(t, result.Summary)
	})

	t.Run("weaker result is ignored", func(t *testing.T) {
		enhancer := &fakeEnhancer{result: model.ParseResult{Success: true, Confidence: 0.2,
			Transactions: []model.ParsedTransaction{{Amount: 1}}}}
		result, err := NewHeuristic(WithEnhancer(enhancer)).Attempt(context.Background(), input(model.FileTypeText, text))
		require.NoError(t, err)
		assert.Equal(t, "STARBUCKS", result.Transactions[0].Description)
	})
}

func TestSummarize(t *testing.T) {
	txs := []model.ParsedTransaction{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Amount: 0.1, Type: model.TypeExpense},
		{Date: time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), Amount: 0.2, Type: model.TypeExpense},
		{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Amount: 100, Type: model.TypeIncome},
	}

	s := Summarize(txs)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 10, s.SpanDays)
	assert.True(t, decimal.RequireFromString("0.3").Equal(s.TotalsByType[model.TypeExpense]))
	assert.True(t, decimal.RequireFromString("100").Equal(s.TotalsByType[model.TypeIncome]))
	assert.Equal(t, 2, s.CountsByType[model.TypeExpense])
	assert.True(t, decimal.RequireFromString("33.43").Equal(s.AverageTransaction))
	assert.Equal(t, txs[0].Date, s.EarliestDate)
	assert.Equal(t, txs[1].Date, s.LatestDate)
}
