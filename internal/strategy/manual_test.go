package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualCorrection_Attempt(t *testing.T) {
	tracker := &fakeTracker{}
	in := input(model.FileTypeText, "JPMorgan Chase Bank\nwww.chase.com\nsome unreadable layout\n")
	in.Prior = []model.AttemptSummary{
		{Method: model.MethodBankSpecific, Ordinal: 1, Status: model.AttemptFailed, Error: "no Chase statement lines matched"},
	}
	in.Options.ExcerptChars = 10

	result, err := NewManualCorrection(tracker, nil).Attempt(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.Terminal)
	assert.Empty(t, result.Transactions)
	assert.True(t, result.RequiresManualCorrection())
	assert.Equal(t, model.DocumentNeedsReview, tracker.statuses["doc-1"])

	payload := result.ManualCorrection
	require.NotNil(t, payload)
	assert.Len(t, []rune(payload.Excerpt), 10)
	assert.Equal(t, in.Prior, payload.Attempts)
	assert.Equal(t, "Chase", payload.Institution)
	assert.Greater(t, payload.TotalChars, 10)
	assert.Contains(t, strings.Join(payload.Suggestions, "\n"), "regex pattern for Chase")
}

func TestManualCorrection_TrackerFailureIsAWarning(t *testing.T) {
	result, err := NewManualCorrection(&fakeTracker{err: errStoreDown}, nil).Attempt(context.Background(),
		input(model.FileTypeText, "garbage"))
	require.NoError(t, err)
	assert.True(t, result.Terminal)
	assert.NotEmpty(t, result.Warnings)
}

func TestSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		ft      model.FileType
		content string
		want    string
	}{
		{
			name:    "unknown institution text",
			ft:      model.FileTypeText,
			content: "just some words",
			want:    "owner-scoped regex pattern",
		},
		{
			name:    "no date and amount lines",
			ft:      model.FileTypeText,
			content: "just some words",
			want:    "both a date and an amount",
		},
		{
			name:    "table without required columns",
			ft:      model.FileTypeCSV,
			content: "Name,Notes\nalpha,first\n",
			want:    "Confirm which columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggestions(input(tt.ft, tt.content))
			assert.Contains(t, strings.Join(got, "\n"), tt.want)
		})
	}
}
