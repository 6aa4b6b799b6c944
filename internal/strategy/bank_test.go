package strategy

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/statement-flow/internal/institution"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chaseStatement = `JPMorgan Chase Bank, N.A.
www.chase.com
Statement Period 01/01/2024 through 01/31/2024

01/15 STARBUCKS STORE 1234 -4.50 995.50
01/16 PAYROLL ACME CORP 2,000.00 2,995.50
`

func TestBankConfidence(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  float64
	}{
		{name: "no transactions", count: 0, want: 0},
		{name: "one", count: 1, want: 0.7025},
		{name: "fifty", count: 50, want: 0.825},
		{name: "eighty", count: 80, want: 0.9},
		{name: "saturates", count: 400, want: 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, BankConfidence(tt.count), 1e-9)
		})
	}
}

func TestBankSpecific_CatalogPatterns(t *testing.T) {
	in := input(model.FileTypeText, chaseStatement)
	require.Equal(t, "Chase", in.Detection.Name)
	require.Equal(t, institution.StrengthStrong, in.Detection.Strength)

	result, err := NewBankSpecific(nil, nil).Attempt(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	assert.Equal(t, model.MethodBankSpecific, result.Method)
	assert.Equal(t, "Chase", result.Institution)
	assert.Equal(t, "chase-activity", result.PatternName)
	assert.InDelta(t, 0.705, result.Confidence, 1e-9)
	require.Len(t, result.Transactions, 2)

	coffee := result.Transactions[0]
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), coffee.Date)
	assert.Equal(t, 4.50, coffee.Amount)
	assert.Equal(t, model.DirectionDebit, coffee.Direction)
	assert.Equal(t, model.TypeExpense, coffee.Type)
	require.NotNil(t, coffee.Balance)
	assert.Equal(t, 995.50, *coffee.Balance)

	payroll := result.Transactions[1]
	assert.Equal(t, 2000.0, payroll.Amount)
	assert.Equal(t, model.DirectionCredit, payroll.Direction)
	assert.Equal(t, model.TypeIncome, payroll.Type)
	assert.Equal(t, 1, payroll.Provenance.Ordinal)
}

func TestBankSpecific_StoredPatternsRecordOutcomes(t *testing.T) {
	store := &fakePatterns{patterns: []model.RegexPattern{
		{
			ID:          7,
			Name:        "chase-custom",
			Pattern:     `^(?P<date>\d{2}/\d{2})\s+(?P<description>.+?)\s+(?P<amount>-?[\d,]+\.\d{2})\s+[\d,]+\.\d{2}$`,
			FileType:    model.FileTypeText,
			Institution: "Chase",
			IsActive:    true,
		},
		{
			ID:          8,
			Name:        "chase-never",
			Pattern:     `^NEVER MATCHES (?P<date>x)(?P<amount>y)$`,
			FileType:    model.FileTypeText,
			Institution: "Chase",
			IsActive:    true,
		},
	}}

	result, err := NewBankSpecific(store, nil).Attempt(context.Background(), input(model.FileTypeText, chaseStatement))
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, "chase-custom", result.PatternName)
	assert.Len(t, result.Transactions, 2)
	assert.Equal(t, []int64{7}, store.successes)
	assert.Equal(t, []int64{8}, store.failures)

	require.Len(t, store.filters, 1)
	assert.Equal(t, "Chase", store.filters[0].Institution)
	assert.Equal(t, "owner-1", store.filters[0].OwnerID)
	assert.True(t, store.filters[0].ActiveOnly)
}

func TestStoredPatternCountedOncePerDocument(t *testing.T) {
	store := &fakePatterns{patterns: []model.RegexPattern{
		{
			ID:          7,
			Name:        "chase-custom",
			Pattern:     `^(?P<date>\d{2}/\d{2})\s+(?P<description>.+?)\s+(?P<amount>-?[\d,]+\.\d{2})\s+[\d,]+\.\d{2}$`,
			FileType:    model.FileTypeText,
			Institution: "Chase",
			IsActive:    true,
		},
		{
			ID:          8,
			Name:        "chase-never",
			Pattern:     `^NEVER MATCHES (?P<date>x)(?P<amount>y)$`,
			FileType:    model.FileTypeText,
			Institution: "Chase",
			IsActive:    true,
		},
	}}

	in := input(model.FileTypeText, chaseStatement)
	in.Counted = NewPatternTally()

	bank, err := NewBankSpecific(store, nil).Attempt(context.Background(), in)
	require.NoError(t, err)
	require.True(t, bank.Success)
	require.Less(t, bank.Confidence, 0.85)

	regex, err := NewRegexPatterns(store, DefaultMatchRatioBounds, nil).Attempt(context.Background(), in)
	require.NoError(t, err)
	require.True(t, regex.Success, regex.Error)
	assert.Equal(t, "chase-custom", regex.PatternName)

	assert.Equal(t, []int64{7}, store.successes)
	assert.Equal(t, []int64{8}, store.failures)
}

func TestPatternTally_Claim(t *testing.T) {
	tally := NewPatternTally()
	assert.True(t, tally.Claim(1))
	assert.False(t, tally.Claim(1))
	assert.True(t, tally.Claim(2))

	var untracked *PatternTally
	assert.True(t, untracked.Claim(1))
	assert.True(t, untracked.Claim(1))
}

func TestBankSpecific_Failures(t *testing.T) {
	t.Run("no institution", func(t *testing.T) {
		result, err := NewBankSpecific(nil, nil).Attempt(context.Background(),
			input(model.FileTypeText, "01/15/2024 STARBUCKS 4.50"))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "no institution recognized", result.Error)
	})

	t.Run("institution without matching lines", func(t *testing.T) {
		result, err := NewBankSpecific(nil, nil).Attempt(context.Background(),
			input(model.FileTypeText, "JPMorgan Chase Bank\nwww.chase.com\nThank you for banking with us"))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "Chase", result.Institution)
		assert.Empty(t, result.Transactions)
	})

	t.Run("store error propagates", func(t *testing.T) {
		_, err := NewBankSpecific(&fakePatterns{listErr: errStoreDown}, nil).Attempt(context.Background(),
			input(model.FileTypeText, chaseStatement))
		assert.ErrorIs(t, err, errStoreDown)
	})
}

func TestBankSpecific_WeakDetection(t *testing.T) {
	t.Run("few lines", func(t *testing.T) {
		text := "Wells Fargo\n01/05 GROCERY OUTLET 52.10\n01/09 SHELL OIL 40.00\n"
		in := input(model.FileTypeText, text)
		require.Equal(t, institution.StrengthWeak, in.Detection.Strength)

		result, err := NewBankSpecific(nil, nil).Attempt(context.Background(), in)
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Len(t, result.Transactions, 2)
		assert.InDelta(t, 0.705, result.Confidence, 1e-9)
	})

	t.Run("name only can clear early exit", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("Wells Fargo\n")
		for i := 1; i <= 80; i++ {
			fmt.Fprintf(&b, "01/%02d STORE %d 10.00\n", (i%28)+1, i)
		}
		in := input(model.FileTypeText, b.String())
		require.Equal(t, "Wells Fargo", in.Detection.Name)
		require.Equal(t, institution.StrengthWeak, in.Detection.Strength)

		result, err := NewBankSpecific(nil, nil).Attempt(context.Background(), in)
		require.NoError(t, err)
		require.True(t, result.Success, result.Error)
		require.Len(t, result.Transactions, 80)
		assert.InDelta(t, 0.9, result.Confidence, 1e-9)
		assert.Greater(t, result.Confidence, 0.85)
	})
}

func TestBankSpecific_Supports(t *testing.T) {
	b := NewBankSpecific(nil, nil)
	assert.True(t, b.Supports(model.FileTypePDF))
	assert.True(t, b.Supports(model.FileTypeText))
	assert.False(t, b.Supports(model.FileTypeCSV))
}
