package fields

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		want    time.Time
		name    string
		in      string
		wantErr bool
	}{
		{name: "iso", in: "2024-01-15", want: day(2024, 1, 15)},
		{name: "us slash", in: "01/15/2024", want: day(2024, 1, 15)},
		{name: "day first when unambiguous", in: "15/01/2024", want: day(2024, 1, 15)},
		{name: "dash is day first", in: "03-04-2024", want: day(2024, 4, 3)},
		{name: "dotted", in: "15.01.2024", want: day(2024, 1, 15)},
		{name: "two digit year", in: "01/15/24", want: day(2024, 1, 15)},
		{name: "day month name", in: "15 Jan 2024", want: day(2024, 1, 15)},
		{name: "day month name short year", in: "15-Jan-24", want: day(2024, 1, 15)},
		{name: "month name first", in: "January 15, 2024", want: day(2024, 1, 15)},
		{name: "timestamp", in: "2024-01-15 10:30:00", want: day(2024, 1, 15)},
		{name: "invalid day", in: "02/30/2024", wantErr: true},
		{name: "garbage", in: "STARBUCKS", wantErr: true},
		{name: "trailing text", in: "01/15/2024 STARBUCKS", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDateOrder(t *testing.T) {
	got, err := ParseDateOrder("03/04/2024", OrderDMY)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 4, 3), got)

	got, err = ParseDateOrder("03/04/2024", OrderMDY)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 4), got)
}

func TestFindDate(t *testing.T) {
	m, ok := FindDate("01/15/2024 STARBUCKS 4.50")
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 15), m.Value)
	assert.Equal(t, 0, m.Start)
	assert.Equal(t, 10, m.End)
	assert.True(t, m.FullYear)

	m, ok = FindDate("Card payment 12 Mar 24 TESCO 5.00")
	require.True(t, ok)
	assert.Equal(t, day(2024, 3, 12), m.Value)
	assert.False(t, m.FullYear)

	_, ok = FindDate("Opening balance 1,234.56")
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		formatted bool
		explicit  bool
		wantErr   bool
	}{
		{name: "plain", in: "4.50", want: "4.5", formatted: true},
		{name: "integer", in: "42", want: "42"},
		{name: "dollar", in: "$1,234.56", want: "1234.56", formatted: true},
		{name: "negative leading", in: "-12.00", want: "-12", formatted: true, explicit: true},
		{name: "negative trailing", in: "12.00-", want: "-12", formatted: true, explicit: true},
		{name: "parentheses", in: "(3.25)", want: "-3.25", formatted: true, explicit: true},
		{name: "currency then minus", in: "$-7.10", want: "-7.1", formatted: true, explicit: true},
		{name: "credit suffix", in: "100.00 CR", want: "100", formatted: true, explicit: true},
		{name: "debit suffix", in: "100.00 DR", want: "-100", formatted: true, explicit: true},
		{name: "pound", in: "£2,500", want: "2500", formatted: true},
		{name: "euro decimal comma", in: "1.234,56 €", want: "1234.56", formatted: true},
		{name: "short decimal comma", in: "12,50", want: "12.5", formatted: true},
		{name: "indian grouping", in: "₹1,00,000.00", want: "100000", formatted: true},
		{name: "iso code", in: "USD 19.99", want: "19.99", formatted: true},
		{name: "plus", in: "+5.00", want: "5", formatted: true, explicit: true},
		{name: "empty", in: " ", wantErr: true},
		{name: "text", in: "N/A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got.Value), "got %s", got.Value)
			assert.Equal(t, tt.formatted, got.CurrencyFormatted)
			assert.Equal(t, tt.explicit, got.ExplicitSign)
		})
	}
}

func TestFindAmounts(t *testing.T) {
	line := "01/15/2024 STARBUCKS #1234 4.50 Balance $1,020.10"
	date, ok := FindDate(line)
	require.True(t, ok)

	matches := FindAmounts(line, [2]int{date.Start, date.End})
	require.Len(t, matches, 2)
	assert.Equal(t, "4.50", matches[0].Text)
	assert.Equal(t, "$1,020.10", matches[1].Text)

	largest, ok := LargestAmount(matches)
	require.True(t, ok)
	assert.InDelta(t, 1020.10, largest.Amount.Magnitude(), 1e-9)

	matches = FindAmounts("REFUND (12.00) ref 998877")
	require.Len(t, matches, 1)
	assert.True(t, matches[0].Amount.Negative())
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"POS PURCHASE 01/14 STARBUCKS STORE 123", "STARBUCKS STORE 123"},
		{"DEBIT CARD PURCHASE   AMAZON MKTP  ", "AMAZON MKTP"},
		{"TESCO STORES XXXX1234 -", "TESCO STORES"},
		{"  STARBUCKS ", "STARBUCKS"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDescription(tt.in))
		})
	}
}

func TestMerchantFromDescription(t *testing.T) {
	assert.Equal(t, "NETFLIX.COM", MerchantFromDescription("NETFLIX.COM REF: 8812AB99"))
	assert.Equal(t, "", MerchantFromDescription("PURCHASE"))
}

func TestRemoveSpans(t *testing.T) {
	line := "01/15/2024 STARBUCKS 4.50"
	assert.Equal(t, "STARBUCKS", RemoveSpans(line, [2]int{21, 25}, [2]int{0, 10}))
}
