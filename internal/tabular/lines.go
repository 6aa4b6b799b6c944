// Package tabular structures statement content: candidate transaction lines
// for free text, and column mappings for tables.
package tabular

import (
	"strings"

	"github.com/Veraticus/statement-flow/internal/fields"
)

// Table is an ordered set of rows with header names.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Cell returns the trimmed value at row r, column c, or "".
func (t *Table) Cell(r, c int) string {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Rows[r]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[r][c])
}

// Candidate is a line that plausibly holds one transaction.
type Candidate struct {
	Text    string
	Date    fields.DateMatch
	Amounts []fields.AmountMatch
	Line    int // 1-based line number in the cleaned text
}

// CandidateLines keeps lines carrying both a date-like and an amount-like
// token, in their original order.
func CandidateLines(text string, order fields.DateOrder) []Candidate {
	var out []Candidate
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if c, ok := candidate(line, order); ok {
			c.Line = i + 1
			out = append(out, c)
		}
	}
	return out
}

// CountLines returns the number of non-empty lines in text.
func CountLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func candidate(line string, order fields.DateOrder) (Candidate, bool) {
	date, ok := fields.FindDateOrder(line, order)
	if !ok {
		return Candidate{}, false
	}
	amounts := fields.FindAmounts(line, [2]int{date.Start, date.End})
	if len(amounts) == 0 {
		return Candidate{}, false
	}
	return Candidate{Text: line, Date: date, Amounts: amounts}, true
}
