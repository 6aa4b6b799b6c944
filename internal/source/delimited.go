package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/Veraticus/statement-flow/internal/common"
)

var delimiters = []rune{',', ';', '\t', '|'}

func loadDelimited(raw []byte) (*Content, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = sniffDelimiter(raw)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = r.Comma != '\t'

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read delimited file: %v", common.ErrContentUnavailable, err)
	}

	table := buildTable(rows)
	return &Content{Table: table, Text: renderTable(table)}, nil
}

// sniffDelimiter picks the candidate that appears the same non-zero number
// of times on the most of the first lines.
func sniffDelimiter(raw []byte) rune {
	lines := strings.Split(string(raw), "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}

	best, bestScore := ',', 0
	for _, d := range delimiters {
		counts := make(map[int]int)
		for _, line := range lines {
			if n := countOutsideQuotes(line, d); n > 0 {
				counts[n]++
			}
		}
		score := 0
		for _, c := range counts {
			score = max(score, c)
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}
