package tabular

import (
	"strconv"
	"strings"

	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
)

// Column mapping confidences by how the column was recognized.
const (
	ConfidenceExactHeader = 0.95
	ConfidenceKeyword     = 0.85
	ConfidenceContent     = 0.6
)

// Column is one mapped source column.
type Column struct {
	Name       string
	Source     string // exact, keyword, content or learned
	Index      int
	Confidence float64
}

// Mapping assigns table columns to semantic fields.
type Mapping struct {
	Columns   map[model.Field]Column
	Signature string
	Learned   bool
}

// Has reports whether field is mapped.
func (m Mapping) Has(f model.Field) bool {
	_, ok := m.Columns[f]
	return ok
}

// HasRequired reports whether the mapping can produce transactions: a date
// column plus either a unified amount or a debit/credit column.
func (m Mapping) HasRequired() bool {
	return m.Has(model.FieldDate) && (m.Has(model.FieldAmount) || m.Has(model.FieldDebit) || m.Has(model.FieldCredit))
}

// Confidence is the mean confidence of the mapped columns.
func (m Mapping) Confidence() float64 {
	if len(m.Columns) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range m.Columns {
		sum += c.Confidence
	}
	return sum / float64(len(m.Columns))
}

// ToModel converts the mapping to persistable column mappings.
func (m Mapping) ToModel(ownerID string, ft model.FileType) []model.ColumnMapping {
	out := make([]model.ColumnMapping, 0, len(m.Columns))
	for _, f := range model.AllFields {
		c, ok := m.Columns[f]
		if !ok {
			continue
		}
		out = append(out, model.ColumnMapping{
			OwnerID:         ownerID,
			FileType:        ft,
			SourceColumn:    c.Name,
			SourceIndex:     c.Index,
			Field:           f,
			Confidence:      c.Confidence,
			HeaderSignature: m.Signature,
		})
	}
	return out
}

type headerRule struct {
	field    model.Field
	exact    []string
	keywords []string
}

// Rules are checked in order, so specific fields precede the generic amount.
var headerRules = []headerRule{
	{
		field:    model.FieldDate,
		exact:    []string{"date", "transaction date", "posting date", "posted date", "post date", "trans date", "txn date", "value date", "booking date"},
		keywords: []string{"date", "posted", "dt"},
	},
	{
		field:    model.FieldDebit,
		exact:    []string{"debit", "debits", "debit amount", "withdrawal", "withdrawals", "withdrawal amt", "money out", "paid out", "dr"},
		keywords: []string{"debit", "withdrawal", "withdrawals", "out", "dr"},
	},
	{
		field:    model.FieldCredit,
		exact:    []string{"credit", "credits", "credit amount", "deposit", "deposits", "deposit amt", "money in", "paid in", "cr"},
		keywords: []string{"credit", "deposit", "deposits", "in", "cr"},
	},
	{
		field:    model.FieldBalance,
		exact:    []string{"balance", "running balance", "closing balance", "available balance"},
		keywords: []string{"balance", "bal"},
	},
	{
		field:    model.FieldAmount,
		exact:    []string{"amount", "transaction amount", "amt", "value", "trnamt"},
		keywords: []string{"amount", "amt", "sum"},
	},
	{
		field:    model.FieldDescription,
		exact:    []string{"description", "transaction description", "details", "transaction details", "narration", "memo", "particulars", "payee", "name"},
		keywords: []string{"description", "desc", "details", "detail", "narration", "memo", "particulars", "remarks", "payee"},
	},
	{
		field:    model.FieldMerchant,
		exact:    []string{"merchant", "merchant name", "vendor"},
		keywords: []string{"merchant", "vendor"},
	},
	{
		field:    model.FieldCategory,
		exact:    []string{"category", "transaction category"},
		keywords: []string{"category"},
	},
	{
		field:    model.FieldReference,
		exact:    []string{"reference", "ref", "ref no", "cheque no", "check number", "transaction id", "fitid", "chq/ref no"},
		keywords: []string{"reference", "ref", "cheque", "check", "fitid"},
	},
	{
		field:    model.FieldAccountNumber,
		exact:    []string{"account", "account number", "account no", "acct", "acct no"},
		keywords: []string{"account", "acct"},
	},
}

// Content heuristics sample this many rows and need this share of parsable
// cells to claim a column.
const (
	contentSampleRows = 20
	contentMinRate    = 0.6
)

// DetectColumns maps table columns to fields from header names, falling back
// to cell content for required fields no header identified.
func DetectColumns(t *Table) Mapping {
	m := Mapping{
		Columns:   make(map[model.Field]Column),
		Signature: model.HeaderSignature(t.Headers),
	}

	for i, h := range t.Headers {
		f, conf, source, ok := classifyHeader(h)
		if !ok {
			continue
		}
		if cur, taken := m.Columns[f]; taken && cur.Confidence >= conf {
			continue
		}
		m.Columns[f] = Column{Name: h, Index: i, Confidence: conf, Source: source}
	}

	detectFromContent(t, &m)
	return m
}

// ApplyLearned builds a mapping from stored mappings sharing the table's
// header signature. User-confirmed mappings win, then higher confidence.
func ApplyLearned(t *Table, learned []model.ColumnMapping) (Mapping, bool) {
	signature := model.HeaderSignature(t.Headers)
	m := Mapping{
		Columns:   make(map[model.Field]Column),
		Signature: signature,
		Learned:   true,
	}

	ranked := append([]model.ColumnMapping(nil), learned...)
	model.RankMappings(ranked)

	for _, l := range ranked {
		if l.HeaderSignature != signature || m.Has(l.Field) {
			continue
		}
		if l.SourceIndex < 0 || l.SourceIndex >= len(t.Headers) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(t.Headers[l.SourceIndex]), strings.TrimSpace(l.SourceColumn)) {
			continue
		}
		conf := l.Confidence
		if l.UserConfirmed && conf < ConfidenceExactHeader {
			conf = ConfidenceExactHeader
		}
		m.Columns[l.Field] = Column{Name: l.SourceColumn, Index: l.SourceIndex, Confidence: conf, Source: "learned"}
	}

	return m, m.HasRequired()
}

func classifyHeader(h string) (model.Field, float64, string, bool) {
	norm := normalizeHeader(h)
	if norm == "" {
		return "", 0, "", false
	}
	for _, r := range headerRules {
		for _, e := range r.exact {
			if norm == e {
				return r.field, ConfidenceExactHeader, "exact", true
			}
		}
	}
	tokens := strings.Fields(norm)
	for _, r := range headerRules {
		for _, kw := range r.keywords {
			if containsToken(tokens, norm, kw) {
				return r.field, ConfidenceKeyword, "keyword", true
			}
		}
	}
	return "", 0, "", false
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", ".", " ", "(", " ", ")", " ", ":", " ", "#", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// containsToken matches short keywords as whole tokens and longer ones as
// substrings so "withdrawals" still hits "withdrawal".
func containsToken(tokens []string, norm, kw string) bool {
	if len(kw) <= 3 {
		for _, t := range tokens {
			if t == kw {
				return true
			}
		}
		return false
	}
	return strings.Contains(norm, kw)
}

func detectFromContent(t *Table, m *Mapping) {
	rows := len(t.Rows)
	if rows > contentSampleRows {
		rows = contentSampleRows
	}
	if rows == 0 {
		return
	}

	width := len(t.Headers)
	for _, r := range t.Rows[:rows] {
		if len(r) > width {
			width = len(r)
		}
	}

	used := make(map[int]bool)
	for _, c := range m.Columns {
		used[c.Index] = true
	}

	dateRate := make([]float64, width)
	amountRate := make([]float64, width)
	textLen := make([]float64, width)
	for c := 0; c < width; c++ {
		var dates, amounts, nonEmpty, letters int
		for r := 0; r < rows; r++ {
			v := t.Cell(r, c)
			if v == "" {
				continue
			}
			nonEmpty++
			if _, err := fields.ParseDate(v); err == nil {
				dates++
			} else if _, err := fields.ParseAmount(v); err == nil {
				amounts++
			} else if strings.IndexFunc(v, isLetter) >= 0 {
				letters += len(v)
			}
		}
		if nonEmpty > 0 {
			dateRate[c] = float64(dates) / float64(nonEmpty)
			amountRate[c] = float64(amounts) / float64(nonEmpty)
			textLen[c] = float64(letters) / float64(nonEmpty)
		}
	}

	claim := func(f model.Field, col int) {
		m.Columns[f] = Column{Name: headerName(t, col), Index: col, Confidence: ConfidenceContent, Source: "content"}
		used[col] = true
	}

	if !m.Has(model.FieldDate) {
		if col, ok := bestColumn(dateRate, used); ok {
			claim(model.FieldDate, col)
		}
	}
	if !m.Has(model.FieldAmount) && !m.Has(model.FieldDebit) && !m.Has(model.FieldCredit) {
		if col, ok := bestColumn(amountRate, used); ok {
			claim(model.FieldAmount, col)
		}
	}
	if !m.Has(model.FieldDescription) {
		best, bestLen := -1, 0.0
		for c := 0; c < width; c++ {
			if used[c] || textLen[c] <= bestLen {
				continue
			}
			best, bestLen = c, textLen[c]
		}
		if best >= 0 {
			claim(model.FieldDescription, best)
		}
	}
}

func bestColumn(rates []float64, used map[int]bool) (int, bool) {
	best, bestRate := -1, contentMinRate-1e-9
	for c, r := range rates {
		if used[c] || r <= bestRate {
			continue
		}
		best, bestRate = c, r
	}
	return best, best >= 0
}

func headerName(t *Table, col int) string {
	if col < len(t.Headers) && strings.TrimSpace(t.Headers[col]) != "" {
		return t.Headers[col]
	}
	return ColumnName(col)
}

// ColumnName is the synthetic header for a headerless column.
func ColumnName(col int) string {
	return "column_" + strconv.Itoa(col+1)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127
}
