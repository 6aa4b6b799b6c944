package strategy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/statement-flow/internal/classification"
	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
)

var (
	shortDate     = regexp.MustCompile(`^\d{1,2}[/\-.]\d{1,2}$`)
	shortNameDate = regexp.MustCompile(`(?i)^\d{1,2}[ \-][a-z]{3,9}\.?$`)
	statementYr   = regexp.MustCompile(`\b(19[89]\d|20\d{2})\b`)
)

// statementYear is the first plausible 4-digit year in text. Statement lines
// often omit the year and inherit it from the header.
func statementYear(text string) int {
	if m := statementYr.FindString(text); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	return time.Now().Year()
}

// parseStatementDate parses s, completing yearless dates with year.
func parseStatementDate(s string, order fields.DateOrder, year int) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := fields.ParseDateOrder(s, order); err == nil {
		return t, nil
	}
	switch {
	case shortDate.MatchString(s):
		return fields.ParseDateOrder(fmt.Sprintf("%s/%d", s, year), order)
	case shortNameDate.MatchString(s):
		return fields.ParseDateOrder(fmt.Sprintf("%s %d", s, year), order)
	}
	return time.Time{}, fmt.Errorf("%w: %q", fields.ErrInvalidDate, s)
}

// inferDirection decides debit or credit. An explicit sign wins, then a
// running balance moving against the previous one, then the description.
func inferDirection(amount fields.Amount, balance, prevBalance *float64, description string) model.Direction {
	if amount.ExplicitSign || amount.Negative() {
		if amount.Negative() {
			return model.DirectionDebit
		}
		return model.DirectionCredit
	}
	if balance != nil && prevBalance != nil && *balance != *prevBalance {
		if *balance < *prevBalance {
			return model.DirectionDebit
		}
		return model.DirectionCredit
	}
	if m := classification.Default().Classify(description); m != nil && m.Type == model.TypeIncome {
		return model.DirectionCredit
	}
	return model.DirectionDebit
}

// newTransaction fills the derived fields shared by every strategy.
func newTransaction(date time.Time, magnitude float64, dir model.Direction, description string, prov model.Provenance, confidence float64) model.ParsedTransaction {
	desc := fields.CleanDescription(description)
	return model.ParsedTransaction{
		Date:        date,
		Amount:      magnitude,
		Direction:   dir,
		Description: desc,
		Merchant:    fields.MerchantFromDescription(desc),
		Type:        classification.ClassifyType(desc, dir),
		Provenance:  prov,
		Confidence:  confidence,
	}
}

// lineContext carries state across the lines of one pattern application.
type lineContext struct {
	method      model.Method
	order       fields.DateOrder
	ordinal     int
	year        int
	prevBalance *float64
}

// patternOutcome is the result of applying one regex to every line.
type patternOutcome struct {
	transactions []model.ParsedTransaction
	matched      int
}

// applyPattern runs re over lines. A line counts as matched when the regex
// matches; it yields a transaction only when its date and amount parse.
func applyPattern(re *regexp.Regexp, p model.RegexPattern, lines []string, lc lineContext) patternOutcome {
	var out patternOutcome
	names := re.SubexpNames()

	for i, line := range lines {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		out.matched++

		groups := make(map[model.Field]string)
		var spans [][2]int
		for g := 1; g < len(names); g++ {
			if m[2*g] < 0 {
				continue
			}
			key := names[g]
			if key == "" {
				key = strconv.Itoa(g)
			}
			f, ok := p.FieldFor(key)
			if !ok {
				continue
			}
			if _, seen := groups[f]; !seen {
				groups[f] = strings.TrimSpace(line[m[2*g]:m[2*g+1]])
				spans = append(spans, [2]int{m[2*g], m[2*g+1]})
			}
		}

		tx, ok := transactionFromGroups(groups, line, spans, i+1, &lc)
		if ok {
			tx.Provenance.Raw = line
			out.transactions = append(out.transactions, tx)
		}
	}
	return out
}

func transactionFromGroups(groups map[model.Field]string, line string, spans [][2]int, lineNo int, lc *lineContext) (model.ParsedTransaction, bool) {
	date, err := parseStatementDate(groups[model.FieldDate], lc.order, lc.year)
	if err != nil {
		return model.ParsedTransaction{}, false
	}

	var balance *float64
	if b, err := fields.ParseAmount(groups[model.FieldBalance]); err == nil {
		v := b.Float()
		balance = &v
	}

	description := groups[model.FieldDescription]
	if description == "" {
		description = groups[model.FieldMerchant]
	}
	if description == "" {
		description = fields.RemoveSpans(line, spans...)
	}

	var (
		amount fields.Amount
		dir    model.Direction
	)
	switch {
	case groups[model.FieldAmount] != "":
		a, err := fields.ParseAmount(groups[model.FieldAmount])
		if err != nil {
			return model.ParsedTransaction{}, false
		}
		amount = a
		dir = inferDirection(a, balance, lc.prevBalance, description)
	case groups[model.FieldDebit] != "":
		a, err := fields.ParseAmount(groups[model.FieldDebit])
		if err != nil {
			return model.ParsedTransaction{}, false
		}
		amount, dir = a, model.DirectionDebit
	case groups[model.FieldCredit] != "":
		a, err := fields.ParseAmount(groups[model.FieldCredit])
		if err != nil {
			return model.ParsedTransaction{}, false
		}
		amount, dir = a, model.DirectionCredit
	default:
		return model.ParsedTransaction{}, false
	}
	if amount.Value.IsZero() {
		return model.ParsedTransaction{}, false
	}

	if balance != nil {
		lc.prevBalance = balance
	}

	tx := newTransaction(date, amount.Magnitude(), dir, description,
		model.Provenance{Method: lc.method, Ordinal: lc.ordinal, Line: lineNo}, 0)
	tx.Balance = balance
	tx.Reference = groups[model.FieldReference]
	if c := groups[model.FieldCategory]; c != "" {
		tx.Category = c
	}
	return tx, true
}

// withConfidence stamps every transaction with the result confidence.
func withConfidence(txs []model.ParsedTransaction, c float64) []model.ParsedTransaction {
	for i := range txs {
		txs[i].Confidence = c
	}
	return txs
}
