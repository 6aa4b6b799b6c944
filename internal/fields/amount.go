package fields

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a string is not a monetary amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a parsed monetary value.
type Amount struct {
	Value             decimal.Decimal // Signed
	Currency          string
	ExplicitSign      bool // Minus, parentheses, CR/DR or + was present
	CurrencyFormatted bool // Currency marker, thousands separator or two decimals
}

// Float returns the signed value as a float64.
func (a Amount) Float() float64 {
	f, _ := a.Value.Float64()
	return f
}

// Magnitude returns the absolute value as a float64.
func (a Amount) Magnitude() float64 {
	f, _ := a.Value.Abs().Float64()
	return f
}

// Negative reports whether the amount is below zero.
func (a Amount) Negative() bool {
	return a.Value.IsNegative()
}

// AmountMatch is an amount located inside a line.
type AmountMatch struct {
	Text   string
	Amount Amount
	Start  int
	End    int
}

var currencySymbols = map[string]string{
	"$": "USD", "£": "GBP", "€": "EUR", "₹": "INR", "¥": "JPY",
}

var currencyCodes = []string{"USD", "GBP", "EUR", "INR", "CAD", "AUD", "JPY", "NZD", "CHF", "RS.", "RS"}

var (
	plainNumber    = regexp.MustCompile(`^\d+(\.\d+)?$`)
	groupedComma   = regexp.MustCompile(`^\d{1,3}(,\d{2,3})*,\d{3}(\.\d+)?$`)
	decimalComma   = regexp.MustCompile(`^\d+,\d{1,2}$`)
	groupedDot     = regexp.MustCompile(`^\d{1,3}(\.\d{3})+(,\d+)?$`)
	twoDecimals    = regexp.MustCompile(`[.,]\d{2}$`)
	amountInLine   = regexp.MustCompile(`(?i)\(?[-+]?\s?(?:[$£€₹¥]|(?:USD|GBP|EUR|INR|CAD|AUD)\s?|Rs\.?\s?)?-?(?:\d{1,3}(?:,\d{2,3})+|\d+)(?:\.\d{1,2})?\)?(?:\s?(?:CR|DR)\b)?-?`)
	trailingMarker = regexp.MustCompile(`(?i)\s*(CR|DR)$`)
)

// ParseAmount parses a monetary string. It accepts currency symbols and ISO
// codes, thousands separators, decimal commas, leading or trailing minus,
// parentheses for negatives and CR/DR suffixes.
func ParseAmount(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Amount{}, ErrInvalidAmount
	}

	var a Amount
	negative := false
	text := raw

	if m := trailingMarker.FindStringSubmatch(text); m != nil {
		a.ExplicitSign = true
		if strings.EqualFold(m[1], "DR") {
			negative = true
		}
		text = strings.TrimSpace(text[:len(text)-len(m[0])])
	}

	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		negative = true
		a.ExplicitSign = true
		text = strings.TrimSpace(text[1 : len(text)-1])
	}

	for {
		switch {
		case strings.HasPrefix(text, "-"):
			negative = !negative
			a.ExplicitSign = true
			text = strings.TrimSpace(text[1:])
			continue
		case strings.HasSuffix(text, "-"):
			negative = !negative
			a.ExplicitSign = true
			text = strings.TrimSpace(text[:len(text)-1])
			continue
		case strings.HasPrefix(text, "+"):
			a.ExplicitSign = true
			text = strings.TrimSpace(text[1:])
			continue
		}

		stripped, cur := stripCurrency(text)
		if cur == "" {
			break
		}
		a.Currency = cur
		text = stripped
	}

	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, "'", "")
	if text == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	normalized, grouped := normalizeSeparators(text)
	if !plainNumber.MatchString(normalized) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		value = value.Neg()
	}

	a.Value = value
	a.CurrencyFormatted = a.Currency != "" || grouped || twoDecimals.MatchString(text)
	return a, nil
}

// FindAmounts returns every money-looking token in line whose span does not
// overlap any of the excluded spans. Bare integers are skipped because they
// are usually references or card numbers.
func FindAmounts(line string, exclude ...[2]int) []AmountMatch {
	var out []AmountMatch
	for _, loc := range amountInLine.FindAllStringIndex(line, -1) {
		start, end := loc[0], loc[1]
		for start < end && line[start] == ' ' {
			start++
		}
		for end > start && line[end-1] == ' ' {
			end--
		}
		token := line[start:end]
		if token == "" {
			continue
		}
		if !boundaryOK(line, start, end) || overlaps(start, end, exclude) {
			continue
		}

		// An unmatched parenthesis belongs to the surrounding text.
		if strings.HasPrefix(token, "(") != strings.HasSuffix(token, ")") {
			token = strings.Trim(token, "()")
		}

		amt, err := ParseAmount(token)
		if err != nil {
			continue
		}
		if amt.Currency == "" && !strings.ContainsAny(token, ".,") {
			continue
		}
		out = append(out, AmountMatch{Amount: amt, Text: token, Start: start, End: end})
	}
	return out
}

// LargestAmount returns the match with the greatest magnitude.
func LargestAmount(matches []AmountMatch) (AmountMatch, bool) {
	if len(matches) == 0 {
		return AmountMatch{}, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Amount.Value.Abs().GreaterThan(best.Amount.Value.Abs()) {
			best = m
		}
	}
	return best, true
}

func stripCurrency(text string) (string, string) {
	for sym, code := range currencySymbols {
		if strings.HasPrefix(text, sym) {
			return strings.TrimSpace(strings.TrimPrefix(text, sym)), code
		}
		if strings.HasSuffix(text, sym) {
			return strings.TrimSpace(strings.TrimSuffix(text, sym)), code
		}
	}
	upper := strings.ToUpper(text)
	for _, code := range currencyCodes {
		if strings.HasPrefix(upper, code) {
			return strings.TrimSpace(text[len(code):]), currencyCode(code)
		}
		if strings.HasSuffix(upper, code) && len(text) > len(code) && !unicode.IsLetter(rune(upper[len(upper)-len(code)-1])) {
			return strings.TrimSpace(text[:len(text)-len(code)]), currencyCode(code)
		}
	}
	return text, ""
}

func currencyCode(code string) string {
	if strings.HasPrefix(code, "RS") {
		return "INR"
	}
	return code
}

// normalizeSeparators rewrites a numeric string to use '.' as the decimal
// point and no grouping. It reports whether grouping separators were present.
func normalizeSeparators(text string) (string, bool) {
	switch {
	case groupedComma.MatchString(text):
		return strings.ReplaceAll(text, ",", ""), true
	case decimalComma.MatchString(text):
		return strings.Replace(text, ",", ".", 1), false
	case groupedDot.MatchString(text) && strings.Contains(text, ","):
		return strings.Replace(strings.ReplaceAll(text, ".", ""), ",", ".", 1), true
	case strings.Count(text, ".") > 1 && groupedDot.MatchString(text):
		return strings.ReplaceAll(text, ".", ""), true
	}
	return text, false
}

func boundaryOK(line string, start, end int) bool {
	if start > 0 {
		prev := rune(line[start-1])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) || prev == '/' || prev == '.' || prev == '-' && start > 1 && unicode.IsDigit(rune(line[start-2])) {
			return false
		}
	}
	if end < len(line) {
		next := rune(line[end])
		if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '/' || next == '%' {
			return false
		}
	}
	return true
}

func overlaps(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}
