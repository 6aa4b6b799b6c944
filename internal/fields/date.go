// Package fields holds the date, amount and description extractors shared by
// every parsing strategy.
package fields

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateOrder resolves ambiguous numeric dates such as 03/04/2024.
type DateOrder string

// Date orders.
const (
	OrderAuto DateOrder = ""
	OrderMDY  DateOrder = "mdy"
	OrderDMY  DateOrder = "dmy"
)

// ErrInvalidDate is returned when no supported layout matches.
var ErrInvalidDate = errors.New("invalid date")

// DateMatch is a date located inside a line.
type DateMatch struct {
	Value    time.Time
	Text     string
	Start    int
	End      int
	FullYear bool // The token carried a 4-digit year
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

var (
	isoDate     = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)
	numericDate = regexp.MustCompile(`\b(\d{1,2})([/\-.])(\d{1,2})[/\-.](\d{4}|\d{2})\b`)
	dayMonDate  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[ \-]([a-z]{3,9})\.?[ \-,]+(\d{4}|\d{2})\b`)
	monDayDate  = regexp.MustCompile(`(?i)\b([a-z]{3,9})\.? (\d{1,2})(?:st|nd|rd|th)?,? (\d{4})\b`)
)

// ParseDate parses a standalone date string using OrderAuto.
func ParseDate(s string) (time.Time, error) {
	return ParseDateOrder(s, OrderAuto)
}

// ParseDateOrder parses a standalone date string, using order to resolve
// ambiguous day/month positions.
func ParseDateOrder(s string, order DateOrder) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if m, ok := FindDateOrder(s, order); ok && m.Start == 0 && strings.TrimSpace(s[m.End:]) == "" {
		return m.Value, nil
	}
	// Spreadsheet cells sometimes carry a time component.
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "01/02/2006 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FindDate locates the first date token in line using OrderAuto.
func FindDate(line string) (DateMatch, bool) {
	return FindDateOrder(line, OrderAuto)
}

// FindDateOrder locates the leftmost valid date token in line.
func FindDateOrder(line string, order DateOrder) (DateMatch, bool) {
	var best DateMatch
	found := false

	consider := func(m DateMatch) {
		if !found || m.Start < best.Start {
			best = m
			found = true
		}
	}

	for _, loc := range isoDate.FindAllStringSubmatchIndex(line, -1) {
		y, mo, d := atoi(line, loc, 1), atoi(line, loc, 2), atoi(line, loc, 3)
		if t, ok := makeDate(y, mo, d); ok {
			consider(DateMatch{Value: t, Text: line[loc[0]:loc[1]], Start: loc[0], End: loc[1], FullYear: true})
			break
		}
	}

	for _, loc := range numericDate.FindAllStringSubmatchIndex(line, -1) {
		a, b := atoi(line, loc, 1), atoi(line, loc, 3)
		sep := line[loc[4]:loc[5]]
		yearText := line[loc[8]:loc[9]]
		y := expandYear(atoi(line, loc, 4))
		mo, d := resolveOrder(a, b, sep, order)
		t, ok := makeDate(y, mo, d)
		if !ok {
			// Retry with the other ordering before giving up.
			t, ok = makeDate(y, d, mo)
		}
		if ok {
			consider(DateMatch{Value: t, Text: line[loc[0]:loc[1]], Start: loc[0], End: loc[1], FullYear: len(yearText) == 4})
			break
		}
	}

	for _, loc := range dayMonDate.FindAllStringSubmatchIndex(line, -1) {
		mo, ok := monthFromName(line[loc[4]:loc[5]])
		if !ok {
			continue
		}
		yearText := line[loc[6]:loc[7]]
		if t, ok := makeDate(expandYear(atoi(line, loc, 3)), int(mo), atoi(line, loc, 1)); ok {
			consider(DateMatch{Value: t, Text: line[loc[0]:loc[1]], Start: loc[0], End: loc[1], FullYear: len(yearText) == 4})
			break
		}
	}

	for _, loc := range monDayDate.FindAllStringSubmatchIndex(line, -1) {
		mo, ok := monthFromName(line[loc[2]:loc[3]])
		if !ok {
			continue
		}
		if t, ok := makeDate(atoi(line, loc, 3), int(mo), atoi(line, loc, 2)); ok {
			consider(DateMatch{Value: t, Text: line[loc[0]:loc[1]], Start: loc[0], End: loc[1], FullYear: true})
			break
		}
	}

	return best, found
}

// resolveOrder returns (month, day) for a numeric date a<sep>b<sep>year.
func resolveOrder(a, b int, sep string, order DateOrder) (int, int) {
	switch {
	case a > 12:
		return b, a
	case b > 12:
		return a, b
	}
	switch order {
	case OrderDMY:
		return b, a
	case OrderMDY:
		return a, b
	}
	if sep == "/" {
		return a, b
	}
	return b, a
}

func monthFromName(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	if m, ok := months[name]; ok {
		return m, true
	}
	if len(name) > 3 {
		if m, ok := months[name[:3]]; ok && strings.HasPrefix(strings.ToLower(m.String()), name) {
			return m, true
		}
	}
	return 0, false
}

func expandYear(y int) int {
	if y < 100 {
		return 2000 + y
	}
	return y
}

func makeDate(y, m, d int) (time.Time, bool) {
	if y < 1900 || y > 2200 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string, loc []int, group int) int {
	n, err := strconv.Atoi(s[loc[2*group]:loc[2*group+1]])
	if err != nil {
		return -1
	}
	return n
}
