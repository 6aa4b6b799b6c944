package fields

import (
	"regexp"
	"sort"
	"strings"
)

// Bank-added prefixes that carry no merchant information.
var descriptionPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"ACH CREDIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
	"CARD PAYMENT TO ",
	"POS ",
}

var (
	leadingShortDate = regexp.MustCompile(`^\d{1,2}/\d{1,2}\s+`)
	cardMask         = regexp.MustCompile(`(?i)\b(?:card\s*)?(?:x{2,}|\*{2,})\d{2,4}\b`)
	trailingRef      = regexp.MustCompile(`(?i)\s+(?:ref|id|conf)[#:]?\s*[a-z0-9]{6,}$`)
	spaces           = regexp.MustCompile(`\s+`)
	edgePunct        = " \t-–—|:;,*#"
)

// Terms that mean the description itself is useless as a merchant.
var genericDescriptions = map[string]bool{
	"DEBIT":           true,
	"CREDIT":          true,
	"PURCHASE":        true,
	"PAYMENT":         true,
	"POS TRANSACTION": true,
	"CARD PURCHASE":   true,
}

// CleanDescription trims bank prefixes, leading short dates, card masks and
// stray punctuation, and collapses whitespace.
func CleanDescription(s string) string {
	name := strings.TrimSpace(spaces.ReplaceAllString(s, " "))

	upper := strings.ToUpper(name)
	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(upper, prefix) && len(name) > len(prefix) {
			name = name[len(prefix):]
			break
		}
	}

	name = leadingShortDate.ReplaceAllString(name, "")
	name = cardMask.ReplaceAllString(name, "")
	name = spaces.ReplaceAllString(name, " ")
	return strings.Trim(name, edgePunct)
}

// MerchantFromDescription derives a merchant name: the cleaned description
// without trailing reference numbers. It returns "" for generic descriptions.
func MerchantFromDescription(s string) string {
	name := trailingRef.ReplaceAllString(CleanDescription(s), "")
	name = strings.Trim(name, edgePunct)
	if IsGenericDescription(name) {
		return ""
	}
	return name
}

// IsGenericDescription reports whether a description carries no merchant.
func IsGenericDescription(name string) bool {
	return genericDescriptions[strings.ToUpper(strings.TrimSpace(name))]
}

// RemoveSpans deletes the given byte spans from line and returns the
// remainder with whitespace collapsed.
func RemoveSpans(line string, spans ...[2]int) string {
	sorted := append([][2]int(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })

	var b strings.Builder
	pos := 0
	for _, s := range sorted {
		if s[0] < pos {
			s[0] = pos
		}
		if s[0] >= s[1] || s[0] > len(line) {
			continue
		}
		b.WriteString(line[pos:s[0]])
		b.WriteByte(' ')
		pos = min(s[1], len(line))
	}
	b.WriteString(line[pos:])
	return strings.Trim(spaces.ReplaceAllString(b.String(), " "), edgePunct)
}
