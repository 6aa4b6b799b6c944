// Package normalize cleans raw statement text before any strategy reads it.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	cidToken      = regexp.MustCompile(`\(cid:\d+\)`)
	pageFooter    = regexp.MustCompile(`(?i)^\s*page\s+\d+\s*(of|/)\s*\d+\s*$`)
	horizontalRun = regexp.MustCompile(`[ \t]+`)
)

// Leading glyphs PDF renderers emit for list items.
var bullets = []string{"•", "◦", "▪", "●", "►", "·", "‣", "∙"}

// Clean removes noise characters, normalizes line endings and whitespace,
// strips bullet glyphs and drops common rendering artifacts.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = cidToken.ReplaceAllString(text, "")
	text = strings.Map(cleanRune, text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = cleanLine(line)
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}

	return strings.Trim(strings.Join(out, "\n"), "\n")
}

// Lines returns the non-empty lines of cleaned text.
func Lines(text string) []string {
	raw := strings.Split(Clean(text), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Excerpt returns at most n runes of cleaned text.
func Excerpt(text string, n int) string {
	clean := Clean(text)
	r := []rune(clean)
	if n <= 0 || len(r) <= n {
		return clean
	}
	return string(r[:n])
}

func cleanLine(line string) string {
	line = horizontalRun.ReplaceAllString(line, " ")
	line = strings.TrimSpace(line)
	for _, b := range bullets {
		if strings.HasPrefix(line, b) {
			line = strings.TrimSpace(strings.TrimPrefix(line, b))
			break
		}
	}
	if pageFooter.MatchString(line) {
		return ""
	}
	return line
}

func cleanRune(r rune) rune {
	switch r {
	case '\n', '\t':
		return r
	case '\u00a0', '\u2007', '\u202f', '\u2009', '\u200a', '\u3000':
		return ' '
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff', '\u00ad', '\ufffd':
		return -1
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}
