// Package source turns a document's raw bytes into text and, for tabular
// formats, an ordered table with header names.
package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/tabular"
)

// Content is what strategies read.
type Content struct {
	Table    *tabular.Table // Nil for text-only formats
	Text     string
	Pages    []string
	Warnings []string
}

// HasTable reports whether the content carries rows.
func (c *Content) HasTable() bool {
	return c != nil && c.Table != nil && len(c.Table.Rows) > 0
}

// TextExtractor pulls text out of PDF-like bytes.
type TextExtractor interface {
	ExtractText(ctx context.Context, raw []byte, password string) ([]string, error)
}

// Loader reads documents of every supported file type.
type Loader struct {
	pdf    TextExtractor
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithTextExtractor replaces the PDF text extractor.
func WithTextExtractor(e TextExtractor) Option {
	return func(l *Loader) { l.pdf = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader using the built-in PDF extractor.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{pdf: NewPDFExtractor()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = common.LoggerOrDefault(l.logger)
	return l
}

// Load reads doc. Every error it returns is a precondition failure:
// ErrUnsupportedFileType, ErrEmptyDocument, ErrContentUnavailable or one of
// the password errors.
func (l *Loader) Load(ctx context.Context, doc model.Document) (*Content, error) {
	if !doc.FileType.IsValid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedFileType, doc.FileType)
	}
	if doc.Content == nil {
		return nil, common.ErrContentUnavailable
	}
	if len(bytes.TrimSpace(doc.Content)) == 0 {
		return nil, common.ErrEmptyDocument
	}

	var (
		content *Content
		err     error
	)
	switch doc.FileType {
	case model.FileTypePDF:
		content, err = l.loadPDF(ctx, doc)
	case model.FileTypeText:
		content, err = loadText(doc.Content)
	case model.FileTypeCSV:
		content, err = loadDelimited(doc.Content)
	case model.FileTypeSpreadsheet:
		content, err = loadSpreadsheet(doc.Content)
	case model.FileTypeJSON:
		content, err = loadJSON(doc.Content)
	case model.FileTypeOFX:
		content, err = loadOFX(ctx, doc.Content)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(content.Text) == "" && !content.HasTable() {
		return nil, common.ErrEmptyDocument
	}

	l.logger.Debug("Loaded document content",
		"document_id", doc.ID,
		"file_type", doc.FileType,
		"chars", len(content.Text),
		"has_table", content.HasTable())
	return content, nil
}

func (l *Loader) loadPDF(ctx context.Context, doc model.Document) (*Content, error) {
	pages, err := l.pdf.ExtractText(ctx, doc.Content, doc.Password)
	if err != nil {
		return nil, err
	}
	return &Content{Text: strings.Join(pages, "\n"), Pages: pages}, nil
}

func loadText(raw []byte) (*Content, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", common.ErrContentUnavailable)
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")
	return &Content{Text: text, Pages: []string{text}}, nil
}

// Tables with more than this many leading non-data rows are treated as
// headerless.
const headerSearchRows = 20

// buildTable finds the header row, skipping account preambles, and returns
// the remaining rows as data. Headerless tables get synthetic column names.
func buildTable(rows [][]string) *tabular.Table {
	var kept [][]string
	for _, r := range rows {
		if !emptyRow(r) {
			kept = append(kept, trimRow(r))
		}
	}
	if len(kept) == 0 {
		return &tabular.Table{}
	}

	headerIdx := -1
	for i := 0; i < len(kept) && i < headerSearchRows; i++ {
		if looksLikeData(kept[i]) {
			break
		}
		if nonEmptyCells(kept[i]) >= 2 && allText(kept[i]) {
			headerIdx = i
			break
		}
	}

	if headerIdx < 0 {
		start := 0
		for start < len(kept) && !looksLikeData(kept[start]) {
			start++
		}
		if start == len(kept) {
			start = 0
		}
		data := kept[start:]
		width := 0
		for _, r := range data {
			width = max(width, len(r))
		}
		headers := make([]string, width)
		for i := range headers {
			headers[i] = tabular.ColumnName(i)
		}
		return &tabular.Table{Headers: headers, Rows: data}
	}

	return &tabular.Table{Headers: kept[headerIdx], Rows: kept[headerIdx+1:]}
}

// renderTable writes the table as whitespace-separated lines so text
// strategies can read tabular documents too.
func renderTable(t *tabular.Table) string {
	var b strings.Builder
	if len(t.Headers) > 0 {
		b.WriteString(strings.Join(t.Headers, "  "))
		b.WriteByte('\n')
	}
	for _, r := range t.Rows {
		b.WriteString(strings.Join(r, "  "))
		b.WriteByte('\n')
	}
	return b.String()
}

func looksLikeData(row []string) bool {
	hasDate, hasAmount := false, false
	for _, c := range row {
		if c == "" {
			continue
		}
		if _, err := fields.ParseDate(c); err == nil {
			hasDate = true
		} else if _, err := fields.ParseAmount(c); err == nil {
			hasAmount = true
		}
	}
	return hasDate && hasAmount
}

func allText(row []string) bool {
	for _, c := range row {
		if c == "" {
			continue
		}
		if _, err := fields.ParseAmount(c); err == nil {
			return false
		}
		if _, err := fields.ParseDate(c); err == nil {
			return false
		}
	}
	return true
}

func nonEmptyCells(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func emptyRow(row []string) bool {
	return nonEmptyCells(row) == 0
}

func trimRow(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
