package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts page text with ledongthuc/pdf.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF text extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText returns the plain text of every page. Encrypted documents
// without a password fail with ErrPasswordRequired; a wrong password fails
// with ErrInvalidPassword.
func (e *PDFExtractor) ExtractText(ctx context.Context, raw []byte, password string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: PDF library crashed: %v", common.ErrContentUnavailable, r)
		}
	}()

	reader, err := openPDF(raw, password)
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: PDF has no pages", common.ErrContentUnavailable)
	}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", common.ErrContentUnavailable, i, err)
		}
		pages = append(pages, text)
	}

	if totalLen(pages) == 0 {
		return nil, fmt.Errorf("%w: no extractable text, the PDF may be scanned", common.ErrContentUnavailable)
	}
	return pages, nil
}

func openPDF(raw []byte, password string) (*pdf.Reader, error) {
	r := bytes.NewReader(raw)
	tried := false
	reader, err := pdf.NewReaderEncrypted(r, int64(len(raw)), func() string {
		if tried {
			return ""
		}
		tried = true
		return password
	})
	if err != nil {
		return nil, classifyPDFError(err, password)
	}
	return reader, nil
}

// classifyPDFError maps library errors onto the pipeline's error taxonomy.
func classifyPDFError(err error, password string) error {
	if errors.Is(err, pdf.ErrInvalidPassword) || strings.Contains(strings.ToLower(err.Error()), "password") {
		if password == "" {
			return common.ErrPasswordRequired
		}
		return common.ErrInvalidPassword
	}
	return fmt.Errorf("%w: %v", common.ErrContentUnavailable, err)
}

// pageText rebuilds lines from positioned text runs, falling back to the
// library's plain text rendering.
func pageText(page pdf.Page) (string, error) {
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		var b strings.Builder
		for _, row := range rows {
			var line strings.Builder
			for i, word := range row.Content {
				if i > 0 {
					line.WriteByte(' ')
				}
				line.WriteString(word.S)
			}
			b.WriteString(strings.TrimSpace(line.String()))
			b.WriteByte('\n')
		}
		return b.String(), nil
	}
	return page.GetPlainText(nil)
}

func totalLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
