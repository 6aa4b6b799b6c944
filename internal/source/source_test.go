package source

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeExtractor struct {
	err   error
	pages []string
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ []byte, _ string) ([]string, error) {
	return f.pages, f.err
}

func doc(ft model.FileType, content string) model.Document {
	return model.Document{ID: "doc-1", OwnerID: "owner", FileType: ft, Content: []byte(content)}
}

func TestLoadPreconditions(t *testing.T) {
	loader := NewLoader()

	tests := []struct {
		name    string
		doc     model.Document
		wantErr error
	}{
		{
			name:    "unsupported type",
			doc:     doc(model.FileType("docx"), "hello"),
			wantErr: common.ErrUnsupportedFileType,
		},
		{
			name:    "missing content",
			doc:     model.Document{ID: "doc-1", FileType: model.FileTypeText},
			wantErr: common.ErrContentUnavailable,
		},
		{
			name:    "blank content",
			doc:     doc(model.FileTypeText, "  \n\t \n"),
			wantErr: common.ErrEmptyDocument,
		},
		{
			name:    "invalid utf8 text",
			doc:     model.Document{ID: "doc-1", FileType: model.FileTypeText, Content: []byte{0xff, 0xfe, 0xfd}},
			wantErr: common.ErrContentUnavailable,
		},
		{
			name:    "json without records",
			doc:     doc(model.FileTypeJSON, `{"name": "statement"}`),
			wantErr: common.ErrContentUnavailable,
		},
		{
			name:    "broken spreadsheet",
			doc:     doc(model.FileTypeSpreadsheet, "definitely not a workbook"),
			wantErr: common.ErrContentUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := loader.Load(context.Background(), tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, content)
		})
	}
}

func TestLoadPDFPasswordErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "password required", err: common.ErrPasswordRequired, wantErr: common.ErrPasswordRequired},
		{name: "invalid password", err: common.ErrInvalidPassword, wantErr: common.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader(WithTextExtractor(&fakeExtractor{err: tt.err}))
			_, err := loader.Load(context.Background(), doc(model.FileTypePDF, "%PDF-1.7"))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadPDFJoinsPages(t *testing.T) {
	loader := NewLoader(WithTextExtractor(&fakeExtractor{pages: []string{"page one", "page two"}}))

	content, err := loader.Load(context.Background(), doc(model.FileTypePDF, "%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "page one\npage two", content.Text)
	assert.Len(t, content.Pages, 2)
	assert.False(t, content.HasTable())
}

func TestLoadPDFWithNoTextIsEmpty(t *testing.T) {
	loader := NewLoader(WithTextExtractor(&fakeExtractor{pages: []string{"", "  "}}))

	_, err := loader.Load(context.Background(), doc(model.FileTypePDF, "%PDF-1.7"))
	assert.ErrorIs(t, err, common.ErrEmptyDocument)
}

func TestClassifyPDFError(t *testing.T) {
	assert.ErrorIs(t, classifyPDFError(pdf.ErrInvalidPassword, ""), common.ErrPasswordRequired)
	assert.ErrorIs(t, classifyPDFError(pdf.ErrInvalidPassword, "secret"), common.ErrInvalidPassword)
	assert.ErrorIs(t, classifyPDFError(errors.New("malformed xref"), ""), common.ErrContentUnavailable)
}

func TestLoadText(t *testing.T) {
	content, err := NewLoader().Load(context.Background(), doc(model.FileTypeText, "\ufeff01/15/2024 STARBUCKS 4.50\n"))
	require.NoError(t, err)
	assert.Equal(t, "01/15/2024 STARBUCKS 4.50\n", content.Text)
	assert.False(t, content.HasTable())
}

func TestLoadDelimited(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantHeaders []string
		wantRows    int
		firstCell   string
	}{
		{
			name:        "comma with header",
			input:       "Date,Amount,Description\n2024-01-15,-4.50,STARBUCKS\n2024-01-16,2500.00,PAYROLL\n",
			wantHeaders: []string{"Date", "Amount", "Description"},
			wantRows:    2,
			firstCell:   "2024-01-15",
		},
		{
			name:        "semicolon with preamble",
			input:       "Statement for J Smith\n\nDatum;Betrag;Beschreibung\n15.01.2024;-4,50;Kaffee\n",
			wantHeaders: []string{"Datum", "Betrag", "Beschreibung"},
			wantRows:    1,
			firstCell:   "15.01.2024",
		},
		{
			name:        "tab separated",
			input:       "Date\tDescription\tDebit\tCredit\n01/02/2024\tRENT\t1200.00\t\n",
			wantHeaders: []string{"Date", "Description", "Debit", "Credit"},
			wantRows:    1,
			firstCell:   "01/02/2024",
		},
		{
			name:        "headerless",
			input:       "01/15/2024,-4.50,STARBUCKS\n01/16/2024,-12.00,CHIPOTLE\n",
			wantHeaders: []string{"column_1", "column_2", "column_3"},
			wantRows:    2,
			firstCell:   "01/15/2024",
		},
		{
			name:        "quoted fields with commas",
			input:       "Date,Description,Amount\n2024-01-15,\"COFFEE, INC\",\"1,204.50\"\n",
			wantHeaders: []string{"Date", "Description", "Amount"},
			wantRows:    1,
			firstCell:   "2024-01-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := NewLoader().Load(context.Background(), doc(model.FileTypeCSV, tt.input))
			require.NoError(t, err)
			require.True(t, content.HasTable())
			assert.Equal(t, tt.wantHeaders, content.Table.Headers)
			assert.Len(t, content.Table.Rows, tt.wantRows)
			assert.Equal(t, tt.firstCell, content.Table.Cell(0, 0))
			assert.NotEmpty(t, content.Text)
		})
	}
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ';', sniffDelimiter([]byte("a;b;c\n1;2;3\n")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\n1\t2\n")))
	assert.Equal(t, '|', sniffDelimiter([]byte("a|b|c\n1|2|3\n")))
	assert.Equal(t, ',', sniffDelimiter([]byte("a,\"b;c\",d\n1,\"2;3\",4\n")))
}

func TestLoadSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Date", "Amount", "Description"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2024-01-15", "-4.50", "STARBUCKS"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"2024-01-16", "2500.00", "PAYROLL"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	content, err := NewLoader().Load(context.Background(), model.Document{
		ID: "doc-1", FileType: model.FileTypeSpreadsheet, Content: buf.Bytes(),
	})
	require.NoError(t, err)
	require.True(t, content.HasTable())
	assert.Equal(t, []string{"Date", "Amount", "Description"}, content.Table.Headers)
	assert.Len(t, content.Table.Rows, 2)
	assert.Equal(t, "PAYROLL", content.Table.Cell(1, 2))
}

func TestLoadJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		rows  int
	}{
		{
			name:  "array",
			input: `[{"date": "2024-01-15", "amount": -4.5, "description": "STARBUCKS"}]`,
			rows:  1,
		},
		{
			name:  "transactions key",
			input: `{"account": "x", "transactions": [{"date": "2024-01-15", "amount": 1}, {"date": "2024-01-16", "amount": 2}]}`,
			rows:  2,
		},
		{
			name:  "single array field",
			input: `{"entries": [{"date": "2024-01-15", "amount": 1}]}`,
			rows:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := NewLoader().Load(context.Background(), doc(model.FileTypeJSON, tt.input))
			require.NoError(t, err)
			require.True(t, content.HasTable())
			assert.Len(t, content.Table.Rows, tt.rows)
			assert.Contains(t, content.Table.Headers, "amount")
			assert.Contains(t, content.Table.Headers, "date")
		})
	}
}

func TestLoadJSONKeepsNumberText(t *testing.T) {
	content, err := NewLoader().Load(context.Background(), doc(model.FileTypeJSON, `[{"amount": 1204.50, "date": "2024-01-15"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "date"}, content.Table.Headers)
	assert.Equal(t, "1204.50", content.Table.Cell(0, 0))
}

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>Info
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>POS PURCHASE STARBUCKS STORE
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestLoadOFX(t *testing.T) {
	content, err := NewLoader().Load(context.Background(), doc(model.FileTypeOFX, "\n\n"+sampleOFX))
	require.NoError(t, err)
	require.True(t, content.HasTable())

	assert.Equal(t, ofxHeaders, content.Table.Headers)
	require.Len(t, content.Table.Rows, 2)

	first := content.Table.Rows[0]
	assert.Equal(t, "2024-01-15", first[0])
	assert.Equal(t, "-25.50", first[1])
	assert.Equal(t, "STARBUCKS STORE", first[2])
	assert.Equal(t, "2024011501", first[3])
	assert.Equal(t, "1234567890", first[5])

	assert.Equal(t, "CHECK 1234", content.Table.Rows[1][3])
}

func TestLoadOFXInvalid(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), doc(model.FileTypeOFX, "not valid OFX"))
	assert.ErrorIs(t, err, common.ErrContentUnavailable)
}

func TestPreprocessOFX(t *testing.T) {
	out := preprocessOFX("\n  <SEVERITY>Warn</SEVERITY>\n<BANKTRANLIST\n")
	assert.True(t, strings.HasPrefix(out, "<SEVERITY>WARN</SEVERITY>"))
	assert.Contains(t, out, "<BANKTRANLIST>")
}

func TestRenderTable(t *testing.T) {
	table := buildTable([][]string{{"Date", "Amount"}, {"2024-01-15", "4.50"}, {"", ""}})
	assert.Equal(t, "Date  Amount\n2024-01-15  4.50\n", renderTable(table))
}
