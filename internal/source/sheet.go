package source

import (
	"bytes"
	"fmt"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// loadSpreadsheet reads the first sheet with excelize, falling back to the
// legacy xls reader for BIFF workbooks.
func loadSpreadsheet(raw []byte) (*Content, error) {
	rows, xlsxErr := readXLSX(raw)
	if xlsxErr != nil {
		var xlsErr error
		rows, xlsErr = readXLS(raw)
		if xlsErr != nil {
			return nil, fmt.Errorf("%w: not a readable xlsx (%v) or xls (%v) workbook",
				common.ErrContentUnavailable, xlsxErr, xlsErr)
		}
	}

	table := buildTable(rows)
	return &Content{Table: table, Text: renderTable(table)}, nil
}

func readXLSX(raw []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheet)
}

func readXLS(raw []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xls reader crashed: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(raw), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
