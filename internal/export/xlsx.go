package export

import (
	"fmt"

	"xinfadi_prices/internal/prices"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// WriteXLSX saves table as a single-sheet workbook. Prices are numeric
// cells; null prices are left blank.
func WriteXLSX(path string, table prices.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(prices.Columns))
	for i, name := range prices.Columns {
		header[i] = name
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range table {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		cells := row.Cells()
		if err := f.SetSheetRow(xlsxSheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	log.Info().Str("path", path).Int("rows", len(table)).Msg("Excel saved")
	return nil
}

// ReadXLSX loads the first sheet of a workbook written by WriteXLSX.
func ReadXLSX(path string) (prices.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) <= 1 {
		return prices.Table{}, nil
	}

	table := make(prices.Table, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		get := func(i int) string {
			if i < len(cells) {
				return cells[i]
			}
			return ""
		}
		table = append(table, csvRow{
			Category:    get(0),
			SubCategory: get(1),
			Name:        get(2),
			LowPrice:    get(3),
			AvgPrice:    get(4),
			HighPrice:   get(5),
			Spec:        get(6),
			Origin:      get(7),
			Unit:        get(8),
			PubDate:     get(9),
		}.toRow())
	}
	return table, nil
}
