package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"xinfadi_prices/internal/prices"

	"github.com/jszwec/csvutil"
	"github.com/rs/zerolog/log"
)

// utf8BOM lets spreadsheet apps detect the encoding of the Chinese headers.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type csvRow struct {
	Category    string `csv:"一级分类"`
	SubCategory string `csv:"二级分类"`
	Name        string `csv:"品名"`
	LowPrice    string `csv:"最低价"`
	AvgPrice    string `csv:"平均价"`
	HighPrice   string `csv:"最高价"`
	Spec        string `csv:"规格"`
	Origin      string `csv:"产地"`
	Unit        string `csv:"单位"`
	PubDate     string `csv:"发布日期"`
}

func toCSVRow(r prices.Row) csvRow {
	return csvRow{
		Category:    r.Category,
		SubCategory: r.SubCategory,
		Name:        r.Name,
		LowPrice:    prices.FormatPrice(r.LowPrice),
		AvgPrice:    prices.FormatPrice(r.AvgPrice),
		HighPrice:   prices.FormatPrice(r.HighPrice),
		Spec:        r.Spec,
		Origin:      r.Origin,
		Unit:        r.Unit,
		PubDate:     r.PubDate,
	}
}

func (c csvRow) toRow() prices.Row {
	return prices.Row{
		Category:    c.Category,
		SubCategory: c.SubCategory,
		Name:        c.Name,
		LowPrice:    prices.ParsePrice(c.LowPrice),
		AvgPrice:    prices.ParsePrice(c.AvgPrice),
		HighPrice:   prices.ParsePrice(c.HighPrice),
		Spec:        c.Spec,
		Origin:      c.Origin,
		Unit:        c.Unit,
		PubDate:     c.PubDate,
	}
}

// EncodeCSV writes table as BOM-prefixed UTF-8 CSV with the Chinese column
// headers. Null prices are empty cells.
func EncodeCSV(w io.Writer, table prices.Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if len(table) == 0 {
		if err := enc.EncodeHeader(csvRow{}); err != nil {
			return fmt.Errorf("failed to encode CSV header: %w", err)
		}
	} else {
		rows := make([]csvRow, len(table))
		for i, r := range table {
			rows[i] = toCSVRow(r)
		}
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("failed to encode CSV: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSV saves table to path, replacing any existing file.
func WriteCSV(path string, table prices.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}

	if err := EncodeCSV(file, table); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close CSV file: %w", err)
	}

	log.Info().Str("path", path).Int("rows", len(table)).Msg("CSV saved")
	return nil
}

// DecodeCSV reads a table previously written by EncodeCSV. A leading BOM is
// optional.
func DecodeCSV(r io.Reader) (prices.Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	decoder, err := csvutil.NewDecoder(csv.NewReader(br))
	if err != nil {
		if err == io.EOF {
			return prices.Table{}, nil
		}
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}

	var rows []csvRow
	if err := decoder.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode CSV: %w", err)
	}

	table := make(prices.Table, len(rows))
	for i, row := range rows {
		table[i] = row.toRow()
	}
	return table, nil
}

// ReadCSV loads a table from a CSV file on disk.
func ReadCSV(path string) (prices.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return DecodeCSV(file)
}
