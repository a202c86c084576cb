package report

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// WriteCSV streams the export table as CSV, header row first, preserving
// column order.
func WriteCSV(table Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return errors.Wrap(err, "export.csv.header")
	}
	for _, row := range table.Rows {
		record := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "export.csv.row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "export.csv.flush")
}

const xlsxSheet = "Responses"

// WriteXLSX writes the export table as a single-sheet spreadsheet.
func WriteXLSX(table Table, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", xlsxSheet)

	if err := writeXLSXRow(f, 1, table.Columns); err != nil {
		return err
	}
	for i, row := range table.Rows {
		record := make([]string, len(table.Columns))
		for j, col := range table.Columns {
			record[j] = row[col]
		}
		if err := writeXLSXRow(f, i+2, record); err != nil {
			return err
		}
	}

	return errors.Wrap(f.Write(w), "export.xlsx.write")
}

func writeXLSXRow(f *excelize.File, rowNum int, values []string) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return errors.Wrap(err, "export.xlsx.cell")
		}
		if err := f.SetCellValue(xlsxSheet, cell, value); err != nil {
			return errors.Wrap(err, "export.xlsx.set")
		}
	}
	return nil
}
