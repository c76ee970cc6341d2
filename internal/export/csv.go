// Package export writes execution results to files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"sqlpilot/internal/db"
)

// WriteCSV writes rows to path, one header line followed by the records in
// the result's column order.
func WriteCSV(path string, rows *db.Rows) error {
	if rows == nil {
		return fmt.Errorf("export: no rows to write")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(rows.Columns); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	record := make([]string, len(rows.Columns))
	for _, row := range rows.Records {
		for i, col := range rows.Columns {
			v := row[col]
			if v == nil {
				record[i] = ""
			} else {
				record[i] = fmt.Sprint(v)
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
