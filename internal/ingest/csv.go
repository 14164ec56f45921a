package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ReadCSV reads source rows from CSV data. The first record is the header;
// contentColumn names the column holding document text, and metadataColumns
// name columns copied onto each row's metadata. Metadata columns missing
// from the header are ignored, empty cell values are omitted.
//
// Row IDs are row_<n> with n the zero-based data row index, matching the
// row_id metadata value. Rows with blank content are returned as-is; the
// pipeline counts them as skipped.
func ReadCSV(r io.Reader, contentColumn string, metadataColumns []string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows, cells map by header position

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("csv is empty")
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	contentIdx := -1
	metaIdx := make(map[string]int)
	for i, name := range header {
		if name == contentColumn {
			contentIdx = i
		}
		for _, col := range metadataColumns {
			if name == col {
				metaIdx[col] = i
			}
		}
	}
	if contentIdx == -1 {
		return nil, fmt.Errorf("csv has no %q column", contentColumn)
	}

	var rows []Row
	for n := 0; ; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", n, err)
		}

		row := Row{
			ID:       fmt.Sprintf("row_%d", n),
			Metadata: map[string]string{"row_id": fmt.Sprintf("%d", n)},
		}
		if contentIdx < len(record) {
			row.Content = record[contentIdx]
		}
		for col, idx := range metaIdx {
			if idx < len(record) && record[idx] != "" {
				row.Metadata[col] = record[idx]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
