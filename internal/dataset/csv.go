package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Typer tells the CSV decoder which kind a column holds. Columns reported as
// KindMissing are decoded as strings.
type Typer interface {
	KindOf(column string) Kind
}

// ReadCSV decodes a headed CSV document. With a nil typer every non-empty cell
// is kept as a string; empty cells are missing in both modes.
func ReadCSV(r io.Reader, types Typer) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv header: empty document")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	kinds := make([]Kind, len(header))
	for i, name := range header {
		kinds[i] = KindString
		if types != nil && types.KindOf(name) == KindNumber {
			kinds[i] = KindNumber
		}
	}

	t := NewTable(header...)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("read csv line %d: expected %d fields, got %d", line, len(header), len(record))
		}

		row := make(Row, len(header))
		for i, cell := range record {
			if cell == "" {
				row[header[i]] = Missing()
				continue
			}
			if kinds[i] != KindNumber {
				row[header[i]] = String(cell)
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("read csv line %d: column %s: %w", line, header[i], err)
			}
			if math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, fmt.Errorf("read csv line %d: column %s: %q is not a finite number", line, header[i], cell)
			}
			row[header[i]] = Number(f)
		}
		t.Append(row)
	}
	return t, nil
}

// WriteCSV encodes the table with its header in column order.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, c := range t.Columns {
			record[i] = row.Get(c).Text()
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
