package view

import (
	"encoding/csv"
	"fmt"
	"io"
)

const bom = "\ufeff"

// CSVWriter writes semicolon-delimited CSV preceded by a UTF-8 byte-order
// mark, which spreadsheet tools need to detect the encoding.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter writes the BOM and the header row.
func NewCSVWriter(w io.Writer, header []string) (*CSVWriter, error) {
	if _, err := io.WriteString(w, bom); err != nil {
		return nil, fmt.Errorf("failed to write byte-order mark: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	return &CSVWriter{w: cw}, nil
}

func (c *CSVWriter) Write(record []string) error {
	return c.w.Write(record)
}

// Flush pushes buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// WriteCSV writes a full document in one call.
func WriteCSV(w io.Writer, header []string, records [][]string) error {
	cw, err := NewCSVWriter(w, header)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	return cw.Flush()
}
