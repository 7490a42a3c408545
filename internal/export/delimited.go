package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// recordWriter writes one record of cells.
type recordWriter interface {
	Write(cells []string) error
	Flush() error
}

// tsvWriter joins sanitized cells with tabs. Cells are never quoted.
type tsvWriter struct {
	w *bufio.Writer
}

func (t *tsvWriter) Write(cells []string) error {
	_, err := t.w.WriteString(strings.Join(cells, "\t") + "\n")
	return err
}

func (t *tsvWriter) Flush() error { return t.w.Flush() }

// csvWriter quotes cells holding commas or quotes.
type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) Write(cells []string) error { return c.w.Write(cells) }

func (c *csvWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

func newRecordWriter(w io.Writer, format Format) recordWriter {
	if format == FormatCSV {
		return &csvWriter{w: csv.NewWriter(w)}
	}
	return &tsvWriter{w: bufio.NewWriter(w)}
}

// writeDelimited writes a header line from the column names and one line per row.
// It returns the number of data lines written.
func writeDelimited(w io.Writer, format Format, rows Rows) (int, error) {
	rw := newRecordWriter(w, format)

	cols := rows.Columns()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = Sanitize(c)
	}
	if err := rw.Write(header); err != nil {
		return 0, fmt.Errorf("cannot write header: %w", err)
	}

	count := 0
	cells := make([]string, len(cols))
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return count, fmt.Errorf("cannot read row %d: %w", count+1, err)
		}
		if len(vals) != len(cols) {
			return count, fmt.Errorf("row %d has %d cells, header has %d", count+1, len(vals), len(cols))
		}
		for i, v := range vals {
			cells[i] = Sanitize(CellText(v))
		}
		if err := rw.Write(cells); err != nil {
			return count, fmt.Errorf("cannot write row %d: %w", count+1, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("cannot read rows: %w", err)
	}
	if err := rw.Flush(); err != nil {
		return count, fmt.Errorf("cannot flush output: %w", err)
	}
	return count, nil
}
