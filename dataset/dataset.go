// Package dataset defines the backing-handle contract shared by all source
// adapters, the columnar and row-major batch representations, and the
// readers for the supported file formats.
package dataset

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrSchemaViolation is returned when column sequences inside one batch
	// disagree on their length, or when files of one dataset disagree on
	// their column set.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrRowCountUnknown is returned by streaming handles that cannot
	// answer NumRows without a full scan.
	ErrRowCountUnknown = errors.New("row count unknown")
)

// Row is a single record in row-major form.
type Row = map[string]any

// Columnar holds up to one batch of data in column-major form. All value
// sequences are aligned by row index and must have equal length.
type Columnar = map[string][]any

// Handle is an opened dataset. It is exclusively owned by the source
// adapter that opened it and is not safe for concurrent use.
type Handle interface {
	// Columns returns the output column names in source order.
	Columns() []string
	// NumRows returns the total number of rows, or ErrRowCountUnknown
	// for streaming handles.
	NumRows() (int64, error)
	// ReadColumnar returns up to max rows starting at row index start,
	// in source order. It returns fewer rows only at the end of the
	// source, and an empty mapping once the source is exhausted.
	ReadColumnar(ctx context.Context, start, max int64) (Columnar, error)
	Close() error
}

// Length returns the row count of a columnar batch, verifying that every
// column agrees on it.
func Length(c Columnar) (int64, error) {
	n := int64(-1)
	for name, values := range c {
		if n >= 0 && int64(len(values)) != n {
			return 0, errors.Wrapf(ErrSchemaViolation, "column %q has %d values, want %d", name, len(values), n)
		}
		n = int64(len(values))
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Transpose converts a columnar batch into row-major form. Column length
// mismatches are surfaced as ErrSchemaViolation, never truncated or padded.
func Transpose(c Columnar) ([]Row, error) {
	n, err := Length(c)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, n)
	for i := range rows {
		row := make(Row, len(c))
		for name, values := range c {
			row[name] = values[i]
		}
		rows[i] = row
	}
	return rows, nil
}

// ToColumnar converts rows back into column-major form using the given
// column order. Missing cells become nil.
func ToColumnar(columns []string, rows []Row) Columnar {
	c := make(Columnar, len(columns))
	for _, name := range columns {
		values := make([]any, 0, len(rows))
		for _, row := range rows {
			values = append(values, row[name])
		}
		c[name] = values
	}
	return c
}
