package dataset

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// rowScanner reads rows one at a time in source order. Scan returns io.EOF
// once the source is exhausted.
type rowScanner interface {
	Scan() (Row, error)
	Close() error
}

// memHandle holds a fully materialized dataset in columnar form.
type memHandle struct {
	columns []string
	data    Columnar
	numRows int64
}

func newMemHandle(columns []string, data Columnar) (*memHandle, error) {
	n, err := Length(data)
	if err != nil {
		return nil, err
	}
	return &memHandle{columns: columns, data: data, numRows: n}, nil
}

// drain materializes a scanner into a memHandle.
func drain(columns []string, scanner rowScanner) (*memHandle, error) {
	defer scanner.Close()

	data := make(Columnar, len(columns))
	for _, name := range columns {
		data[name] = []any{}
	}
	var numRows int64
	for {
		row, err := scanner.Scan()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, name := range columns {
			data[name] = append(data[name], row[name])
		}
		numRows++
	}
	return &memHandle{columns: columns, data: data, numRows: numRows}, nil
}

func (h *memHandle) Columns() []string       { return h.columns }
func (h *memHandle) NumRows() (int64, error) { return h.numRows, nil }
func (h *memHandle) Close() error            { return nil }

func (h *memHandle) ReadColumnar(_ context.Context, start, max int64) (Columnar, error) {
	if start < 0 || max < 0 {
		return nil, errors.Errorf("invalid read range: start %d, max %d", start, max)
	}
	if start > h.numRows {
		start = h.numRows
	}
	end := start + max
	if end > h.numRows {
		end = h.numRows
	}
	out := make(Columnar, len(h.columns))
	for _, name := range h.columns {
		out[name] = h.data[name][start:end]
	}
	return out, nil
}

// streamHandle reads rows incrementally through a re-openable scanner. It
// does not know its row count. Reads below the current position restart the
// scan from the beginning.
type streamHandle struct {
	columns []string
	open    func() (rowScanner, error)

	scanner rowScanner
	pos     int64
}

func (h *streamHandle) Columns() []string       { return h.columns }
func (h *streamHandle) NumRows() (int64, error) { return 0, ErrRowCountUnknown }

func (h *streamHandle) Close() error {
	if h.scanner == nil {
		return nil
	}
	s := h.scanner
	h.scanner = nil
	return s.Close()
}

func (h *streamHandle) ReadColumnar(_ context.Context, start, max int64) (Columnar, error) {
	if h.scanner == nil || start < h.pos {
		if err := h.Close(); err != nil {
			return nil, err
		}
		scanner, err := h.open()
		if err != nil {
			return nil, err
		}
		h.scanner = scanner
		h.pos = 0
	}

	out := make(Columnar, len(h.columns))
	for _, name := range h.columns {
		out[name] = []any{}
	}
	var n int64
	for n < max {
		row, err := h.scanner.Scan()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		h.pos++
		if h.pos <= start {
			continue
		}
		for _, name := range h.columns {
			out[name] = append(out[name], row[name])
		}
		n++
	}
	return out, nil
}

// Concat concatenates handles with known row counts into one handle. All
// parts must expose the same column set.
func Concat(handles ...Handle) (Handle, error) {
	if len(handles) == 1 {
		return handles[0], nil
	}
	if len(handles) == 0 {
		return nil, errors.New("concat of zero handles")
	}
	columns := handles[0].Columns()
	offsets := make([]int64, len(handles)+1)
	for i, h := range handles {
		if !slices.Equal(h.Columns(), columns) {
			return nil, errors.Wrapf(ErrSchemaViolation, "files disagree on columns: %v vs %v", h.Columns(), columns)
		}
		n, err := h.NumRows()
		if err != nil {
			return nil, err
		}
		offsets[i+1] = offsets[i] + n
	}
	return &concatHandle{columns: columns, parts: handles, offsets: offsets}, nil
}

type concatHandle struct {
	columns []string
	parts   []Handle
	offsets []int64
}

func (h *concatHandle) Columns() []string       { return h.columns }
func (h *concatHandle) NumRows() (int64, error) { return h.offsets[len(h.offsets)-1], nil }

func (h *concatHandle) Close() error {
	var firstErr error
	for _, part := range h.parts {
		if err := part.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *concatHandle) ReadColumnar(ctx context.Context, start, max int64) (Columnar, error) {
	out := make(Columnar, len(h.columns))
	for _, name := range h.columns {
		out[name] = []any{}
	}
	for i, part := range h.parts {
		if max == 0 {
			break
		}
		partStart, partEnd := h.offsets[i], h.offsets[i+1]
		if start >= partEnd {
			continue
		}
		if start < partStart {
			break
		}
		batch, err := part.ReadColumnar(ctx, start-partStart, max)
		if err != nil {
			return nil, err
		}
		n, err := Length(batch)
		if err != nil {
			return nil, err
		}
		for _, name := range h.columns {
			out[name] = append(out[name], batch[name]...)
		}
		start += n
		max -= n
	}
	return out, nil
}

// Truncate limits a handle to its first n rows. It is how non-streaming
// sources apply the row budget at open time.
func Truncate(h Handle, n int64) (Handle, error) {
	total, err := h.NumRows()
	if err != nil {
		return nil, err
	}
	if n > total {
		n = total
	}
	return &truncatedHandle{Handle: h, limit: n}, nil
}

type truncatedHandle struct {
	Handle
	limit int64
}

func (h *truncatedHandle) NumRows() (int64, error) { return h.limit, nil }

func (h *truncatedHandle) ReadColumnar(ctx context.Context, start, max int64) (Columnar, error) {
	if start >= h.limit {
		start = h.limit
	}
	if start+max > h.limit {
		max = h.limit - start
	}
	return h.Handle.ReadColumnar(ctx, start, max)
}
