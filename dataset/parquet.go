package dataset

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/thanos-io/objstore"

	"datapipe/source-feed/storage"
)

const parquetReadChunkSize = 4 * 1024 * 1024

// parquetHandle reads a single parquet file through a seekable row reader.
// Row counts come from the file footer, so resuming and counting never
// require a data scan.
type parquetHandle struct {
	file    string
	columns []string
	rows    *parquet.Reader
	numRows int64
}

func openParquet(ctx context.Context, bkt objstore.Bucket, files []string) (Handle, error) {
	handles := make([]Handle, 0, len(files))
	for _, file := range files {
		h, err := openParquetFile(ctx, bkt, file)
		if err != nil {
			for _, opened := range handles {
				opened.Close()
			}
			return nil, errors.Wrapf(err, "opening %s", file)
		}
		handles = append(handles, h)
	}
	return Concat(handles...)
}

func openParquetFile(ctx context.Context, bkt objstore.Bucket, file string) (*parquetHandle, error) {
	pqFile, err := readParquetFooter(ctx, bkt, file)
	if err != nil {
		return nil, err
	}
	return &parquetHandle{
		file:    file,
		columns: leafColumns(pqFile.Schema()),
		rows:    parquet.NewReader(pqFile),
		numRows: pqFile.NumRows(),
	}, nil
}

func countParquet(ctx context.Context, bkt objstore.Bucket, file string) (int64, error) {
	pqFile, err := readParquetFooter(ctx, bkt, file)
	if err != nil {
		return 0, err
	}
	return pqFile.NumRows(), nil
}

func readParquetFooter(ctx context.Context, bkt objstore.Bucket, file string) (*parquet.File, error) {
	attrs, err := bkt.Attributes(ctx, file)
	if err != nil {
		return nil, err
	}
	reader := storage.NewChunkedBucketReader(storage.NewBucketReader(ctx, file, bkt), parquetReadChunkSize)
	return parquet.OpenFile(reader, attrs.Size)
}

func leafColumns(schema *parquet.Schema) []string {
	columns := make([]string, 0, len(schema.Columns()))
	for _, path := range schema.Columns() {
		columns = append(columns, strings.Join(path, "."))
	}
	return columns
}

func (h *parquetHandle) Columns() []string       { return h.columns }
func (h *parquetHandle) NumRows() (int64, error) { return h.numRows, nil }
func (h *parquetHandle) Close() error            { return h.rows.Close() }

func (h *parquetHandle) ReadColumnar(_ context.Context, start, max int64) (Columnar, error) {
	out := make(Columnar, len(h.columns))
	for _, name := range h.columns {
		out[name] = []any{}
	}
	if start >= h.numRows || max == 0 {
		return out, nil
	}
	if err := h.rows.SeekToRow(start); err != nil {
		return nil, errors.Wrapf(err, "seeking to row %d of %s", start, h.file)
	}
	if max > h.numRows-start {
		max = h.numRows - start
	}
	buf := make([]parquet.Row, max)
	n, err := h.rows.ReadRows(buf)
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "reading %s", h.file)
	}
	for _, row := range buf[:n] {
		for _, value := range row {
			name := h.columns[value.Column()]
			out[name] = append(out[name], parquetValue(value))
		}
	}
	return out, nil
}

func parquetValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return v.String()
	}
}
