package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
)

// openArrow materializes arrow IPC files into memory handles. The files are
// the snapshot shard format, which is read whole anyway.
func openArrow(ctx context.Context, bkt objstore.Bucket, files []string) (Handle, error) {
	handles := make([]Handle, 0, len(files))
	for _, file := range files {
		h, err := openArrowFile(ctx, bkt, file)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", file)
		}
		handles = append(handles, h)
	}
	return Concat(handles...)
}

func openArrowFile(ctx context.Context, bkt objstore.Bucket, file string) (Handle, error) {
	reader, err := readArrowFile(ctx, bkt, file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	columns := make([]string, 0, len(reader.Schema().Fields()))
	for _, field := range reader.Schema().Fields() {
		columns = append(columns, field.Name)
	}

	data := make(Columnar, len(columns))
	for _, name := range columns {
		data[name] = []any{}
	}
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.Record(i)
		if err != nil {
			return nil, err
		}
		for j, name := range columns {
			values, err := arrowValues(record.Column(j))
			if err != nil {
				return nil, errors.Wrapf(err, "column %q", name)
			}
			data[name] = append(data[name], values...)
		}
	}
	return newMemHandle(columns, data)
}

func countArrowFile(ctx context.Context, bkt objstore.Bucket, file string) (int64, error) {
	reader, err := readArrowFile(ctx, bkt, file)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	var numRows int64
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.Record(i)
		if err != nil {
			return 0, err
		}
		numRows += record.NumRows()
	}
	return numRows, nil
}

func readArrowFile(ctx context.Context, bkt objstore.Bucket, file string) (*ipc.FileReader, error) {
	rc, err := bkt.Get(ctx, file)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return ipc.NewFileReader(bytes.NewReader(raw), ipc.WithAllocator(memory.DefaultAllocator))
}

func arrowValues(column arrow.Array) ([]any, error) {
	values := make([]any, column.Len())
	for i := range values {
		if column.IsNull(i) {
			continue
		}
		switch typed := column.(type) {
		case *array.String:
			values[i] = typed.Value(i)
		case *array.Int32:
			values[i] = int64(typed.Value(i))
		case *array.Int64:
			values[i] = typed.Value(i)
		case *array.Float32:
			values[i] = float64(typed.Value(i))
		case *array.Float64:
			values[i] = typed.Value(i)
		case *array.Boolean:
			values[i] = typed.Value(i)
		default:
			return nil, fmt.Errorf("unsupported arrow type %s", column.DataType())
		}
	}
	return values, nil
}
