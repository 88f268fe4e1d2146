package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/ipc"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"

	"datapipe/source-feed/dataset"
)

// WriteDataset materializes splits as an on-disk dataset under dir. Column
// types are inferred from the first row of each split.
func WriteDataset(ctx context.Context, bkt objstore.Bucket, dir string, columns []string, splits map[string][]dataset.Row) error {
	names := make([]string, 0, len(splits))
	for split, rows := range splits {
		if err := writeSplit(ctx, bkt, path.Join(dir, split), columns, rows); err != nil {
			return errors.Wrapf(err, "writing split %s", split)
		}
		names = append(names, split)
	}
	dict, err := json.Marshal(datasetDict{Splits: names})
	if err != nil {
		return err
	}
	return bkt.Upload(ctx, path.Join(dir, dictFile), bytes.NewReader(dict))
}

// WriteDistiset materializes configs as an on-disk distiset under dir.
func WriteDistiset(ctx context.Context, bkt objstore.Bucket, dir string, columns []string, configs map[string]map[string][]dataset.Row) error {
	for config, splits := range configs {
		if err := WriteDataset(ctx, bkt, path.Join(dir, config), columns, splits); err != nil {
			return errors.Wrapf(err, "writing config %s", config)
		}
	}
	return nil
}

func writeSplit(ctx context.Context, bkt objstore.Bucket, dir string, columns []string, rows []dataset.Row) error {
	schema, err := arrowSchema(columns, rows)
	if err != nil {
		return err
	}

	var buffer seekBuffer
	writer, err := ipc.NewFileWriter(&buffer, ipc.WithSchema(schema), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return err
	}
	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	for _, row := range rows {
		for i, name := range columns {
			if err := appendValue(builder.Field(i), row[name]); err != nil {
				return errors.Wrapf(err, "column %q", name)
			}
		}
	}
	record := builder.NewRecord()
	defer record.Release()

	if err := writer.Write(record); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := bkt.Upload(ctx, path.Join(dir, "data-00000-of-00001"+shardExt), bytes.NewReader(buffer.data)); err != nil {
		return err
	}

	info := splitInfo{NumExamples: int64(len(rows))}
	for i, name := range columns {
		info.Features = append(info.Features, feature{Name: name, Dtype: schema.Field(i).Type.Name()})
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return bkt.Upload(ctx, path.Join(dir, infoFile), bytes.NewReader(raw))
}

// seekBuffer is an in-memory io.WriteSeeker; ipc.NewFileWriter needs seeking
// to back-patch the file footer.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + int64(len(p)); end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += int64(len(p))
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if b.pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", b.pos)
	}
	return b.pos, nil
}

func arrowSchema(columns []string, rows []dataset.Row) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(columns))
	for _, name := range columns {
		var sample any
		for _, row := range rows {
			if row[name] != nil {
				sample = row[name]
				break
			}
		}
		dtype, err := arrowType(sample)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", name)
		}
		fields = append(fields, arrow.Field{Name: name, Type: dtype, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(v any) (arrow.DataType, error) {
	switch v.(type) {
	case nil, string:
		return arrow.BinaryTypes.String, nil
	case int, int32, int64:
		return arrow.PrimitiveTypes.Int64, nil
	case float32, float64:
		return arrow.PrimitiveTypes.Float64, nil
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch builder := b.(type) {
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		builder.Append(s)
	case *array.Int64Builder:
		switch n := v.(type) {
		case int:
			builder.Append(int64(n))
		case int32:
			builder.Append(int64(n))
		case int64:
			builder.Append(n)
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}
	case *array.Float64Builder:
		switch n := v.(type) {
		case float32:
			builder.Append(float64(n))
		case float64:
			builder.Append(n)
		default:
			return fmt.Errorf("expected float, got %T", v)
		}
	case *array.BooleanBuilder:
		t, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		builder.Append(t)
	default:
		return fmt.Errorf("unsupported builder type %T", b)
	}
	return nil
}
