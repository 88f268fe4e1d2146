package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"golang.org/x/exp/slices"
)

// csvColumns reads the header row of a csv file.
func csvColumns(ctx context.Context, bkt objstore.Bucket, file string) ([]string, error) {
	rc, err := bkt.Get(ctx, file)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	header, err := csv.NewReader(rc).Read()
	if err == io.EOF {
		return nil, errors.Errorf("%s has no header row", file)
	}
	if err != nil {
		return nil, err
	}
	return header, nil
}

type csvScanner struct {
	file    string
	rc      io.ReadCloser
	reader  *csv.Reader
	columns []string
}

func newCSVScanner(ctx context.Context, bkt objstore.Bucket, file string, columns []string) (rowScanner, error) {
	rc, err := bkt.Get(ctx, file)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(rc)
	header, err := reader.Read()
	if err != nil && err != io.EOF {
		rc.Close()
		return nil, err
	}
	if err == nil && !slices.Equal(header, columns) {
		rc.Close()
		return nil, errors.Wrapf(ErrSchemaViolation, "%s has header %v, want %v", file, header, columns)
	}
	return &csvScanner{file: file, rc: rc, reader: reader, columns: columns}, nil
}

func (s *csvScanner) Scan() (Row, error) {
	record, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.file)
	}
	row := make(Row, len(s.columns))
	for i, name := range s.columns {
		row[name] = csvValue(record[i])
	}
	return row, nil
}

func (s *csvScanner) Close() error { return s.rc.Close() }

// csvValue parses numeric and boolean cells, leaving everything else a
// string. Schema casting is out of scope.
func csvValue(cell string) any {
	if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(cell); err == nil {
		return v
	}
	return cell
}
