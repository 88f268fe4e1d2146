package dataset

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// jsonColumns derives the column set from the first record of a json lines
// file. Key order in the file is not observable, so columns are sorted.
func jsonColumns(ctx context.Context, bkt objstore.Bucket, file string) ([]string, error) {
	rc, err := bkt.Get(ctx, file)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var first Row
	if err := json.NewDecoder(rc).Decode(&first); err == io.EOF {
		return nil, errors.Errorf("%s has no records", file)
	} else if err != nil {
		return nil, err
	}
	columns := maps.Keys(first)
	slices.Sort(columns)
	return columns, nil
}

type jsonScanner struct {
	file    string
	rc      io.ReadCloser
	decoder *json.Decoder
	columns []string
	row     int64
}

func newJSONScanner(ctx context.Context, bkt objstore.Bucket, file string, columns []string) (rowScanner, error) {
	rc, err := bkt.Get(ctx, file)
	if err != nil {
		return nil, err
	}
	return &jsonScanner{file: file, rc: rc, decoder: json.NewDecoder(rc), columns: columns}, nil
}

func (s *jsonScanner) Scan() (Row, error) {
	var row Row
	if err := s.decoder.Decode(&row); err == io.EOF {
		return nil, io.EOF
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.file)
	}
	s.row++
	for name := range row {
		if !slices.Contains(s.columns, name) {
			return nil, errors.Wrapf(ErrSchemaViolation, "%s record %d has unexpected column %q", s.file, s.row, name)
		}
	}
	for _, name := range s.columns {
		if _, ok := row[name]; !ok {
			return nil, errors.Wrapf(ErrSchemaViolation, "%s record %d is missing column %q", s.file, s.row, name)
		}
	}
	return row, nil
}

func (s *jsonScanner) Close() error { return s.rc.Close() }
