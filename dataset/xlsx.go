package dataset

import (
	"context"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"github.com/xuri/excelize/v2"
	"golang.org/x/exp/slices"
)

// openXLSX reads the first sheet of each workbook, treating the first row
// as the header. Spreadsheets are DOM-loaded by the underlying library, so
// the handle is always materialized and its row count always known.
func openXLSX(ctx context.Context, bkt objstore.Bucket, files []string) (Handle, error) {
	handles := make([]Handle, 0, len(files))
	for _, file := range files {
		h, err := openXLSXFile(ctx, bkt, file)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", file)
		}
		handles = append(handles, h)
	}
	return Concat(handles...)
}

func openXLSXFile(ctx context.Context, bkt objstore.Bucket, file string) (Handle, error) {
	rc, err := bkt.Get(ctx, file)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	workbook, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, err
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("sheet %q has no header row", sheets[0])
	}

	columns := slices.Clone(rows[0])
	data := make(Columnar, len(columns))
	for _, name := range columns {
		data[name] = []any{}
	}
	for _, cells := range rows[1:] {
		for i, name := range columns {
			// Trailing empty cells are not returned by the library.
			if i < len(cells) {
				data[name] = append(data[name], csvValue(cells[i]))
			} else {
				data[name] = append(data[name], nil)
			}
		}
	}
	return newMemHandle(columns, data)
}
