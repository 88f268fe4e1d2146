package dataset

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"golang.org/x/sync/errgroup"
)

// Supported filetypes, matching the extensions the classifier infers.
const (
	FiletypeCSV     = "csv"
	FiletypeJSON    = "json"
	FiletypeParquet = "parquet"
	FiletypeArrow   = "arrow"
	FiletypeXLSX    = "xlsx"
)

const countConcurrency = 4

// Open opens the given files as one dataset handle. Rows are delivered in
// file order, files in slice order. In streaming mode row-oriented formats
// (csv, json) are read incrementally and do not know their row count;
// parquet and arrow answer NumRows from file metadata in both modes.
func Open(ctx context.Context, bkt objstore.Bucket, filetype string, files []string, streaming bool) (Handle, error) {
	if len(files) == 0 {
		return nil, errors.New("open: no files")
	}
	switch filetype {
	case FiletypeCSV:
		return openScanned(ctx, bkt, files, streaming, csvColumns, newCSVScanner)
	case FiletypeJSON:
		return openScanned(ctx, bkt, files, streaming, jsonColumns, newJSONScanner)
	case FiletypeParquet:
		return openParquet(ctx, bkt, files)
	case FiletypeArrow:
		return openArrow(ctx, bkt, files)
	case FiletypeXLSX:
		return openXLSX(ctx, bkt, files)
	default:
		return nil, errors.Errorf("unsupported filetype %q", filetype)
	}
}

// Count returns the exact total number of rows in the given files. Formats
// with self-describing footers answer from metadata, the rest are scanned.
func Count(ctx context.Context, bkt objstore.Bucket, filetype string, files []string) (int64, error) {
	var (
		mu    sync.Mutex
		total int64
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for _, file := range files {
		file := file
		g.Go(func() error {
			n, err := countFile(ctx, bkt, filetype, file)
			if err != nil {
				return errors.Wrapf(err, "counting rows of %s", file)
			}
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}

func countFile(ctx context.Context, bkt objstore.Bucket, filetype string, file string) (int64, error) {
	switch filetype {
	case FiletypeCSV:
		return countScanned(ctx, bkt, file, csvColumns, newCSVScanner)
	case FiletypeJSON:
		return countScanned(ctx, bkt, file, jsonColumns, newJSONScanner)
	case FiletypeParquet:
		return countParquet(ctx, bkt, file)
	case FiletypeArrow:
		return countArrowFile(ctx, bkt, file)
	case FiletypeXLSX:
		h, err := openXLSX(ctx, bkt, []string{file})
		if err != nil {
			return 0, err
		}
		defer h.Close()
		return h.NumRows()
	default:
		return 0, errors.Errorf("unsupported filetype %q", filetype)
	}
}

type columnsFunc func(ctx context.Context, bkt objstore.Bucket, file string) ([]string, error)
type scannerFunc func(ctx context.Context, bkt objstore.Bucket, file string, columns []string) (rowScanner, error)

func openScanned(ctx context.Context, bkt objstore.Bucket, files []string, streaming bool, columnsOf columnsFunc, newScanner scannerFunc) (Handle, error) {
	columns, err := columnsOf(ctx, bkt, files[0])
	if err != nil {
		return nil, errors.Wrapf(err, "resolving columns of %s", files[0])
	}
	open := func() (rowScanner, error) {
		return newChainScanner(files, func(file string) (rowScanner, error) {
			return newScanner(ctx, bkt, file, columns)
		}), nil
	}
	if streaming {
		return &streamHandle{columns: columns, open: open}, nil
	}
	scanner, err := open()
	if err != nil {
		return nil, err
	}
	return drain(columns, scanner)
}

func countScanned(ctx context.Context, bkt objstore.Bucket, file string, columnsOf columnsFunc, newScanner scannerFunc) (int64, error) {
	columns, err := columnsOf(ctx, bkt, file)
	if err != nil {
		return 0, err
	}
	scanner, err := newScanner(ctx, bkt, file, columns)
	if err != nil {
		return 0, err
	}
	defer scanner.Close()

	var n int64
	for {
		if _, err := scanner.Scan(); err == io.EOF {
			return n, nil
		} else if err != nil {
			return 0, err
		}
		n++
	}
}

// chainScanner reads files back to back, opening each lazily.
type chainScanner struct {
	files   []string
	open    func(file string) (rowScanner, error)
	current rowScanner
	next    int
}

func newChainScanner(files []string, open func(file string) (rowScanner, error)) *chainScanner {
	return &chainScanner{files: files, open: open}
}

func (c *chainScanner) Scan() (Row, error) {
	for {
		if c.current == nil {
			if c.next >= len(c.files) {
				return nil, io.EOF
			}
			scanner, err := c.open(c.files[c.next])
			if err != nil {
				return nil, errors.Wrapf(err, "opening %s", c.files[c.next])
			}
			c.current = scanner
			c.next++
		}
		row, err := c.current.Scan()
		if err == io.EOF {
			if err := c.current.Close(); err != nil {
				return nil, err
			}
			c.current = nil
			continue
		}
		return row, err
	}
}

func (c *chainScanner) Close() error {
	if c.current == nil {
		return nil
	}
	current := c.current
	c.current = nil
	return current.Close()
}
