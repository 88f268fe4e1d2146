package source

import (
	"context"
	"path"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"

	"datapipe/source-feed/classify"
	"datapipe/source-feed/dataset"
)

// FilesystemConfig configures a source backed by files on a local or cloud
// filesystem. Path may be a single file, a flat directory, or a directory
// of per-split sub-directories.
type FilesystemConfig struct {
	Path string
	// Filetype overrides extension-based inference when set.
	Filetype  string
	Split     string
	Streaming bool
	RowLimit  int64
}

// FilesystemSource loads a dataset from files reachable through a bucket.
// The bucket carries the storage options; they are never interpreted here.
type FilesystemSource struct {
	logger log.Logger
	bucket objstore.Bucket
	cfg    FilesystemConfig

	opened  bool
	handle  dataset.Handle
	budget  int64
	columns []string
}

func NewFilesystemSource(logger log.Logger, bucket objstore.Bucket, cfg FilesystemConfig) *FilesystemSource {
	if cfg.Split == "" {
		cfg.Split = DefaultSplit
	}
	return &FilesystemSource{logger: logger, bucket: bucket, cfg: cfg}
}

func (s *FilesystemSource) Open(ctx context.Context) error {
	if s.opened {
		return nil
	}

	grouping, inferred, err := classify.Classify(ctx, s.bucket, s.cfg.Path)
	if err != nil {
		if errors.Is(err, classify.ErrUnresolvableFiletype) {
			return err
		}
		return unavailable(err, "classifying %s", s.cfg.Path)
	}
	filetype := s.cfg.Filetype
	if filetype == "" {
		filetype = inferred
	}
	files, err := selectFiles(grouping, s.cfg.Split)
	if err != nil {
		return errors.Wrapf(err, "selecting files under %s", s.cfg.Path)
	}

	handle, err := dataset.Open(ctx, s.bucket, filetype, files, s.cfg.Streaming)
	if err != nil {
		return unavailable(err, "opening %s", s.cfg.Path)
	}

	budget := s.cfg.RowLimit
	if budget <= 0 {
		total, err := handle.NumRows()
		if errors.Is(err, dataset.ErrRowCountUnknown) {
			// No cheaper exact count exists for a streaming source
			// without a limit; accept the second pass.
			total, err = dataset.Count(ctx, s.bucket, filetype, files)
		}
		if err != nil {
			handle.Close()
			return unavailable(err, "resolving row count of %s", s.cfg.Path)
		}
		budget = total
	}
	if !s.cfg.Streaming {
		if handle, err = dataset.Truncate(handle, budget); err != nil {
			handle.Close()
			return err
		}
		if budget, err = handle.NumRows(); err != nil {
			handle.Close()
			return err
		}
	}

	columns := handle.Columns()
	if len(columns) == 0 {
		handle.Close()
		return errors.Wrapf(ErrEmptySource, "no columns resolved for %s", s.cfg.Path)
	}

	s.handle = handle
	s.budget = budget
	s.columns = columns
	s.opened = true
	return nil
}

// selectFiles applies the grouping tie-break: the flat sequence wins when
// present, otherwise the group matching the requested split is used.
func selectFiles(grouping classify.Grouping, split string) ([]string, error) {
	if len(grouping.Sequence) > 0 {
		return grouping.Sequence, nil
	}
	for dir, files := range grouping.ByDir {
		if path.Base(dir) == split {
			return files, nil
		}
	}
	return nil, errors.Wrapf(ErrSourceUnavailable, "no files for split %q", split)
}

func (s *FilesystemSource) RowCount() int64   { return s.budget }
func (s *FilesystemSource) Columns() []string { return s.columns }

func (s *FilesystemSource) ReadColumnar(ctx context.Context, start, max int64) (dataset.Columnar, error) {
	if !s.opened {
		return nil, errors.New("filesystem source is not open")
	}
	return s.handle.ReadColumnar(ctx, start, max)
}

func (s *FilesystemSource) Close() error {
	if s.handle == nil {
		return nil
	}
	handle := s.handle
	s.handle = nil
	return handle.Close()
}
