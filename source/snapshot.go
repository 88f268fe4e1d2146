package source

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"

	"datapipe/source-feed/dataset"
	"datapipe/source-feed/snapshot"
)

// SnapshotConfig configures a source backed by a previously materialized
// on-disk snapshot.
type SnapshotConfig struct {
	Path string
	// Config selects the sub-dataset of a distiset; required when the
	// distiset holds more than one.
	Config string
	// Split selects the split; may stay empty when the dataset holds
	// exactly one.
	Split    string
	Distiset bool
	// Streaming is rejected for snapshots.
	Streaming bool
	RowLimit  int64
}

// SnapshotSource loads a dataset that was previously saved to disk,
// optionally indexing into it by config and then by split.
type SnapshotSource struct {
	logger log.Logger
	bucket objstore.Bucket
	cfg    SnapshotConfig

	opened  bool
	snap    *snapshot.Snapshot
	handle  dataset.Handle
	budget  int64
	columns []string
}

func NewSnapshotSource(logger log.Logger, bucket objstore.Bucket, cfg SnapshotConfig) *SnapshotSource {
	return &SnapshotSource{logger: logger, bucket: bucket, cfg: cfg}
}

func (s *SnapshotSource) Open(ctx context.Context) error {
	if s.opened {
		return nil
	}
	if s.cfg.Streaming {
		return errors.Wrapf(ErrUnsupportedMode, "snapshot %s cannot be streamed", s.cfg.Path)
	}

	snap, err := snapshot.Load(ctx, s.bucket, s.cfg.Path, s.cfg.Distiset)
	if err != nil {
		return unavailable(err, "loading snapshot %s", s.cfg.Path)
	}
	ds, err := snap.Config(s.cfg.Config)
	if err != nil {
		snap.Close()
		return unavailable(err, "indexing snapshot %s", s.cfg.Path)
	}
	handle, err := ds.Split(s.cfg.Split)
	if err != nil {
		snap.Close()
		return unavailable(err, "indexing snapshot %s", s.cfg.Path)
	}

	if s.cfg.RowLimit > 0 {
		if handle, err = dataset.Truncate(handle, s.cfg.RowLimit); err != nil {
			snap.Close()
			return err
		}
	}
	budget, err := handle.NumRows()
	if err != nil {
		snap.Close()
		return err
	}
	columns := handle.Columns()
	if len(columns) == 0 {
		snap.Close()
		return errors.Wrapf(ErrEmptySource, "no columns resolved for %s", s.cfg.Path)
	}

	s.snap = snap
	s.handle = handle
	s.budget = budget
	s.columns = columns
	s.opened = true
	return nil
}

func (s *SnapshotSource) RowCount() int64   { return s.budget }
func (s *SnapshotSource) Columns() []string { return s.columns }

func (s *SnapshotSource) ReadColumnar(ctx context.Context, start, max int64) (dataset.Columnar, error) {
	if !s.opened {
		return nil, errors.New("snapshot source is not open")
	}
	return s.handle.ReadColumnar(ctx, start, max)
}

func (s *SnapshotSource) Close() error {
	if s.snap == nil {
		return nil
	}
	snap := s.snap
	s.snap, s.handle = nil, nil
	return snap.Close()
}
