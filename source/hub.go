package source

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"

	"datapipe/source-feed/classify"
	"datapipe/source-feed/dataset"
	"datapipe/source-feed/hub"
)

// HubConfig configures a source backed by a named repository on the
// dataset hub.
type HubConfig struct {
	RepoID string
	// Config selects the dataset configuration; metadata of datasets
	// without configurations is published under "default".
	Config    string
	Split     string
	Streaming bool
	RowLimit  int64
}

// HubSource loads a dataset from the hub. Row counts and columns come from
// the metadata service when it is reachable; otherwise both are resolved
// from the opened dataset itself.
type HubSource struct {
	logger log.Logger
	client *hub.Client
	bucket objstore.Bucket
	cfg    HubConfig

	opened  bool
	handle  dataset.Handle
	budget  int64
	columns []string
}

// NewHubSource builds a hub source. The bucket exposes the repository
// contents, rooted so that cfg.RepoID resolves to the repository's file
// tree; the transfer mechanism behind it is not this package's concern.
func NewHubSource(logger log.Logger, client *hub.Client, bucket objstore.Bucket, cfg HubConfig) *HubSource {
	if cfg.Split == "" {
		cfg.Split = DefaultSplit
	}
	return &HubSource{logger: logger, client: client, bucket: bucket, cfg: cfg}
}

func (s *HubSource) Open(ctx context.Context) error {
	if s.opened {
		return nil
	}

	total, columns, metaErr := s.queryMetadata(ctx)
	if metaErr != nil {
		// The only swallowed failure: fall back to resolving everything
		// from the dataset itself.
		level.Warn(s.logger).Log(
			"msg", "failed to get dataset info from the hub, falling back to opening the dataset",
			"repo_id", s.cfg.RepoID,
			"err", metaErr,
		)
	}

	handle, filetype, files, err := s.openHandle(ctx)
	if err != nil {
		return err
	}
	if metaErr != nil {
		if total, err = handle.NumRows(); errors.Is(err, dataset.ErrRowCountUnknown) {
			total, err = dataset.Count(ctx, s.bucket, filetype, files)
		}
		if err != nil {
			handle.Close()
			return unavailable(err, "resolving row count of %s (metadata query failed: %v)", s.cfg.RepoID, metaErr)
		}
		columns = handle.Columns()
	}

	budget := effectiveBudget(s.cfg.RowLimit, total)
	if !s.cfg.Streaming {
		// Streaming mode never truncates; the producer enforces the
		// budget through its termination rule.
		if handle, err = dataset.Truncate(handle, budget); err != nil {
			handle.Close()
			return err
		}
	}
	if len(columns) == 0 {
		handle.Close()
		return errors.Wrapf(ErrEmptySource, "no columns resolved for %s", s.cfg.RepoID)
	}

	s.handle = handle
	s.budget = budget
	s.columns = columns
	s.opened = true
	return nil
}

// queryMetadata asks the metadata service for the split's example count
// and the feature set, without transferring any data.
func (s *HubSource) queryMetadata(ctx context.Context) (int64, []string, error) {
	infos, err := s.client.DatasetInfos(ctx, s.cfg.RepoID)
	if err != nil {
		return 0, nil, err
	}
	configName := s.cfg.Config
	if configName == "" {
		configName = hub.DefaultConfigName
	}
	info, ok := infos[configName]
	if !ok {
		return 0, nil, errors.Errorf("metadata of %s has no config %q", s.cfg.RepoID, configName)
	}
	split, ok := info.Splits[s.cfg.Split]
	if !ok {
		return 0, nil, errors.Errorf("metadata of %s has no split %q", s.cfg.RepoID, s.cfg.Split)
	}
	return split.NumExamples, info.ColumnNames(), nil
}

func (s *HubSource) openHandle(ctx context.Context) (dataset.Handle, string, []string, error) {
	grouping, filetype, err := classify.Classify(ctx, s.bucket, s.cfg.RepoID)
	if err != nil {
		if errors.Is(err, classify.ErrUnresolvableFiletype) {
			return nil, "", nil, err
		}
		return nil, "", nil, unavailable(err, "classifying repository %s", s.cfg.RepoID)
	}
	files, err := selectFiles(grouping, s.cfg.Split)
	if err != nil {
		return nil, "", nil, errors.Wrapf(err, "repository %s", s.cfg.RepoID)
	}
	handle, err := dataset.Open(ctx, s.bucket, filetype, files, s.cfg.Streaming)
	if err != nil {
		return nil, "", nil, unavailable(err, "opening repository %s", s.cfg.RepoID)
	}
	return handle, filetype, files, nil
}

func (s *HubSource) RowCount() int64   { return s.budget }
func (s *HubSource) Columns() []string { return s.columns }

func (s *HubSource) ReadColumnar(ctx context.Context, start, max int64) (dataset.Columnar, error) {
	if !s.opened {
		return nil, errors.New("hub source is not open")
	}
	return s.handle.ReadColumnar(ctx, start, max)
}

func (s *HubSource) Close() error {
	if s.handle == nil {
		return nil
	}
	handle := s.handle
	s.handle = nil
	return handle.Close()
}
