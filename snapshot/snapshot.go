// Package snapshot loads datasets that were previously materialized to
// disk. A dataset directory holds one sub-directory per split, each with
// arrow IPC shards and a dataset_info.json; a distiset directory holds one
// dataset directory per config.
package snapshot

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"datapipe/source-feed/dataset"
)

const (
	dictFile  = "dataset_dict.json"
	infoFile  = "dataset_info.json"
	shardGlob = "data-"
	shardExt  = ".arrow"
)

type datasetDict struct {
	Splits []string `json:"splits"`
}

type feature struct {
	Name  string `json:"name"`
	Dtype string `json:"dtype"`
}

type splitInfo struct {
	Features    []feature `json:"features"`
	NumExamples int64     `json:"num_examples"`
}

// Snapshot is a loaded on-disk dataset, indexable by config then split.
type Snapshot struct {
	path    string
	configs map[string]*Dataset
}

// Dataset is one config of a snapshot: a set of named splits.
type Dataset struct {
	path   string
	splits map[string]dataset.Handle
}

// Load reads the snapshot at the given path. With distiset set, the
// directory is expected to hold one config directory per sub-dataset;
// otherwise the whole directory is a single unnamed config.
func Load(ctx context.Context, bkt objstore.Bucket, p string, distiset bool) (*Snapshot, error) {
	p = strings.TrimSuffix(p, "/")
	snap := &Snapshot{path: p, configs: map[string]*Dataset{}}

	if !distiset {
		ds, err := loadDataset(ctx, bkt, p)
		if err != nil {
			return nil, err
		}
		snap.configs[""] = ds
		return snap, nil
	}

	configs, err := listDirs(ctx, bkt, p)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, errors.Errorf("distiset %s has no configs", p)
	}
	for _, configDir := range configs {
		ds, err := loadDataset(ctx, bkt, configDir)
		if err != nil {
			return nil, err
		}
		snap.configs[path.Base(configDir)] = ds
	}
	return snap, nil
}

// Config indexes into the snapshot by config name. An empty name is valid
// only when the snapshot holds exactly one config.
func (s *Snapshot) Config(name string) (*Dataset, error) {
	if name == "" {
		if len(s.configs) == 1 {
			return maps.Values(s.configs)[0], nil
		}
		names := maps.Keys(s.configs)
		slices.Sort(names)
		return nil, errors.Errorf("%s has %d configs (%s), one must be selected", s.path, len(s.configs), strings.Join(names, ", "))
	}
	ds, ok := s.configs[name]
	if !ok {
		return nil, errors.Errorf("%s has no config %q", s.path, name)
	}
	return ds, nil
}

func (s *Snapshot) Close() error {
	var firstErr error
	for _, ds := range s.configs {
		if err := ds.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Split indexes into the dataset by split name. An empty name is valid
// only when the dataset holds exactly one split.
func (d *Dataset) Split(name string) (dataset.Handle, error) {
	if name == "" {
		if len(d.splits) == 1 {
			return maps.Values(d.splits)[0], nil
		}
		names := maps.Keys(d.splits)
		slices.Sort(names)
		return nil, errors.Errorf("%s has %d splits (%s), one must be selected", d.path, len(d.splits), strings.Join(names, ", "))
	}
	h, ok := d.splits[name]
	if !ok {
		return nil, errors.Errorf("%s has no split %q", d.path, name)
	}
	return h, nil
}

func (d *Dataset) Close() error {
	var firstErr error
	for _, h := range d.splits {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func loadDataset(ctx context.Context, bkt objstore.Bucket, dir string) (*Dataset, error) {
	splitNames, err := splitsOf(ctx, bkt, dir)
	if err != nil {
		return nil, err
	}
	if len(splitNames) == 0 {
		return nil, errors.Errorf("dataset %s has no splits", dir)
	}
	ds := &Dataset{path: dir, splits: map[string]dataset.Handle{}}
	for _, split := range splitNames {
		h, err := loadSplit(ctx, bkt, path.Join(dir, split))
		if err != nil {
			ds.Close()
			return nil, err
		}
		ds.splits[split] = h
	}
	return ds, nil
}

// splitsOf prefers the dataset_dict.json manifest and falls back to the
// directory listing for snapshots written without one.
func splitsOf(ctx context.Context, bkt objstore.Bucket, dir string) ([]string, error) {
	dictPath := path.Join(dir, dictFile)
	ok, err := bkt.Exists(ctx, dictPath)
	if err != nil {
		return nil, err
	}
	if ok {
		var dict datasetDict
		if err := readJSON(ctx, bkt, dictPath, &dict); err != nil {
			return nil, err
		}
		return dict.Splits, nil
	}
	dirs, err := listDirs(ctx, bkt, dir)
	if err != nil {
		return nil, err
	}
	splits := make([]string, 0, len(dirs))
	for _, d := range dirs {
		splits = append(splits, path.Base(d))
	}
	return splits, nil
}

func loadSplit(ctx context.Context, bkt objstore.Bucket, dir string) (dataset.Handle, error) {
	var shards []string
	err := bkt.Iter(ctx, dir+"/", func(name string) error {
		base := path.Base(name)
		if strings.HasPrefix(base, shardGlob) && strings.HasSuffix(base, shardExt) {
			shards = append(shards, strings.TrimSuffix(name, "/"))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	if len(shards) == 0 {
		return nil, errors.Errorf("split %s has no data shards", dir)
	}
	slices.Sort(shards)
	return dataset.Open(ctx, bkt, dataset.FiletypeArrow, shards, false)
}

func listDirs(ctx context.Context, bkt objstore.Bucket, dir string) ([]string, error) {
	var dirs []string
	err := bkt.Iter(ctx, dir+"/", func(name string) error {
		if strings.HasSuffix(name, "/") {
			dirs = append(dirs, strings.TrimSuffix(name, "/"))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	slices.Sort(dirs)
	return dirs, nil
}

func readJSON(ctx context.Context, bkt objstore.Bucket, name string, out any) error {
	rc, err := bkt.Get(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(raw, out), "parsing %s", name)
}
