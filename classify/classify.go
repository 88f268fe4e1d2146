// Package classify maps a filesystem or object-storage path onto a loading
// strategy: which files make up the dataset, how they group into splits,
// and what file format they are in.
package classify

import (
	"context"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ErrUnresolvableFiletype is returned when no file is available to infer
// the format from.
var ErrUnresolvableFiletype = errors.New("cannot resolve filetype")

// Grouping is the classifier's decision of how files map to the dataset.
// A single file or a flat directory fills Sequence; sub-directories fill
// ByDir, keyed by the sub-directory path, which downstream expresses
// per-split file sets. A directory holding both produces both.
type Grouping struct {
	Sequence []string
	ByDir    map[string][]string
}

// Empty reports whether no files were found at all.
func (g Grouping) Empty() bool {
	return len(g.Sequence) == 0 && len(g.ByDir) == 0
}

// Classify inspects path and returns the file grouping together with the
// inferred filetype. Inference takes the first file in order, flat files
// before grouped ones, and applies the extension with the jsonl→json
// synonym. An empty directory yields ErrUnresolvableFiletype.
func Classify(ctx context.Context, bkt objstore.Bucket, p string) (Grouping, string, error) {
	p = strings.TrimSuffix(p, "/")

	isFile, err := bkt.Exists(ctx, p)
	if err != nil {
		return Grouping{}, "", errors.Wrapf(err, "probing %s", p)
	}
	if isFile {
		return Grouping{Sequence: []string{p}}, Filetype(p), nil
	}

	grouping := Grouping{ByDir: map[string][]string{}}
	err = iterDir(ctx, bkt, p, func(child string) error {
		if !strings.HasSuffix(child, "/") {
			grouping.Sequence = append(grouping.Sequence, child)
			return nil
		}
		dir := strings.TrimSuffix(child, "/")
		return iterDir(ctx, bkt, dir, func(nested string) error {
			if !strings.HasSuffix(nested, "/") {
				grouping.ByDir[dir] = append(grouping.ByDir[dir], nested)
			}
			return nil
		})
	})
	if err != nil {
		return Grouping{}, "", errors.Wrapf(err, "listing %s", p)
	}

	slices.Sort(grouping.Sequence)
	for _, files := range grouping.ByDir {
		slices.Sort(files)
	}
	for dir, files := range grouping.ByDir {
		if len(files) == 0 {
			delete(grouping.ByDir, dir)
		}
	}

	filetype, err := inferFiletype(grouping)
	if err != nil {
		return Grouping{}, "", errors.Wrapf(err, "classifying %s", p)
	}
	return grouping, filetype, nil
}

// Filetype returns the file extension with the jsonl→json synonym applied.
func Filetype(file string) string {
	filetype := strings.TrimPrefix(path.Ext(file), ".")
	if filetype == "jsonl" {
		filetype = "json"
	}
	return filetype
}

func inferFiletype(g Grouping) (string, error) {
	if len(g.Sequence) > 0 {
		return Filetype(g.Sequence[0]), nil
	}
	dirs := maps.Keys(g.ByDir)
	slices.Sort(dirs)
	for _, dir := range dirs {
		if files := g.ByDir[dir]; len(files) > 0 {
			return Filetype(files[0]), nil
		}
	}
	return "", errors.Wrap(ErrUnresolvableFiletype, "no files found")
}

func iterDir(ctx context.Context, bkt objstore.Bucket, dir string, fn func(name string) error) error {
	if dir != "" {
		dir += "/"
	}
	return bkt.Iter(ctx, dir, fn)
}
