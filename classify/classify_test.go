package classify_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"

	"datapipe/source-feed/classify"
)

func newBucket(t *testing.T, files ...string) objstore.Bucket {
	t.Helper()
	dir := t.TempDir()
	for _, file := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, file)), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte("x"), 0o640))
	}
	bucket, err := filesystem.NewBucket(dir)
	require.NoError(t, err)
	return bucket
}

func TestClassifySingleFile(t *testing.T) {
	bucket := newBucket(t, "data.jsonl")

	grouping, filetype, err := classify.Classify(context.Background(), bucket, "data.jsonl")
	require.NoError(t, err)
	require.Equal(t, []string{"data.jsonl"}, grouping.Sequence)
	require.Empty(t, grouping.ByDir)
	require.Equal(t, "json", filetype)
}

func TestClassifyFlatDirectory(t *testing.T) {
	bucket := newBucket(t, "ds/a.csv", "ds/b.csv")

	grouping, filetype, err := classify.Classify(context.Background(), bucket, "ds")
	require.NoError(t, err)
	require.Equal(t, []string{"ds/a.csv", "ds/b.csv"}, grouping.Sequence)
	require.Empty(t, grouping.ByDir)
	require.Equal(t, "csv", filetype)
}

func TestClassifyGroupedDirectory(t *testing.T) {
	bucket := newBucket(t, "ds/train/1.json", "ds/test/2.json")

	grouping, filetype, err := classify.Classify(context.Background(), bucket, "ds")
	require.NoError(t, err)
	require.Empty(t, grouping.Sequence)
	require.Equal(t, map[string][]string{
		"ds/train": {"ds/train/1.json"},
		"ds/test":  {"ds/test/2.json"},
	}, grouping.ByDir)
	require.Equal(t, "json", filetype)
}

func TestClassifyMixedDirectory(t *testing.T) {
	bucket := newBucket(t, "ds/flat.csv", "ds/train/1.csv")

	grouping, filetype, err := classify.Classify(context.Background(), bucket, "ds")
	require.NoError(t, err)
	require.Equal(t, []string{"ds/flat.csv"}, grouping.Sequence)
	require.Equal(t, map[string][]string{"ds/train": {"ds/train/1.csv"}}, grouping.ByDir)
	require.Equal(t, "csv", filetype)
}

func TestClassifyEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o750))
	bucket, err := filesystem.NewBucket(dir)
	require.NoError(t, err)

	_, _, err = classify.Classify(context.Background(), bucket, "empty")
	require.ErrorIs(t, err, classify.ErrUnresolvableFiletype)
}

func TestFiletypeSynonym(t *testing.T) {
	for give, want := range map[string]string{
		"a/b.jsonl":  "json",
		"a/b.json":   "json",
		"a/b.csv":    "csv",
		"b.parquet":  "parquet",
		"noext": "",
	} {
		require.Equal(t, want, classify.Filetype(give), "filetype of %s", give)
	}
}
