package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"

	"datapipe/source-feed/dataset"
	"datapipe/source-feed/snapshot"
)

var testColumns = []string{"id", "label"}

func testRows(n int, label string) []dataset.Row {
	rows := make([]dataset.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, dataset.Row{"id": int64(i), "label": label})
	}
	return rows
}

func newBucket(t *testing.T) objstore.Bucket {
	t.Helper()
	bucket, err := filesystem.NewBucket(t.TempDir())
	require.NoError(t, err)
	return bucket
}

func TestDatasetRoundTrip(t *testing.T) {
	bucket := newBucket(t)
	ctx := context.Background()

	err := snapshot.WriteDataset(ctx, bucket, "saved", testColumns, map[string][]dataset.Row{
		"train": testRows(4, "train"),
		"test":  testRows(2, "test"),
	})
	require.NoError(t, err)

	snap, err := snapshot.Load(ctx, bucket, "saved", false)
	require.NoError(t, err)
	defer snap.Close()

	ds, err := snap.Config("")
	require.NoError(t, err)

	train, err := ds.Split("train")
	require.NoError(t, err)
	n, err := train.NumRows()
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.Equal(t, testColumns, train.Columns())

	batch, err := train.ReadColumnar(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []any{"train", "train", "train", "train"}, batch["label"])

	_, err = ds.Split("validation")
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation")

	// Two splits exist, so one must be selected explicitly.
	_, err = ds.Split("")
	require.Error(t, err)
}

func TestDistisetRoundTrip(t *testing.T) {
	bucket := newBucket(t)
	ctx := context.Background()

	err := snapshot.WriteDistiset(ctx, bucket, "disti", testColumns, map[string]map[string][]dataset.Row{
		"step_one": {"train": testRows(3, "one")},
		"step_two": {"train": testRows(5, "two")},
	})
	require.NoError(t, err)

	snap, err := snapshot.Load(ctx, bucket, "disti", true)
	require.NoError(t, err)
	defer snap.Close()

	// Config selection is required with more than one config.
	_, err = snap.Config("")
	require.Error(t, err)

	ds, err := snap.Config("step_two")
	require.NoError(t, err)
	h, err := ds.Split("")
	require.NoError(t, err)
	n, err := h.NumRows()
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	_, err = snap.Config("missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestLoadMissingSnapshot(t *testing.T) {
	bucket := newBucket(t)
	_, err := snapshot.Load(context.Background(), bucket, "nowhere", false)
	require.Error(t, err)
}
