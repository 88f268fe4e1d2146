package dataset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"datapipe/source-feed/dataset"
	"datapipe/source-feed/snapshot"
)

func TestOpenArrow(t *testing.T) {
	bucket := newTestBucket(t)
	rows := []dataset.Row{
		{"id": int64(1), "name": "alpha", "score": 0.5},
		{"id": int64(2), "name": "beta", "score": 1.5},
		{"id": int64(3), "name": nil, "score": 2.5},
	}
	err := snapshot.WriteDataset(context.Background(), bucket, "ds", []string{"id", "name", "score"}, map[string][]dataset.Row{
		"train": rows,
	})
	require.NoError(t, err)

	shard := "ds/train/data-00000-of-00001.arrow"
	handle, err := dataset.Open(context.Background(), bucket, dataset.FiletypeArrow, []string{shard}, false)
	require.NoError(t, err)
	defer handle.Close()

	require.Equal(t, []string{"id", "name", "score"}, handle.Columns())
	n, err := handle.NumRows()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	batch, err := handle.ReadColumnar(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Equal(t, []any{int64(2), int64(3)}, batch["id"])
	require.Equal(t, []any{"beta", nil}, batch["name"])
	require.Equal(t, []any{1.5, 2.5}, batch["score"])

	count, err := dataset.Count(context.Background(), bucket, dataset.FiletypeArrow, []string{shard})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}
