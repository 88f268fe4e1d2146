package source_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"

	"datapipe/source-feed/dataset"
	"datapipe/source-feed/snapshot"
	"datapipe/source-feed/source"
)

func snapshotRows(n int) []dataset.Row {
	rows := make([]dataset.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, dataset.Row{"id": int64(i), "name": fmt.Sprintf("row-%d", i)})
	}
	return rows
}

func writeSnapshotFixture(t *testing.T, bucket objstore.Bucket, dir string, splits map[string][]dataset.Row) {
	t.Helper()
	err := snapshot.WriteDataset(context.Background(), bucket, dir, []string{"id", "name"}, splits)
	require.NoError(t, err)
}

func TestSnapshotSourceSingleSplit(t *testing.T) {
	bucket := newTestBucket(t)
	writeSnapshotFixture(t, bucket, "saved", map[string][]dataset.Row{"train": snapshotRows(6)})

	adapter := source.NewSnapshotSource(log.NewNopLogger(), bucket, source.SnapshotConfig{Path: "saved"})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()

	// With exactly one split the split name may stay empty.
	require.Equal(t, int64(6), adapter.RowCount())
	require.Equal(t, []string{"id", "name"}, adapter.Columns())

	batches := drainBatches(t, adapter, 4, 0)
	require.Len(t, batches, 2)
	require.True(t, batches[1].Last)
	require.Equal(t, int64(0), batches[0].Rows[0]["id"])
}

func TestSnapshotSourceNamedSplit(t *testing.T) {
	bucket := newTestBucket(t)
	writeSnapshotFixture(t, bucket, "saved", map[string][]dataset.Row{
		"train": snapshotRows(6),
		"test":  snapshotRows(2),
	})

	adapter := source.NewSnapshotSource(log.NewNopLogger(), bucket, source.SnapshotConfig{
		Path:  "saved",
		Split: "test",
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()
	require.Equal(t, int64(2), adapter.RowCount())
}

func TestSnapshotSourceAmbiguousSplit(t *testing.T) {
	bucket := newTestBucket(t)
	writeSnapshotFixture(t, bucket, "saved", map[string][]dataset.Row{
		"train": snapshotRows(1),
		"test":  snapshotRows(1),
	})

	adapter := source.NewSnapshotSource(log.NewNopLogger(), bucket, source.SnapshotConfig{Path: "saved"})
	err := adapter.Open(context.Background())
	require.ErrorIs(t, err, source.ErrSourceUnavailable)
}

func TestSnapshotSourceDistiset(t *testing.T) {
	bucket := newTestBucket(t)
	err := snapshot.WriteDistiset(context.Background(), bucket, "saved", []string{"id", "name"}, map[string]map[string][]dataset.Row{
		"generation": {"train": snapshotRows(4)},
		"judge":      {"train": snapshotRows(2)},
	})
	require.NoError(t, err)

	adapter := source.NewSnapshotSource(log.NewNopLogger(), bucket, source.SnapshotConfig{
		Path:     "saved",
		Config:   "judge",
		Distiset: true,
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()
	require.Equal(t, int64(2), adapter.RowCount())
}

func TestSnapshotSourceRowLimit(t *testing.T) {
	bucket := newTestBucket(t)
	writeSnapshotFixture(t, bucket, "saved", map[string][]dataset.Row{"train": snapshotRows(10)})

	adapter := source.NewSnapshotSource(log.NewNopLogger(), bucket, source.SnapshotConfig{
		Path:     "saved",
		RowLimit: 5,
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()

	require.Equal(t, int64(5), adapter.RowCount())
	batches := drainBatches(t, adapter, 2, 0)
	require.Len(t, batches, 3)
	require.Len(t, batches[2].Rows, 1)
}

func TestSnapshotSourceRejectsStreaming(t *testing.T) {
	bucket := newTestBucket(t)
	writeSnapshotFixture(t, bucket, "saved", map[string][]dataset.Row{"train": snapshotRows(2)})

	adapter := source.NewSnapshotSource(log.NewNopLogger(), bucket, source.SnapshotConfig{
		Path:      "saved",
		Streaming: true,
	})
	err := adapter.Open(context.Background())
	require.ErrorIs(t, err, source.ErrUnsupportedMode)
}

func TestSnapshotSourceMissing(t *testing.T) {
	bucket := newTestBucket(t)

	adapter := source.NewSnapshotSource(log.NewNopLogger(), bucket, source.SnapshotConfig{Path: "nowhere"})
	err := adapter.Open(context.Background())
	require.ErrorIs(t, err, source.ErrSourceUnavailable)
}
