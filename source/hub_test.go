package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"datapipe/source-feed/hub"
	"datapipe/source-feed/source"
)

const testRepoID = "acme/reviews"

func newMetadataServer(t *testing.T, payload string) *hub.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)
	return hub.NewClient(server.URL)
}

func newFailingMetadataServer(t *testing.T) *hub.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	return hub.NewClient(server.URL)
}

func TestHubSourceWithMetadata(t *testing.T) {
	bucket := newTestBucket(t)
	upload(t, bucket, testRepoID+"/data.csv", csvFixture(10))
	client := newMetadataServer(t, `{"dataset_info": {"default": {
		"features": [{"name": "id", "dtype": "int64"}, {"name": "name", "dtype": "string"}],
		"splits": {"train": {"num_examples": 10}}
	}}}`)

	adapter := source.NewHubSource(log.NewNopLogger(), client, bucket, source.HubConfig{
		RepoID:   testRepoID,
		RowLimit: 5,
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()

	// Metadata reported 10 examples; the limit caps the budget at 5.
	require.Equal(t, int64(5), adapter.RowCount())
	require.Equal(t, []string{"id", "name"}, adapter.Columns())

	batches := drainBatches(t, adapter, 2, 0)
	require.Len(t, batches, 3)
	require.Len(t, batches[0].Rows, 2)
	require.Len(t, batches[1].Rows, 2)
	require.Len(t, batches[2].Rows, 1)
	require.Equal(t, []bool{false, false, true}, []bool{batches[0].Last, batches[1].Last, batches[2].Last})
}

func TestHubSourceMetadataFallback(t *testing.T) {
	bucket := newTestBucket(t)
	upload(t, bucket, testRepoID+"/data.csv", csvFixture(4))

	adapter := source.NewHubSource(log.NewNopLogger(), newFailingMetadataServer(t), bucket, source.HubConfig{
		RepoID: testRepoID,
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()

	// Counts and columns come from the opened dataset instead.
	require.Equal(t, int64(4), adapter.RowCount())
	require.Equal(t, []string{"id", "name"}, adapter.Columns())
}

func TestHubSourceMetadataFallbackStreaming(t *testing.T) {
	bucket := newTestBucket(t)
	upload(t, bucket, testRepoID+"/data.csv", csvFixture(7))

	adapter := source.NewHubSource(log.NewNopLogger(), newFailingMetadataServer(t), bucket, source.HubConfig{
		RepoID:    testRepoID,
		Streaming: true,
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()

	// A streaming handle has no cheap count, so the files are counted.
	require.Equal(t, int64(7), adapter.RowCount())

	batches := drainBatches(t, adapter, 3, 0)
	require.Len(t, batches, 3)
	require.True(t, batches[2].Last)
}

func TestHubSourceNamedConfig(t *testing.T) {
	bucket := newTestBucket(t)
	upload(t, bucket, testRepoID+"/data.csv", csvFixture(3))
	client := newMetadataServer(t, `{"dataset_info": {"verbose": {
		"features": [{"name": "id", "dtype": "int64"}, {"name": "name", "dtype": "string"}],
		"splits": {"train": {"num_examples": 3}}
	}}}`)

	adapter := source.NewHubSource(log.NewNopLogger(), client, bucket, source.HubConfig{
		RepoID: testRepoID,
		Config: "verbose",
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()
	require.Equal(t, int64(3), adapter.RowCount())
}

func TestHubSourceMissingRepository(t *testing.T) {
	bucket := newTestBucket(t)

	adapter := source.NewHubSource(log.NewNopLogger(), newFailingMetadataServer(t), bucket, source.HubConfig{
		RepoID: "acme/missing",
	})
	err := adapter.Open(context.Background())
	require.Error(t, err)
}

func TestHubSourceLimitAboveTotal(t *testing.T) {
	bucket := newTestBucket(t)
	upload(t, bucket, testRepoID+"/data.csv", csvFixture(3))
	client := newMetadataServer(t, `{"dataset_info": {"default": {
		"features": [{"name": "id", "dtype": "int64"}, {"name": "name", "dtype": "string"}],
		"splits": {"train": {"num_examples": 3}}
	}}}`)

	adapter := source.NewHubSource(log.NewNopLogger(), client, bucket, source.HubConfig{
		RepoID:   testRepoID,
		RowLimit: 100,
	})
	require.NoError(t, adapter.Open(context.Background()))
	defer adapter.Close()

	require.Equal(t, int64(3), adapter.RowCount())
}
