// Command feed drives a full dataset load: it opens a source, streams its
// row batches, and writes the rows to stdout as NDJSON. It is the manual
// stand-in for the pipeline executor.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	kitlog "github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/thanos-io/objstore"
	"gopkg.in/alecthomas/kingpin.v2"

	"datapipe/source-feed/hub"
	"datapipe/source-feed/produce"
	"datapipe/source-feed/source"
	"datapipe/source-feed/storage"
)

type Options struct {
	// Source kind: hub, files or snapshot.
	Source string
	// Repository ID on the hub (hub sources).
	RepoID string
	// Path to the data files or snapshot (files and snapshot sources).
	Path string
	// Dataset configuration, if the dataset has more than one.
	Config string
	// Split to load.
	Split string
	// Explicit filetype, overriding extension inference.
	Filetype string
	// Whether the snapshot is a distiset.
	Distiset bool
	// Load in streaming mode.
	Streaming bool
	// Number of rows to load; 0 loads all of them.
	RowLimit int64
	// Rows per batch.
	BatchSize int64
	// Resume offset in rows.
	Offset int64
	// Base URL of the hub metadata service.
	HubURL string
	// Path to the storage provider yaml config.
	StorageConfig string
	// Expose metrics and pprof on localhost:8080.
	Debug bool
}

func (o *Options) BindFlags(app *kingpin.Application) error {
	app.Flag("source", "Source kind: hub, files or snapshot.").
		Required().EnumVar(&o.Source, "hub", "files", "snapshot")
	app.Flag("repo-id", "Repository ID of the dataset on the hub.").
		Default("").StringVar(&o.RepoID)
	app.Flag("path", "Path to the data files or snapshot.").
		Default("").StringVar(&o.Path)
	app.Flag("config", "Dataset configuration to load.").
		Default("").StringVar(&o.Config)
	app.Flag("split", "Split to load.").
		Default("train").StringVar(&o.Split)
	app.Flag("filetype", "Explicit filetype, overriding extension inference.").
		Default("").StringVar(&o.Filetype)
	app.Flag("distiset", "Treat the snapshot as a distiset.").BoolVar(&o.Distiset)
	app.Flag("streaming", "Load the dataset in streaming mode.").BoolVar(&o.Streaming)
	app.Flag("limit", "Number of rows to load, 0 for all.").
		Default("0").Int64Var(&o.RowLimit)
	app.Flag("batch-size", "Rows per batch.").
		Default("50").Int64Var(&o.BatchSize)
	app.Flag("offset", "Resume offset in rows.").
		Default("0").Int64Var(&o.Offset)
	app.Flag("hub-url", "Base URL of the hub metadata service.").
		Default("https://datasets-server.huggingface.co").StringVar(&o.HubURL)
	app.Flag("storage.config", "Path to the storage provider yaml config.").
		Default("").StringVar(&o.StorageConfig)
	app.Flag("debug", "Expose metrics and pprof on localhost:8080.").BoolVar(&o.Debug)

	_, err := app.Parse(os.Args[1:])
	return err
}

func main() {
	app := kingpin.New("feed", "Stream row batches from a dataset source.")
	opts := Options{}
	if err := (&opts).BindFlags(app); err != nil {
		log.Fatal(err)
	}
	if opts.Debug {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Println(http.ListenAndServe("localhost:8080", nil))
		}()
	}

	ctx := context.Background()
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))

	bucket, err := openBucket(ctx, logger, opts)
	if err != nil {
		log.Fatal(err)
	}
	adapter := buildAdapter(logger, bucket, opts)
	if err := adapter.Open(ctx); err != nil {
		log.Fatal(err)
	}
	defer adapter.Close()

	producer, err := produce.NewProducer(adapter, opts.BatchSize, produce.NewMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		log.Fatal(err)
	}
	stream, err := producer.Produce(ctx, opts.Offset)
	if err != nil {
		log.Fatal(err)
	}

	bar := progressbar.Default(adapter.RowCount())
	encoder := json.NewEncoder(os.Stdout)
	for stream.Next() {
		batch := stream.At()
		for _, row := range batch.Rows {
			if err := encoder.Encode(row); err != nil {
				log.Fatal(err)
			}
		}
		bar.Add(len(batch.Rows))
	}
	if err := stream.Err(); err != nil {
		log.Fatal(err)
	}
}

func openBucket(ctx context.Context, logger kitlog.Logger, opts Options) (objstore.Bucket, error) {
	config := storage.DefaultConfig()
	if opts.StorageConfig != "" {
		var err error
		if config, err = storage.LoadConfig(opts.StorageConfig); err != nil {
			return nil, err
		}
	}
	return storage.NewBucket(ctx, logger, config)
}

func buildAdapter(logger kitlog.Logger, bucket objstore.Bucket, opts Options) source.Adapter {
	switch opts.Source {
	case "hub":
		return source.NewHubSource(logger, hub.NewClient(opts.HubURL), bucket, source.HubConfig{
			RepoID:    opts.RepoID,
			Config:    opts.Config,
			Split:     opts.Split,
			Streaming: opts.Streaming,
			RowLimit:  opts.RowLimit,
		})
	case "files":
		return source.NewFilesystemSource(logger, bucket, source.FilesystemConfig{
			Path:      opts.Path,
			Filetype:  opts.Filetype,
			Split:     opts.Split,
			Streaming: opts.Streaming,
			RowLimit:  opts.RowLimit,
		})
	default:
		return source.NewSnapshotSource(logger, bucket, source.SnapshotConfig{
			Path:      opts.Path,
			Config:    opts.Config,
			Split:     opts.Split,
			Distiset:  opts.Distiset,
			Streaming: opts.Streaming,
			RowLimit:  opts.RowLimit,
		})
	}
}
