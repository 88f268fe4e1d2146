package storage

import (
	"context"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/gcs"
	"gopkg.in/yaml.v3"
)

// Config selects the storage backend datasets are read through. The
// provider-specific sections are passed through to the backend client and
// are not interpreted here.
type Config struct {
	Provider   string           `yaml:"provider"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	GCS        GCSConfig        `yaml:"gcs"`
}

type FilesystemConfig struct {
	Directory string `yaml:"directory"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket"`
}

// DefaultConfig reads from the local filesystem, rooted at the working
// directory.
func DefaultConfig() Config {
	return Config{Provider: "filesystem", Filesystem: FilesystemConfig{Directory: "."}}
}

// LoadConfig parses a yaml config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return Config{}, errors.Wrapf(err, "parsing %s", path)
	}
	return config, nil
}

// NewBucket constructs the bucket described by the config.
func NewBucket(ctx context.Context, logger log.Logger, config Config) (objstore.Bucket, error) {
	switch config.Provider {
	case "", "filesystem":
		return filesystem.NewBucket(config.Filesystem.Directory)
	case "gcs":
		conf, err := yaml.Marshal(config.GCS)
		if err != nil {
			return nil, err
		}
		return gcs.NewBucket(ctx, logger, conf, "source-feed")
	default:
		return nil, errors.Errorf("unknown storage provider %q", config.Provider)
	}
}
