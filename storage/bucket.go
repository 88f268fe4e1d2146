package storage

import (
	"context"
	"io"

	"github.com/thanos-io/objstore"
)

// BucketReader adapts one object in a bucket to io.ReaderAt, which is what
// the parquet reader wants. Range reads go straight to the bucket.
type BucketReader struct {
	ctx    context.Context
	name   string
	bucket objstore.Bucket
}

func NewBucketReader(ctx context.Context, name string, bucket objstore.Bucket) *BucketReader {
	return &BucketReader{
		ctx:    ctx,
		name:   name,
		bucket: bucket,
	}
}

func (r *BucketReader) ReadAt(p []byte, off int64) (n int, err error) {
	rangeReader, err := r.bucket.GetRange(r.ctx, r.name, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rangeReader.Close()

	return io.ReadFull(rangeReader, p)
}
