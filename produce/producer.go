// Package produce turns an opened source adapter into a resumable stream
// of fixed-size row batches.
package produce

import (
	"context"

	"github.com/pkg/errors"

	"datapipe/source-feed/dataset"
)

// Source is the slice of the adapter contract the producer needs: an
// opened source with a resolved row budget.
type Source interface {
	RowCount() int64
	Columns() []string
	ReadColumnar(ctx context.Context, start, max int64) (dataset.Columnar, error)
}

// Batch is one unit of output: up to batchSize rows in row-major form.
// Last marks the final batch of the run.
type Batch struct {
	Rows []dataset.Row
	Last bool
}

// Producer yields row batches from a single opened source. It is
// single-owner: one Produce call drives the source at a time.
type Producer struct {
	source    Source
	batchSize int64
	metrics   *Metrics
}

// NewProducer builds a producer with a fixed batch size. Metrics may be
// nil.
func NewProducer(source Source, batchSize int64, metrics *Metrics) (*Producer, error) {
	if batchSize < 1 {
		return nil, errors.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	return &Producer{source: source, batchSize: batchSize, metrics: metrics}, nil
}

// Produce returns a finite, non-restartable stream of batches starting
// after the given resume offset. Batches below the offset are read from
// the source and discarded rather than re-delivered; the offset is
// expected to be a multiple of the batch size, as produced by the
// executor's cache layer.
func (p *Producer) Produce(ctx context.Context, offset int64) (*Stream, error) {
	if offset < 0 {
		return nil, errors.Errorf("offset must be non-negative, got %d", offset)
	}
	return &Stream{
		ctx:       ctx,
		source:    p.source,
		batchSize: p.batchSize,
		offset:    offset,
		metrics:   p.metrics,
	}, nil
}

// Stream iterates over batches. Usage follows the usual pattern:
//
//	for stream.Next() {
//		batch := stream.At()
//	}
//	if err := stream.Err(); err != nil { ... }
type Stream struct {
	ctx       context.Context
	source    Source
	batchSize int64
	offset    int64
	metrics   *Metrics

	cursor  int64
	emitted int64
	current Batch
	done    bool
	err     error
}

// Next advances to the next batch. It returns false once the row budget
// has been delivered, the source is exhausted, or an error occurred.
func (s *Stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	budget := s.source.RowCount()
	for {
		// A zero budget yields no batches and is not an error.
		if s.emitted >= budget {
			s.done = true
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}

		start := s.cursor
		columnar, err := s.source.ReadColumnar(s.ctx, start, s.batchSize)
		if err != nil {
			s.err = err
			return false
		}
		n, err := dataset.Length(columnar)
		if err != nil {
			s.err = err
			return false
		}
		if n == 0 {
			s.done = true
			return false
		}
		s.cursor += n
		s.emitted += n

		// Resumption is logical: batches below the offset are read and
		// dropped without being re-delivered.
		if start < s.offset {
			continue
		}

		rows, err := dataset.Transpose(columnar)
		if err != nil {
			s.err = err
			return false
		}
		last := s.emitted >= budget
		s.current = Batch{Rows: rows, Last: last}
		if last {
			s.done = true
		}
		if s.metrics != nil {
			s.metrics.observe(len(rows))
		}
		return true
	}
}

// At returns the batch the stream advanced to. Valid after a true Next.
func (s *Stream) At() Batch { return s.current }

// Err returns the terminal error of the stream, if any.
func (s *Stream) Err() error { return s.err }
