// Package source unifies the mechanics of the three dataset source kinds
// behind one adapter contract: open the backing handle, resolve the row
// budget and output columns, and read rows in source order.
package source

import (
	"context"

	"github.com/pkg/errors"

	"datapipe/source-feed/dataset"
)

var (
	// ErrSourceUnavailable marks a backing location that cannot be reached
	// or opened. It is not retried here; the hub metadata fallback is the
	// only built-in retry-like behavior.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEmptySource marks a source for which no output columns could be
	// resolved.
	ErrEmptySource = errors.New("empty source")

	// ErrUnsupportedMode marks a requested mode the source kind does not
	// support, such as streaming a snapshot.
	ErrUnsupportedMode = errors.New("unsupported mode")
)

// DefaultSplit is used when no split is configured.
const DefaultSplit = "train"

// Adapter is the contract every source kind satisfies. Open is
// idempotent-once; RowCount and Columns are valid only after a successful
// Open. Adapters are single-owner and not safe for concurrent use.
type Adapter interface {
	Open(ctx context.Context) error
	// RowCount returns the resolved row budget: the number of rows this
	// source will deliver in one run.
	RowCount() int64
	// Columns returns the resolved output schema, stable for the
	// adapter's lifetime.
	Columns() []string
	// ReadColumnar returns up to max rows starting at row index start, in
	// source order. It may block on network or disk I/O; cancellation is
	// the caller's responsibility via ctx.
	ReadColumnar(ctx context.Context, start, max int64) (dataset.Columnar, error)
	Close() error
}

// effectiveBudget resolves the row budget from an optional requested limit
// and the total rows available.
func effectiveBudget(limit, total int64) int64 {
	if limit > 0 && limit < total {
		return limit
	}
	return total
}

// unavailable wraps an open failure as ErrSourceUnavailable, keeping schema
// violations as what they are.
func unavailable(err error, format string, args ...any) error {
	if errors.Is(err, dataset.ErrSchemaViolation) {
		return err
	}
	args = append(args, err)
	return errors.Wrapf(ErrSourceUnavailable, format+": %v", args...)
}
