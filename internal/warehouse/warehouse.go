// Package warehouse appends one MetricsRecord row per reporting request to an
// analytics sink. Inserts are fire-and-forget from the core's perspective:
// callers log failures and surface them in the report status, never to the
// HTTP caller.
package warehouse

import (
	"context"
	"errors"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Predefined errors
var (
	// ErrInsertFailed indicates the sink could not append the row
	ErrInsertFailed = errors.New("warehouse: insert failed")

	// ErrJournalCorrupted indicates the journal file cannot be parsed
	ErrJournalCorrupted = errors.New("warehouse: journal is corrupted")

	// ErrChecksumMismatch indicates a journal entry failed verification
	ErrChecksumMismatch = errors.New("warehouse: checksum mismatch")

	// ErrSinkClosed indicates the sink is closed, cannot perform operation
	ErrSinkClosed = errors.New("warehouse: already closed")
)

// Sink is the analytics warehouse boundary. Implementations must be safe for
// concurrent use.
type Sink interface {
	// Insert appends one row. A failed insert returns an error wrapping
	// ErrInsertFailed; it must never panic.
	Insert(ctx context.Context, record types.MetricsRecord) error
	Close() error
}
