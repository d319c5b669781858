// Package store persists one immutable snapshot per job identifier and hands
// them back to the reporting core. Fingerprint equality must survive a
// put/fetch cycle bit-for-bit, so both backends round-trip the object map
// without touching its values.
package store

import (
	"context"
	"errors"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Predefined errors
var (
	// ErrSnapshotNotFound indicates no snapshot exists for the job id
	ErrSnapshotNotFound = errors.New("store: snapshot not found")

	// ErrStoreUnavailable indicates an I/O or transport failure; never to be
	// treated as "no previous snapshot"
	ErrStoreUnavailable = errors.New("store: unavailable")

	// ErrMalformedSnapshot indicates a snapshot that fails the structural
	// checks at the ingestion boundary (bad job id, nil object map)
	ErrMalformedSnapshot = errors.New("store: malformed snapshot")
)

// Store is the snapshot store adapter consumed by the reporting core.
// Implementations must be safe for concurrent use; retry policy, if any,
// lives inside the implementation, never in the caller.
type Store interface {
	// Put durably stores a snapshot under its job id. Snapshots are
	// immutable: re-putting the same job id overwrites the record whole.
	Put(ctx context.Context, snap types.Snapshot) error

	// Fetch returns the snapshot for the job id, ErrSnapshotNotFound if none
	// exists, or ErrStoreUnavailable on storage failure.
	Fetch(ctx context.Context, jobID types.JobID) (types.Snapshot, error)

	// JobIDs returns all stored job ids in ascending order.
	JobIDs(ctx context.Context) ([]types.JobID, error)

	// LatestBefore returns the greatest stored job id strictly below the
	// given one, or ErrSnapshotNotFound when there is none.
	LatestBefore(ctx context.Context, jobID types.JobID) (types.JobID, error)

	Close() error
}

// Validate applies the structural checks of the ingestion boundary. The core
// assumes well-formed snapshots; anything arriving here malformed is rejected
// before it can produce a silently wrong diff.
func Validate(snap types.Snapshot) error {
	if snap.JobID <= 0 {
		return errors.Join(ErrMalformedSnapshot, errors.New("job_id must be positive"))
	}
	if snap.Objects == nil {
		return errors.Join(ErrMalformedSnapshot, errors.New("state map is required"))
	}
	if snap.Timestamp.IsZero() {
		return errors.Join(ErrMalformedSnapshot, errors.New("timestamp is required"))
	}
	if snap.LatencyMS < 0 {
		return errors.Join(ErrMalformedSnapshot, errors.New("latency_ms must not be negative"))
	}
	return nil
}
