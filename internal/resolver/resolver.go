// Package resolver decides which stored job a report should be diffed
// against. Two strategies: strict job_id-1, or the greatest stored id
// below the current one.
package resolver

import (
	"context"

	"github.com/ChuLiYu/buildtrace/internal/store"
	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Predecessor resolves the job id a snapshot should be compared against.
type Predecessor interface {
	// Resolve returns the baseline job id for jobID, or an error when no
	// usable baseline exists (store.ErrSnapshotNotFound for an empty history).
	Resolve(ctx context.Context, jobID types.JobID) (types.JobID, error)
}

// Decrement is the original strategy: the baseline is always job_id - 1.
// Kept as the default for contiguous sequences; wrong silently when ids
// have gaps.
type Decrement struct{}

func (Decrement) Resolve(ctx context.Context, jobID types.JobID) (types.JobID, error) {
	return jobID - 1, nil
}

// LatestKnown asks the store for the greatest stored job id below the
// current one, so gaps in the sequence resolve to the last real baseline.
type LatestKnown struct {
	Store store.Store
}

func (r LatestKnown) Resolve(ctx context.Context, jobID types.JobID) (types.JobID, error) {
	return r.Store.LatestBefore(ctx, jobID)
}

// ForName maps a config value to a strategy. "latest" selects the
// gap-tolerant store lookup; anything else gets the decrement default.
func ForName(name string, s store.Store) Predecessor {
	if name == "latest" {
		return LatestKnown{Store: s}
	}
	return Decrement{}
}
