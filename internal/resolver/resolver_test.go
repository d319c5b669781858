package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/buildtrace/internal/store"
	"github.com/ChuLiYu/buildtrace/pkg/types"
)

func seedStore(t *testing.T, ids ...types.JobID) store.Store {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	for _, id := range ids {
		err := s.Put(context.Background(), types.Snapshot{
			JobID:     id,
			Timestamp: time.Now().UTC(),
			LatencyMS: 100,
			Objects:   map[string]types.Fingerprint{},
		})
		require.NoError(t, err)
	}
	return s
}

func TestDecrement(t *testing.T) {
	prev, err := Decrement{}.Resolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, types.JobID(9), prev)
}

func TestLatestKnownSkipsGaps(t *testing.T) {
	s := seedStore(t, 1, 2, 5)

	// job 3 的提交失敗了：job 5 的基準是 2，不是 4
	prev, err := LatestKnown{Store: s}.Resolve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, types.JobID(2), prev)
}

func TestLatestKnownEmptyHistory(t *testing.T) {
	s := seedStore(t)

	_, err := LatestKnown{Store: s}.Resolve(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)
}

func TestForName(t *testing.T) {
	s := seedStore(t, 1)

	assert.IsType(t, Decrement{}, ForName("decrement", s))
	assert.IsType(t, LatestKnown{}, ForName("latest", s))
	assert.IsType(t, Decrement{}, ForName("", s))
}
