// Package simulate generates sequential synthetic job submissions for
// exercising the ingestion and reporting path without a real build system.
// Each job mutates the previous population with random removals,
// positional modifications, and additions, mirroring how real artifact
// sets drift between builds.
package simulate

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

var objectTypes = []string{"wall", "door", "window", "column", "stair"}

// Object is one synthetic build artifact with a position and size; its
// fingerprint is derived from those attributes, so moving an object
// changes its fingerprint.
type Object struct {
	ID     string
	Type   string
	X      int
	Y      int
	Width  int
	Height int
}

// Fingerprint returns the type_x_y_w_h pseudo-hash for the object.
func (o Object) Fingerprint() types.Fingerprint {
	return types.Fingerprint(fmt.Sprintf("%s_%d_%d_%d_%d", o.Type, o.X, o.Y, o.Width, o.Height))
}

// Options controls sequence generation. Zero values use defaults.
type Options struct {
	Jobs        int       // number of sequential jobs (default 5)
	BaseObjects int       // population of the first job (default 50)
	Seed        int64     // RNG seed; 0 means time-based
	Start       time.Time // timestamp of the first job; zero means now
}

// Generate produces a sequence of snapshots, one per job, with job ids
// starting at 1. The same seed always yields the same sequence.
func Generate(opts Options) []types.Snapshot {
	if opts.Jobs <= 0 {
		opts.Jobs = 5
	}
	if opts.BaseObjects <= 0 {
		opts.BaseObjects = 50
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	snapshots := make([]types.Snapshot, 0, opts.Jobs)
	var population []Object

	for i := 1; i <= opts.Jobs; i++ {
		jobID := types.JobID(i)
		population = applyChanges(rng, population, jobID, opts.BaseObjects)

		objects := make(map[string]types.Fingerprint, len(population))
		for _, obj := range population {
			objects[obj.ID] = obj.Fingerprint()
		}

		snapshots = append(snapshots, types.Snapshot{
			JobID:     jobID,
			Timestamp: opts.Start.Add(time.Duration(i-1) * time.Minute),
			LatencyMS: int64(1000 + rng.Intn(29001)), // 1s ~ 30s
			Objects:   objects,
		})
	}

	return snapshots
}

func newObject(rng *rand.Rand, id, objType string) Object {
	return Object{
		ID:     id,
		Type:   objType,
		X:      rng.Intn(101),
		Y:      rng.Intn(101),
		Width:  1 + rng.Intn(10),
		Height: 1 + rng.Intn(10),
	}
}

// applyChanges mutates the previous population into the next job's state:
// 5-10% removals, 10-20% positional modifications, 2-5 additions. The
// first job generates the full base population instead.
func applyChanges(rng *rand.Rand, previous []Object, jobID types.JobID, baseObjects int) []Object {
	if len(previous) == 0 {
		base := make([]Object, 0, baseObjects)
		for i := 0; i < baseObjects; i++ {
			objType := objectTypes[rng.Intn(len(objectTypes))]
			id := fmt.Sprintf("%c%03d", objType[0]-'a'+'A', i)
			base = append(base, newObject(rng, id, objType))
		}
		return base
	}

	current := make(map[string]Object, len(previous))
	for _, obj := range previous {
		current[obj.ID] = obj
	}

	// 1. removals (5-10%)
	if len(current) > 5 {
		low, high := len(current)*5/100, len(current)*10/100
		for _, id := range pickIDs(rng, current, between(rng, low, high)) {
			delete(current, id)
		}
	}

	// 2. positional modifications (10-20% of remaining)
	low, high := len(current)*10/100, len(current)*20/100
	for _, id := range pickIDs(rng, current, between(rng, low, high)) {
		obj := current[id]
		obj.X += rng.Intn(5) - 2
		obj.Y += rng.Intn(5) - 2
		current[id] = obj
	}

	// 3. additions (2-5 new objects)
	for n := between(rng, 2, 5); n > 0; n-- {
		objType := objectTypes[rng.Intn(len(objectTypes))]
		id := fmt.Sprintf("J%dN%c%03d", jobID, objType[0]-'a'+'A', rng.Intn(900)+100)
		if _, exists := current[id]; exists {
			continue
		}
		obj := newObject(rng, id, objType)
		current[id] = obj
	}

	next := make([]Object, 0, len(current))
	for _, obj := range current {
		next = append(next, obj)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
	return next
}

func between(rng *rand.Rand, low, high int) int {
	if high <= low {
		return low
	}
	return low + rng.Intn(high-low+1)
}

// pickIDs samples up to n distinct ids from the population map,
// deterministically given the RNG state.
func pickIDs(rng *rand.Rand, population map[string]Object, n int) []string {
	ids := make([]string, 0, len(population))
	for id := range population {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}
