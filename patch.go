package merkledb

import (
	"errors"
	"maps"
	"slices"
	"sync/atomic"
)

// Patch is the frozen changeset of a Fork, ready to be merged. It is never
// mutated after creation and can be merged at most once.
type Patch struct {
	db        *DB
	baseSeq   uint64
	changes   map[string]map[string]change
	touched   map[string]Address
	allocated bool
	garbage   bool
	merged    atomic.Bool

	// precondition runs inside the merge guard over the latest committed
	// state; an error rejects the merge.
	precondition func(s *Snapshot) error
}

// errStalePatch is returned by preconditions when the state a patch was
// computed from has changed.
var errStalePatch = errors.New("merkledb: patch is based on outdated state")

// Len returns the number of key-level changes in the patch.
func (p *Patch) Len() int {
	var n int
	for _, changes := range p.changes {
		n += len(changes)
	}
	return n
}

// BaseSeq is the commit sequence number of the snapshot the fork was built on.
func (p *Patch) BaseSeq() uint64 {
	return p.baseSeq
}

// Touched returns the addresses of indexes modified by the patch, sorted by
// their metadata key.
func (p *Patch) Touched() []Address {
	keys := slices.Sorted(maps.Keys(p.touched))
	result := make([]Address, len(keys))
	for i, k := range keys {
		result[i] = p.touched[k]
	}
	return result
}

func (p *Patch) IsEmpty() bool {
	return len(p.changes) == 0 && len(p.touched) == 0
}
