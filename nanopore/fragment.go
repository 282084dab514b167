package nanopore

import (
	"sync"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/unsafe"
)

const numFragmentShards = 1024

type fragmentShard struct {
	mu      sync.Mutex
	readIDs map[string]struct{}
}

// FragmentCollection is a sharded, thread-safe set of read ids belonging
// to reads that were ejected mid-chunk. The read processor consults it to
// drop post-hoc FASTQ records for a read already known to be unblocked,
// so ejected fragments never reach a stratum's alignment stats.
type FragmentCollection struct {
	shards [numFragmentShards]fragmentShard
}

// NewFragmentCollection returns an empty collection.
func NewFragmentCollection() *FragmentCollection {
	f := &FragmentCollection{}
	for i := range f.shards {
		f.shards[i].readIDs = make(map[string]struct{})
	}
	return f
}

func (f *FragmentCollection) shardFor(readID string) *fragmentShard {
	h := seahash.Sum64(unsafe.StringToBytes(readID))
	return &f.shards[h%uint64(numFragmentShards)]
}

// Add records readID as belonging to a depleted fragment. It is
// idempotent: adding the same id twice is a no-op.
func (f *FragmentCollection) Add(readID string) {
	shard := f.shardFor(readID)
	shard.mu.Lock()
	shard.readIDs[readID] = struct{}{}
	shard.mu.Unlock()
}

// Contains reports whether readID has been recorded as depleted.
func (f *FragmentCollection) Contains(readID string) bool {
	shard := f.shardFor(readID)
	shard.mu.Lock()
	_, ok := shard.readIDs[readID]
	shard.mu.Unlock()
	return ok
}

// Len returns the approximate number of recorded ids. Accurate only when
// no other goroutine is concurrently mutating the collection.
func (f *FragmentCollection) Len() int {
	n := 0
	for i := range f.shards {
		s := &f.shards[i]
		s.mu.Lock()
		n += len(s.readIDs)
		s.mu.Unlock()
	}
	return n
}
